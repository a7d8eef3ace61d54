// Package strpool implements September's String Pool: strings interned
// through it come back as one canonical copy per distinct byte sequence.
// The VM creates a Pool, but property keys do not pass through it: Object
// slots are keyed by plain Go strings and looked up by ordinary string
// comparison.
package strpool

// Pool interns strings used as property keys. The VM runs cooperatively on
// a single goroutine (spec's concurrency model is explicitly single-threaded
// at the language level), so the pool carries no internal locking, matching
// the teacher's general absence of synchronization in pkg/vm.
type Pool struct {
	entries map[string]string
}

// New creates an empty String Pool.
func New() *Pool {
	return &Pool{entries: make(map[string]string)}
}

// Intern returns the canonical copy of s, inserting it on first sighting.
// Subsequent calls with an equal s always return the exact same backing
// string header, so `==` on the result is a valid identity test.
func (p *Pool) Intern(s string) string {
	if canon, ok := p.entries[s]; ok {
		return canon
	}
	p.entries[s] = s
	return s
}

// Len reports how many distinct strings are currently interned.
func (p *Pool) Len() int { return len(p.entries) }

// Contains reports whether s has already been interned, without inserting it.
func (p *Pool) Contains(s string) bool {
	_, ok := p.entries[s]
	return ok
}
