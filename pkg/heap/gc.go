package heap

import "github.com/septvm/septvm/pkg/value"

// RootProvider is implemented by collaborators that hold Values the GC must
// never collect (the VM's frame list, loaded modules' scopes, the globals
// object, the String Pool's kept entries).
type RootProvider interface {
	Roots() []value.Value
}

// Manager is September's Memory Manager: it tracks every live heap object
// and runs a mark-and-sweep collection when the configured allocation
// threshold is crossed.
type Manager struct {
	objects   []value.HeapObject
	allocated int64
	threshold int64
	providers []RootProvider
	pins      [][]value.Value // stack of active pin-scopes' pinned values
	log       Logger

	// stats
	collections int
	lastFreed   int
}

// Logger is the minimal surface Manager needs for GC diagnostics; satisfied
// by pkg/vmlog.Logger without heap importing vmlog (which would be a
// needless dependency for a package this low-level).
type Logger interface {
	Debugf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}

// DefaultThreshold is the number of allocations after which the next GC
// safe point (MaybeCollect) runs a collection, chosen to be small enough that tests can force a collection
// deterministically without allocating huge fixtures.
const DefaultThreshold = 4096

func NewManager(threshold int64) *Manager {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Manager{threshold: threshold, log: noopLogger{}}
}

func (m *Manager) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	m.log = l
}

func (m *Manager) AddRootProvider(p RootProvider) { m.providers = append(m.providers, p) }

// Register adds a freshly-allocated object to the live set. Every
// constructor in pkg/object, pkg/code, pkg/frame calls this immediately
// after allocating.
func (m *Manager) Register(o value.HeapObject) {
	m.objects = append(m.objects, o)
	m.allocated++
}

// LiveCount reports how many heap objects are currently tracked as live.
func (m *Manager) LiveCount() int { return len(m.objects) }

// Collections reports how many GC cycles have run so far.
func (m *Manager) Collections() int { return m.collections }

// MaybeCollect runs a collection if the allocation counter has crossed the
// configured threshold since the last cycle. Called at the top of every
// instruction fetch (the VM's GC safe point).
func (m *Manager) MaybeCollect() int {
	if m.allocated < m.threshold {
		return 0
	}
	return m.Collect()
}

// Collect forces an immediate mark-and-sweep collection and returns the
// number of objects reclaimed.
func (m *Manager) Collect() int {
	m.collections++
	m.log.Debugf("gc: cycle %d starting, %d live objects", m.collections, len(m.objects))

	roots := m.gatherRoots()
	m.mark(roots)
	freed := m.sweep()

	m.allocated = 0
	m.lastFreed = freed
	m.log.Debugf("gc: cycle %d done, freed %d, %d live remain", m.collections, freed, len(m.objects))
	return freed
}

func (m *Manager) gatherRoots() []value.Value {
	var roots []value.Value
	for _, p := range m.providers {
		roots = append(roots, p.Roots()...)
	}
	for _, scope := range m.pins {
		roots = append(roots, scope...)
	}
	return roots
}

// mark performs a breadth-first reachability scan from roots, using a
// work-list (the "mark-stack" of the design notes, implemented here as a
// FIFO queue so traversal order matches the breadth-first description).
func (m *Manager) mark(roots []value.Value) {
	queue := make([]value.HeapObject, 0, len(roots))
	for _, r := range roots {
		if o, ok := r.Heap(); ok && o != nil && !o.Marked() {
			o.SetMarked(true)
			queue = append(queue, o)
		}
	}
	for len(queue) > 0 {
		o := queue[0]
		queue = queue[1:]
		for _, child := range o.References() {
			if co, ok := child.Heap(); ok && co != nil && !co.Marked() {
				co.SetMarked(true)
				queue = append(queue, co)
			}
		}
	}
}

func (m *Manager) sweep() int {
	survivors := m.objects[:0]
	freed := 0
	for _, o := range m.objects {
		if o.Marked() {
			o.SetMarked(false)
			survivors = append(survivors, o)
		} else {
			freed++
		}
	}
	m.objects = survivors
	return freed
}

// BeginPin opens a new pin-scope: Values pinned within it are treated as GC
// roots until the scope is released. Pin-scopes nest and must be released in
// strict LIFO order — releasing out of order is a programmer error in the
// embedding native code and is fatal.
func (m *Manager) BeginPin() *PinScope {
	idx := len(m.pins)
	m.pins = append(m.pins, nil)
	return &PinScope{mgr: m, index: idx}
}

// PinScope holds Values pinned for the duration of a native call.
type PinScope struct {
	mgr      *Manager
	index    int
	released bool
}

// Pin registers v as a GC root for as long as this scope is open and
// returns v unchanged, so callers can write `v = scope.Pin(v)` inline.
func (p *PinScope) Pin(v value.Value) value.Value {
	if p.released {
		panic(&FatalError{Message: "pin-scope: Pin called after Release"})
	}
	p.mgr.pins[p.index] = append(p.mgr.pins[p.index], v)
	return v
}

// Release closes the scope. Scopes must be released in the exact reverse
// order they were opened (matching nested native-call lifetimes); violating
// this is a fatal error rather than a silently-wrong collection.
func (p *PinScope) Release() {
	if p.released {
		return
	}
	if p.index != len(p.mgr.pins)-1 {
		panic(&FatalError{Message: "pin-scope released out of order"})
	}
	p.mgr.pins = p.mgr.pins[:p.index]
	p.released = true
}
