// Package heap implements September's managed heap: the Memory Manager that
// allocates and tracks every heap object, the mark-and-sweep tracing
// collector, pin-scopes for native-call temporaries, and the Array container
// used both for September array values and the VM's own operand stacks.
//
// Grounded on the teacher's push/pop Array handling in pkg/vm/vm.go for the
// container shape; the mark-and-sweep collector itself has no teacher
// counterpart (the teacher leans entirely on Go's own GC) and is built fresh
// against spec.md's description of the Memory Manager.
package heap

import "github.com/septvm/septvm/pkg/value"

// Header is embedded by every concrete heap object type to supply the
// value.HeapObject bookkeeping (kind tag, mark bit). Each embedder still
// implements its own References() — there is no one-size-fits-all default.
type Header struct {
	kind   value.HeapKind
	marked bool
}

func NewHeader(kind value.HeapKind) Header { return Header{kind: kind} }

func (h *Header) HeapKind() value.HeapKind { return h.kind }
func (h *Header) Marked() bool             { return h.marked }
func (h *Header) SetMarked(m bool)         { h.marked = m }

// FatalError is raised for programmer errors in the embedding Go code that
// the managed heap cannot recover from on its own (e.g. releasing pin-scopes
// out of order). cmd/septvm recovers it once at the top level.
type FatalError struct {
	Message string
}

func (e *FatalError) Error() string { return e.Message }

// Array is a growable, GC-visible sequence of Values. It backs both
// September `Array` values and every Frame's operand stack.
type Array struct {
	Header
	Elements []value.Value
}

// NewArray allocates an empty Array registered with mgr.
func NewArray(mgr *Manager) *Array {
	a := &Array{Header: NewHeader(value.HeapArray)}
	mgr.Register(a)
	return a
}

func (a *Array) References() []value.Value { return a.Elements }

func (a *Array) Len() int { return len(a.Elements) }

func (a *Array) Append(v value.Value) { a.Elements = append(a.Elements, v) }

func (a *Array) Get(i int) (value.Value, bool) {
	if i < 0 || i >= len(a.Elements) {
		return value.Nothing(), false
	}
	return a.Elements[i], true
}

func (a *Array) Set(i int, v value.Value) bool {
	if i < 0 || i >= len(a.Elements) {
		return false
	}
	a.Elements[i] = v
	return true
}

// Push/Pop/Top let Array double as an operand stack.
func (a *Array) Push(v value.Value) { a.Elements = append(a.Elements, v) }

func (a *Array) Pop() (value.Value, bool) {
	n := len(a.Elements)
	if n == 0 {
		return value.Nothing(), false
	}
	v := a.Elements[n-1]
	a.Elements = a.Elements[:n-1]
	return v, true
}

func (a *Array) Top() (value.Value, bool) {
	n := len(a.Elements)
	if n == 0 {
		return value.Nothing(), false
	}
	return a.Elements[n-1], true
}

func (a *Array) Truncate(n int) {
	if n < len(a.Elements) {
		a.Elements = a.Elements[:n]
	}
}
