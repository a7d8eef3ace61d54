// Package frame implements September's call frames: heap-allocated,
// GC-visible activation records threaded into a single VM-wide frame list
// (newest first), each carrying its own operand stack, locals Scope,
// instruction pointer, and exception-handler stack.
//
// Grounded on the teacher's StackFrame (pkg/vm/errors.go) for the
// call-stack-entry shape, generalized into a first-class heap object per
// spec.md §3.8 instead of a throwaway Go-level error-reporting struct.
package frame

import (
	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/heap"
	"github.com/septvm/septvm/pkg/value"
)

// HandlerRecord is one entry on a Frame's exception-handler stack, pushed
// by PUSH_HANDLER and consulted during exception unwinding.
type HandlerRecord struct {
	TargetIP   int
	StackDepth int
}

// Frame is one activation: a CodeBlock being executed (nil for a frame
// representing a native/builtin call with no bytecode of its own), the
// Scope Object locals resolve against, an operand stack, an instruction
// pointer, a handler stack, a pending exception slot, and a link to the
// calling Frame.
type Frame struct {
	heap.Header
	Code      *code.CodeBlock
	Function  value.Value // the Function/BuiltinFunction/BoundMethod Value being run
	Scope     value.Value // Reference to the locals Object
	Self      value.Value // the receiver PUSH_SELF pushes; Nothing outside a method body
	Operand   *heap.Array
	IP        int
	Handlers  []HandlerRecord
	Exception value.Value // Nothing when no exception is pending
	Parent    *Frame
}

// New allocates a Frame for running cb against scope, linked under parent
// (nil for the outermost/module frame).
func New(mgr *heap.Manager, cb *code.CodeBlock, fn value.Value, scope value.Value, parent *Frame) *Frame {
	f := &Frame{
		Header:    heap.NewHeader(value.HeapFrame),
		Code:      cb,
		Function:  fn,
		Scope:     scope,
		Self:      value.Nothing(),
		Operand:   heap.NewArray(mgr),
		Exception: value.Nothing(),
		Parent:    parent,
	}
	mgr.Register(f)
	return f
}

func (f *Frame) References() []value.Value {
	refs := []value.Value{f.Function, f.Scope, f.Self, f.Exception, value.Ref(f.Operand)}
	if f.Parent != nil {
		refs = append(refs, value.Ref(f.Parent))
	}
	return refs
}

func (f *Frame) Push(v value.Value) { f.Operand.Push(v) }

func (f *Frame) Pop() (value.Value, bool) { return f.Operand.Pop() }

func (f *Frame) Top() (value.Value, bool) { return f.Operand.Top() }

func (f *Frame) StackDepth() int { return f.Operand.Len() }

func (f *Frame) TruncateStack(n int) { f.Operand.Truncate(n) }

func (f *Frame) PushHandler(targetIP int) {
	f.Handlers = append(f.Handlers, HandlerRecord{TargetIP: targetIP, StackDepth: f.StackDepth()})
}

// PopHandler discards the most recently pushed handler record (normal exit
// from a try region, POP_HANDLER).
func (f *Frame) PopHandler() (HandlerRecord, bool) {
	n := len(f.Handlers)
	if n == 0 {
		return HandlerRecord{}, false
	}
	h := f.Handlers[n-1]
	f.Handlers = f.Handlers[:n-1]
	return h, true
}

// TakeHandler pops and returns the innermost handler record, for use when
// an exception is propagating and this frame catches it.
func (f *Frame) TakeHandler() (HandlerRecord, bool) { return f.PopHandler() }

func (f *Frame) HasHandler() bool { return len(f.Handlers) > 0 }

// Name reports a human-readable label for this frame, for stack traces.
func (f *Frame) Name() string {
	if f.Code != nil && f.Code.Name != "" {
		return f.Code.Name
	}
	return "<anonymous>"
}
