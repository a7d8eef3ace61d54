// Package vm implements September's interpreter loop: instruction dispatch,
// the call/return protocol, exception propagation by frame-list unwinding,
// native re-entrancy (vm_invoke), and GC safe points.
//
// Adapted from the teacher's pkg/vm/vm.go: the fetch/decode/switch dispatch
// shape and push/pop operand-stack helpers are kept; the control structure
// is generalized from one-recursive-Go-call-per-block into a single
// iterative, VM-wide frame list (spec.md §3.8/§9), and message dispatch
// (the teacher's `send`) is generalized into C3-based property/method
// lookup via pkg/object instead of a hardcoded per-selector switch.
package vm

import (
	"fmt"

	"github.com/septvm/septvm/pkg/builtins"
	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/exception"
	"github.com/septvm/septvm/pkg/frame"
	"github.com/septvm/septvm/pkg/heap"
	"github.com/septvm/septvm/pkg/object"
	"github.com/septvm/septvm/pkg/strpool"
	"github.com/septvm/septvm/pkg/value"
	"github.com/septvm/septvm/pkg/vmlog"
)

// FatalError signals a VM-integrity failure (corrupt bytecode, an internal
// invariant violated) that no handler in the running program could ever
// catch. Run returns it as an error, and cmd/septvm reports it and exits.
type FatalError struct {
	Message string
}

func (e *FatalError) Error() string { return "fatal: " + e.Message }

// UncaughtException wraps a September exception Value that propagated all
// the way out of Run with no handler catching it, plus its printable trace.
// The trace is built after the frame list has fully unwound, so it holds
// only the exception line and lists no frames.
type UncaughtException struct {
	Value value.Value
	Trace []string
}

func (e *UncaughtException) Error() string {
	msg := "uncaught exception"
	if len(e.Trace) > 0 {
		msg += ": " + e.Trace[0]
	}
	return msg
}

// VM is September's single-threaded interpreter: one managed heap, one
// String Pool, one global Scope, the built-in method library, the
// exception taxonomy, and the currently-running frame list.
type VM struct {
	Heap     *heap.Manager
	Strings  *strpool.Pool
	Globals  *object.Object
	Builtins *builtins.Library
	Taxonomy *exception.Taxonomy
	Log      *vmlog.Logger

	Inspector *Inspector

	modules []*code.Module
	frames  *frame.Frame

	lastResult   value.Value
	topException value.Value
}

// Option configures a VM at construction time.
type Option func(*VM)

func WithGCThreshold(n int64) Option {
	return func(vm *VM) { vm.Heap = heap.NewManager(n) }
}

func WithLogger(l *vmlog.Logger) Option {
	return func(vm *VM) { vm.Log = l }
}

// New builds a VM with a fresh heap, string pool, globals object, and the
// full built-in prototype library installed.
func New(opts ...Option) *VM {
	vm := &VM{
		lastResult:   value.Nothing(),
		topException: value.Nothing(),
	}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.Heap == nil {
		vm.Heap = heap.NewManager(heap.DefaultThreshold)
	}
	if vm.Log == nil {
		vm.Log = vmlog.Discard()
	}
	vm.Heap.SetLogger(vm.Log)
	vm.Heap.AddRootProvider(vm)

	vm.Strings = strpool.New()
	vm.Builtins = builtins.Install(vm.Heap)
	vm.Globals = object.New(vm.Heap)
	vm.Globals.SetPrototypes([]value.Value{value.Ref(vm.Builtins.ObjectProto)})
	vm.Taxonomy = exception.New(vm.Heap, vm.Builtins.ObjectProto)
	vm.Taxonomy.MakeString = vm.Builtins.NewStringValue

	return vm
}

// Roots implements heap.RootProvider: every loaded module's Scope, the
// globals object, and the entire current frame list are GC roots.
func (vm *VM) Roots() []value.Value {
	roots := []value.Value{value.Ref(vm.Globals), vm.lastResult, vm.topException}
	for _, m := range vm.modules {
		roots = append(roots, m.Scope)
	}
	for f := vm.frames; f != nil; f = f.Parent {
		roots = append(roots, value.Ref(f))
	}
	return roots
}

// LoadModule registers mod as a GC root and, if it has no Scope yet, gives
// it one prototyped on Globals.
func (vm *VM) LoadModule(mod *code.Module) {
	if mod.Scope.IsNothing() {
		scope := object.New(vm.Heap)
		scope.SetPrototypes([]value.Value{value.Ref(vm.Globals)})
		mod.Scope = value.Ref(scope)
	}
	for _, p := range mod.PendingFunctionRefs {
		fn := code.NewFunction(vm.Heap, mod.Functions[p.FuncIndex], mod.Scope)
		mod.Constants[p.ConstIndex] = value.Ref(fn)
	}
	mod.PendingFunctionRefs = nil
	vm.modules = append(vm.modules, mod)
}

// Run loads (if necessary) and executes mod's root CodeBlock to completion,
// returning its final value or an *UncaughtException/*FatalError.
func (vm *VM) Run(mod *code.Module) (value.Value, error) {
	alreadyLoaded := false
	for _, m := range vm.modules {
		if m == mod {
			alreadyLoaded = true
			break
		}
	}
	if !alreadyLoaded {
		vm.LoadModule(mod)
	}

	root := frame.New(vm.Heap, mod.Root, value.Nothing(), mod.Scope, vm.frames)
	vm.frames = root

	return vm.loop(root.Parent)
}

// Invoke re-enters the interpreter to call fn with args, returning its
// result. Used by built-in natives that need to call back into September
// (Array#do:, `force`, property-slot getters/setters). If an exception
// escapes the call uncaught, Invoke returns it wrapped in *exception.Raised
// rather than letting it propagate past the native call's own frame,
// matching spec.md §4.6.
func (vm *VM) Invoke(fn value.Value, args []value.Value) (value.Value, error) {
	floor := vm.frames
	shape := code.CallShape{Names: make([]string, len(args))}
	if err := vm.prepareCall(fn, args, shape, floor); err != nil {
		return value.Nothing(), err
	}
	result, err := vm.loop(floor)
	if err != nil {
		return value.Nothing(), err
	}
	if floor != nil && !floor.Exception.IsNothing() {
		exc := floor.Exception
		floor.Exception = value.Nothing()
		return value.Nothing(), &exception.Raised{Value: exc}
	}
	return result, nil
}

// loop runs the fetch/decode/dispatch cycle until the frame list unwinds
// back down to exactly floor (nil for a top-level Run). It returns the
// value produced by the RETURN that reached floor, or an error for either
// a FatalError or (only when floor == nil) an *UncaughtException.
func (vm *VM) loop(floor *frame.Frame) (value.Value, error) {
	for {
		if vm.frames == floor {
			return vm.finish(floor)
		}
		f := vm.frames
		if f == nil {
			return value.Nothing(), &FatalError{Message: "frame list exhausted before reaching floor"}
		}
		vm.Heap.MaybeCollect()

		if vm.Inspector != nil {
			if err := vm.Inspector.beforeInstruction(vm, f); err != nil {
				return value.Nothing(), err
			}
		}

		if f.Code == nil || f.IP >= len(f.Code.Instructions) {
			vm.returnFrame(f, implicitResult(f))
			continue
		}

		instr := f.Code.Instructions[f.IP]
		f.IP++
		if err := vm.step(f, instr, floor); err != nil {
			return value.Nothing(), err
		}
	}
}

func implicitResult(f *frame.Frame) value.Value {
	if v, ok := f.Top(); ok {
		return v
	}
	return value.Nothing()
}

func (vm *VM) finish(floor *frame.Frame) (value.Value, error) {
	if floor == nil {
		if !vm.topException.IsNothing() {
			exc := vm.topException
			vm.topException = value.Nothing()
			return value.Nothing(), &UncaughtException{Value: exc, Trace: vm.describeException(exc)}
		}
		r := vm.lastResult
		vm.lastResult = value.Nothing()
		return r, nil
	}
	// Nested Invoke: the result (if any) was pushed onto floor's own
	// operand stack by returnFrame; read and consume it from there. An
	// exception that unwound to floor pushed nothing, so floor's stack is
	// left as it is.
	if !floor.Exception.IsNothing() {
		return value.Nothing(), nil
	}
	if v, ok := floor.Top(); ok {
		floor.Pop()
		return v, nil
	}
	return value.Nothing(), nil
}

// returnFrame implements RETURN (and the implicit return when a CodeBlock's
// instructions run off the end): pop f, and if a caller remains, push
// result onto its operand stack; otherwise record it as the VM's final
// result for the top-level Run.
func (vm *VM) returnFrame(f *frame.Frame, result value.Value) {
	vm.frames = f.Parent
	if vm.frames == nil {
		vm.lastResult = result
		return
	}
	vm.frames.Push(result)
}

// raise sets f's exception slot and unwinds the frame list looking for a
// handler, stopping no lower than floor.
func (vm *VM) raise(f *frame.Frame, excVal value.Value, floor *frame.Frame) {
	f.Exception = excVal
	vm.unwind(floor)
}

// unwind implements spec.md §4.5's propagation algorithm: scan the current
// frame's handler stack; if a handler exists, truncate the operand stack,
// clear the exception, push its value, and jump to the handler; otherwise
// pop the frame, copy its exception into the new top frame, and repeat.
// Stops without inspecting floor's own handlers once the frame list has
// unwound back down to floor (the call boundary of a nested vm.Invoke).
func (vm *VM) unwind(floor *frame.Frame) {
	for {
		f := vm.frames
		if f == floor || f == nil {
			return
		}
		if h, ok := f.TakeHandler(); ok {
			excVal := f.Exception
			f.Exception = value.Nothing()
			f.TruncateStack(h.StackDepth)
			f.Push(excVal)
			f.IP = h.TargetIP
			return
		}
		excVal := f.Exception
		vm.frames = f.Parent
		if vm.frames == nil {
			vm.topException = excVal
			return
		}
		vm.frames.Exception = excVal
	}
}

// raiseNew builds a September exception of the given class/message and
// raises it in frame f.
func (vm *VM) raiseNew(f *frame.Frame, class, message string, floor *frame.Frame) {
	vm.raise(f, vm.Taxonomy.New(class, message), floor)
}

// Raise builds a September exception of the given class/message and
// returns it as a Go error a NativeFunc can return directly, satisfying
// code.Invoker. callBuiltin recognizes the resulting *exception.Raised and
// raises it in the calling frame instead of treating it as a Go-level
// fault (see pkg/vm/call.go's raiseOrFatal).
func (vm *VM) Raise(class, message string) error {
	return &exception.Raised{Value: vm.Taxonomy.New(class, message)}
}

// describeException renders a human-readable trace for an uncaught
// exception, generalizing the teacher's RuntimeError/StackFrame formatting
// (pkg/vm/errors.go): one "exception:" line, then one "at" line per frame
// still on the frame list. finish calls it only after the frame list has
// unwound to empty, so an uncaught exception's trace has no "at" lines.
func (vm *VM) describeException(excVal value.Value) []string {
	lines := []string{fmt.Sprintf("exception: %s", excVal)}
	for f := vm.frames; f != nil; f = f.Parent {
		lines = append(lines, fmt.Sprintf("  at %s", f.Name()))
	}
	return lines
}
