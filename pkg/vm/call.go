package vm

import (
	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/exception"
	"github.com/septvm/septvm/pkg/frame"
	"github.com/septvm/septvm/pkg/heap"
	"github.com/septvm/septvm/pkg/object"
	"github.com/septvm/septvm/pkg/value"
)

// callable is either *code.Function or *code.BuiltinFunction, the two
// concrete things CALL can ultimately dispatch to once BoundMethod wrappers
// are peeled away.
type callable interface{}

// unwrapCallable peels BoundMethod layers off fn, returning the underlying
// Function/BuiltinFunction and the receiver it should be bound to (Nothing
// if fn was never bound to one).
func unwrapCallable(fn value.Value) (callable, value.Value, bool) {
	h, ok := fn.Heap()
	if !ok {
		return nil, value.Nothing(), false
	}
	switch c := h.(type) {
	case *code.BoundMethod:
		inner, _, ok := unwrapCallable(c.Fn)
		if !ok {
			return nil, value.Nothing(), false
		}
		return inner, c.Self, true
	case *code.Function:
		return c, value.Nothing(), true
	case *code.BuiltinFunction:
		return c, value.Nothing(), true
	default:
		return nil, value.Nothing(), false
	}
}

// prepareCall resolves fn and dispatches the call protocol (spec.md §4.4):
// for a Function, it builds a new Scope prototyped on the closure's capture
// (plus `self`, if bound), binds arguments into it, and pushes a new Frame
// for the interpreter loop to run next; for a BuiltinFunction, it runs the
// native Go implementation synchronously and pushes its result onto the
// caller's own operand stack, since natives never need their own bytecode
// frame. Binding/dispatch failures raise a September exception in caller
// rather than returning a Go error, except for genuine VM-integrity faults.
func (vm *VM) prepareCall(fn value.Value, args []value.Value, shape code.CallShape, floor *frame.Frame) error {
	caller := vm.frames
	c, self, ok := unwrapCallable(fn)
	if !ok {
		vm.raiseNew(caller, exception.EWrongType, "cannot call a non-function value", floor)
		return nil
	}
	switch callee := c.(type) {
	case *code.Function:
		return vm.prepareFunctionCall(caller, callee, self, args, shape, floor)
	case *code.BuiltinFunction:
		return vm.callBuiltin(caller, callee, self, args, shape, floor)
	default:
		vm.raiseNew(caller, exception.EWrongType, "cannot call a non-function value", floor)
		return nil
	}
}

func (vm *VM) prepareFunctionCall(caller *frame.Frame, fn *code.Function, self value.Value, args []value.Value, shape code.CallShape, floor *frame.Frame) error {
	bound, err := vm.bindArguments(fn.Code.Module, fn.Code.Params, shape, args, fn.Capture)
	if err != nil {
		return vm.raiseOrFatal(caller, err, floor)
	}

	scope := object.New(vm.Heap)
	scope.SetPrototypes([]value.Value{fn.Capture})
	for name, v := range bound {
		scope.DefineField(name, v)
	}

	newFrame := frame.New(vm.Heap, fn.Code, value.Ref(fn), value.Ref(scope), caller)
	newFrame.Self = self
	vm.frames = newFrame
	return nil
}

func (vm *VM) callBuiltin(caller *frame.Frame, b *code.BuiltinFunction, self value.Value, args []value.Value, shape code.CallShape, floor *frame.Frame) error {
	bound, err := vm.bindArguments(nil, b.Params, shape, args, value.Nothing())
	if err != nil {
		return vm.raiseOrFatal(caller, err, floor)
	}
	ordered := make([]value.Value, len(b.Params))
	for i, p := range b.Params {
		ordered[i] = bound[p.Name]
	}
	result, callErr := b.Fn(vm, self, ordered)
	if callErr != nil {
		return vm.raiseOrFatal(caller, callErr, floor)
	}
	caller.Push(result)
	return nil
}

// raiseOrFatal converts a *exception.Raised into a VM-level raise in
// caller, or passes any other error through as a fatal Go error.
func (vm *VM) raiseOrFatal(caller *frame.Frame, err error, floor *frame.Frame) error {
	if raised, ok := err.(*exception.Raised); ok {
		vm.raise(caller, raised.Value, floor)
		return nil
	}
	return err
}

// bindArguments implements spec.md §4.4's parameter-binding rules: named
// arguments first, then positional fill in declaration order, then rest
// capture, then defaults, raising EWrongArguments for anything left
// unresolved. mod is nil when binding a BuiltinFunction's parameters (which
// may not declare defaults, since they have no CodeBlock to evaluate a
// thunk from).
func (vm *VM) bindArguments(mod *code.Module, params []code.ParameterDescriptor, shape code.CallShape, raw []value.Value, capture value.Value) (map[string]value.Value, error) {
	named := make(map[string]value.Value)
	var positional []value.Value
	for i, v := range raw {
		name := ""
		if i < len(shape.Names) {
			name = shape.Names[i]
		}
		if name != "" {
			named[name] = v
		} else {
			positional = append(positional, v)
		}
	}

	result := make(map[string]value.Value, len(params))
	pi := 0
	var rest *code.ParameterDescriptor
	for idx := range params {
		p := &params[idx]
		if p.Is(code.FlagRest) {
			rest = p
			continue
		}
		if v, ok := named[p.Name]; ok {
			result[p.Name] = v
			delete(named, p.Name)
			continue
		}
		if !p.Is(code.FlagNamedOnly) && pi < len(positional) {
			result[p.Name] = positional[pi]
			pi++
			continue
		}
		if p.Is(code.FlagHasDefault) {
			if mod == nil {
				return nil, &FatalError{Message: "builtin parameter declares a default with no owning module"}
			}
			dv, err := vm.invokeDefault(mod, p.Default, capture)
			if err != nil {
				return nil, err
			}
			result[p.Name] = dv
			continue
		}
		return nil, &exception.Raised{Value: vm.Taxonomy.New(exception.EWrongArguments, "missing argument: "+p.Name)}
	}

	if rest != nil {
		arr := heap.NewArray(vm.Heap)
		for ; pi < len(positional); pi++ {
			arr.Push(positional[pi])
		}
		result[rest.Name] = value.Ref(arr)
	} else if pi < len(positional) {
		return nil, &exception.Raised{Value: vm.Taxonomy.New(exception.EWrongArguments, "too many positional arguments")}
	}
	if len(named) > 0 {
		return nil, &exception.Raised{Value: vm.Taxonomy.New(exception.EWrongArguments, "unexpected named argument")}
	}
	return result, nil
}

// invokeDefault evaluates the default-value thunk for a parameter by
// re-entering the interpreter (spec.md §4.4 point 4: default values are
// ordinary expressions, evaluated through the same call mechanism as
// anything else).
func (vm *VM) invokeDefault(mod *code.Module, idx int, capture value.Value) (value.Value, error) {
	if idx < 0 || idx >= len(mod.Functions) {
		return value.Nothing(), &FatalError{Message: "default parameter thunk index out of range"}
	}
	thunk := code.NewFunction(vm.Heap, mod.Functions[idx], capture)
	return vm.Invoke(value.Ref(thunk), nil)
}
