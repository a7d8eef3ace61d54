package vm

import (
	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/exception"
	"github.com/septvm/septvm/pkg/frame"
	"github.com/septvm/septvm/pkg/object"
	"github.com/septvm/septvm/pkg/value"
)

// step decodes and executes a single instruction against the current
// frame f. It returns a non-nil error only for VM-integrity faults;
// September-level exceptions are raised internally via vm.raise and never
// surface as a Go error from here.
func (vm *VM) step(f *frame.Frame, instr code.Instruction, floor *frame.Frame) error {
	switch instr.Op {
	case code.OpPushConst:
		idx := int(instr.Operand)
		if idx < 0 || idx >= len(f.Code.Module.Constants) {
			return &FatalError{Message: "PUSH_CONST: constant index out of range"}
		}
		f.Push(f.Code.Module.Constants[idx])

	case code.OpPushLocal:
		name, err := vm.name(f, instr.Operand)
		if err != nil {
			return err
		}
		scope, ok := asObject(f.Scope)
		if !ok {
			return &FatalError{Message: "PUSH_LOCAL: current scope is not an Object"}
		}
		slot, _, lerr := scope.Lookup(name)
		if lerr != nil {
			vm.raiseNew(f, exception.ECannotLinearize, lerr.Error(), floor)
			return nil
		}
		if slot == nil {
			vm.raiseNew(f, exception.EMissingProperty, "undefined variable: "+name, floor)
			return nil
		}
		v, rerr := slot.Read(f.Scope, vm)
		if rerr != nil {
			return vm.raiseOrFatal(f, rerr, floor)
		}
		f.Push(v)

	case code.OpStoreLocal:
		name, err := vm.name(f, instr.Operand)
		if err != nil {
			return err
		}
		v, ok := f.Pop()
		if !ok {
			return &FatalError{Message: "STORE_LOCAL: operand stack underflow"}
		}
		scope, ok := asObject(f.Scope)
		if !ok {
			return &FatalError{Message: "STORE_LOCAL: current scope is not an Object"}
		}
		if err := scope.SetProperty(name, v, vm, f.Scope); err != nil {
			vm.raiseNew(f, exception.ECannotLinearize, err.Error(), floor)
		}

	case code.OpCreateSlot:
		name, err := vm.name(f, instr.Operand)
		if err != nil {
			return err
		}
		scope, ok := asObject(f.Scope)
		if !ok {
			return &FatalError{Message: "CREATE_SLOT: current scope is not an Object"}
		}
		scope.DefineField(name, value.Nothing())

	case code.OpFetchProp:
		name, err := vm.name(f, instr.Operand)
		if err != nil {
			return err
		}
		recv, ok := f.Pop()
		if !ok {
			return &FatalError{Message: "FETCH_PROP: operand stack underflow"}
		}
		slot, lerr := vm.lookupProperty(recv, name)
		if lerr != nil {
			vm.raiseNew(f, exception.ECannotLinearize, lerr.Error(), floor)
			return nil
		}
		if slot == nil {
			vm.raiseNew(f, exception.EMissingProperty, "no such property: "+name, floor)
			return nil
		}
		v, rerr := slot.Read(recv, vm)
		if rerr != nil {
			return vm.raiseOrFatal(f, rerr, floor)
		}
		f.Push(v)

	case code.OpStoreProp:
		name, err := vm.name(f, instr.Operand)
		if err != nil {
			return err
		}
		v, ok1 := f.Pop()
		recv, ok2 := f.Pop()
		if !ok1 || !ok2 {
			return &FatalError{Message: "STORE_PROP: operand stack underflow"}
		}
		obj, ok := asObject(recv)
		if !ok {
			vm.raiseNew(f, exception.EWrongType, "cannot store a property on a non-object receiver", floor)
			return nil
		}
		if err := obj.SetProperty(name, v, vm, recv); err != nil {
			vm.raiseNew(f, exception.ECannotLinearize, err.Error(), floor)
		}

	case code.OpCall:
		shapeIdx, argc := code.UnpackCall(instr.Operand)
		if shapeIdx < 0 || shapeIdx >= len(f.Code.CallShapes) {
			return &FatalError{Message: "CALL: call-shape index out of range"}
		}
		shape := f.Code.CallShapes[shapeIdx]
		callee, ok := f.Pop()
		if !ok {
			return &FatalError{Message: "CALL: operand stack underflow (callee)"}
		}
		raw := make([]value.Value, argc)
		for i := argc - 1; i >= 0; i-- {
			v, ok := f.Pop()
			if !ok {
				return &FatalError{Message: "CALL: operand stack underflow (argument)"}
			}
			raw[i] = v
		}
		return vm.prepareCall(callee, raw, shape, floor)

	case code.OpReturn:
		vm.returnFrame(f, implicitResult(f))

	case code.OpCreateFunc, code.OpLazy:
		idx := int(instr.Operand)
		if idx < 0 || idx >= len(f.Code.Module.Functions) {
			return &FatalError{Message: "CREATE_FUNC/LAZY: function index out of range"}
		}
		fn := code.NewFunction(vm.Heap, f.Code.Module.Functions[idx], f.Scope)
		f.Push(value.Ref(fn))

	case code.OpBranch:
		f.IP = int(instr.Operand)

	case code.OpBranchIf:
		v, ok := f.Pop()
		if !ok {
			return &FatalError{Message: "BRANCH_IF: operand stack underflow"}
		}
		if v.Truthy() {
			f.IP = int(instr.Operand)
		}

	case code.OpBranchIfNot:
		v, ok := f.Pop()
		if !ok {
			return &FatalError{Message: "BRANCH_IFNOT: operand stack underflow"}
		}
		if !v.Truthy() {
			f.IP = int(instr.Operand)
		}

	case code.OpPushHandler:
		f.PushHandler(int(instr.Operand))

	case code.OpPopHandler:
		f.PopHandler()

	case code.OpRaise:
		v, ok := f.Pop()
		if !ok {
			return &FatalError{Message: "RAISE: operand stack underflow"}
		}
		vm.raise(f, v, floor)

	case code.OpPop:
		f.Pop()

	case code.OpDup:
		v, ok := f.Top()
		if !ok {
			return &FatalError{Message: "DUP: operand stack underflow"}
		}
		f.Push(v)

	case code.OpPushSelf:
		f.Push(f.Self)

	case code.OpPushNothing:
		f.Push(value.Nothing())

	case code.OpPushTrue:
		f.Push(value.Bool(true))

	case code.OpPushFalse:
		f.Push(value.Bool(false))

	default:
		return &FatalError{Message: "unknown opcode"}
	}
	return nil
}

func (vm *VM) name(f *frame.Frame, operand int32) (string, error) {
	idx := int(operand)
	if idx < 0 || idx >= len(f.Code.Module.Names) {
		return "", &FatalError{Message: "operand references an out-of-range name index"}
	}
	return f.Code.Module.Names[idx], nil
}

func asObject(v value.Value) (*object.Object, bool) {
	h, ok := v.Heap()
	if !ok {
		return nil, false
	}
	o, ok := h.(*object.Object)
	return o, ok
}

// resolveReceiverObject maps any Value to the Object whose C3 chain
// property lookup should search: the Object itself for a Reference to one,
// or the fixed built-in prototype standing in for a primitive kind's
// "class" otherwise. This is the generalization of the teacher's
// type-switch-per-Go-type dispatch in `send` into a single, uniform
// lookup path for every Value kind (SPEC_FULL.md §4 note).
func (vm *VM) resolveReceiverObject(recv value.Value) *object.Object {
	if h, ok := recv.Heap(); ok {
		if o, ok := h.(*object.Object); ok {
			return o
		}
		switch h.HeapKind() {
		case value.HeapString:
			return vm.Builtins.StringProto
		case value.HeapArray:
			return vm.Builtins.ArrayProto
		case value.HeapFunction:
			return vm.Builtins.FunctionProto
		default:
			return vm.Builtins.ObjectProto
		}
	}
	switch recv.Kind() {
	case value.KindInteger:
		return vm.Builtins.IntegerProto
	case value.KindBoolean:
		return vm.Builtins.BooleanProto
	case value.KindNothing:
		return vm.Builtins.NothingProto
	default:
		return vm.Builtins.ObjectProto
	}
}

func (vm *VM) lookupProperty(recv value.Value, name string) (object.Slot, error) {
	obj := vm.resolveReceiverObject(recv)
	if obj == nil {
		return nil, nil
	}
	slot, _, err := obj.Lookup(name)
	return slot, err
}
