package builtins

import (
	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/value"
)

// installArray wires Array's sizing/indexing/iteration methods, grounded on
// the teacher's primitives.go collection selectors and heap.Array's
// push/pop/get/set container operations. `do:` is the one method here that
// calls back into September via inv.Invoke, exercising the native-call
// re-entrancy path (vm.Invoke) the same way Boolean's block dispatch does.
func (l *Library) installArray() {
	l.def(l.ArrayProto, "size", nil, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		a, ok := asHeapArray(self)
		if !ok {
			return wrongType(inv, "size: receiver is not an Array")
		}
		return value.Int(int64(a.Len())), nil
	})

	l.def(l.ArrayProto, "at:", []code.ParameterDescriptor{param("index")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		a, ok := asHeapArray(self)
		if !ok {
			return wrongType(inv, "at:: receiver is not an Array")
		}
		idx, ok := args[0].Int()
		if !ok {
			return wrongType(inv, "at:: index is not an Integer")
		}
		v, ok := a.Get(int(idx))
		if !ok {
			return value.Nothing(), inv.Raise(code.EWrongArguments, "at:: index out of range")
		}
		return v, nil
	})

	l.def(l.ArrayProto, "at:put:", []code.ParameterDescriptor{param("index"), param("value")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		a, ok := asHeapArray(self)
		if !ok {
			return wrongType(inv, "at:put:: receiver is not an Array")
		}
		idx, ok := args[0].Int()
		if !ok {
			return wrongType(inv, "at:put:: index is not an Integer")
		}
		if !a.Set(int(idx), args[1]) {
			return value.Nothing(), inv.Raise(code.EWrongArguments, "at:put:: index out of range")
		}
		return args[1], nil
	})

	l.def(l.ArrayProto, "append:", []code.ParameterDescriptor{param("value")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		a, ok := asHeapArray(self)
		if !ok {
			return wrongType(inv, "append:: receiver is not an Array")
		}
		a.Push(args[0])
		return self, nil
	})

	l.def(l.ArrayProto, "do:", []code.ParameterDescriptor{param("block")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		a, ok := asHeapArray(self)
		if !ok {
			return wrongType(inv, "do:: receiver is not an Array")
		}
		for i := 0; i < a.Len(); i++ {
			v, _ := a.Get(i)
			if _, err := inv.Invoke(args[0], []value.Value{v}); err != nil {
				return value.Nothing(), err
			}
		}
		return self, nil
	})

	l.def(l.ArrayProto, "asString", nil, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		return l.str(self.String()), nil
	})
}
