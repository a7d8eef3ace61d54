package builtins

import (
	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/heap"
	"github.com/septvm/septvm/pkg/value"
)

// installObject wires the root prototype's identity/reflection methods.
// `keys`/`each:` are the supplemented reflective property enumeration
// feature (SPEC_FULL.md §8), built on Object.Slots()'s insertion-order
// guarantee.
func (l *Library) installObject() {
	l.def(l.ObjectProto, "keys", nil, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		obj, ok := asObject(self)
		if !ok {
			return wrongType(inv, "keys: receiver is not an Object")
		}
		arr := heap.NewArray(l.mgr)
		for _, name := range obj.Slots() {
			arr.Push(l.str(name))
		}
		return value.Ref(arr), nil
	})

	l.def(l.ObjectProto, "each:", []code.ParameterDescriptor{param("block")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		obj, ok := asObject(self)
		if !ok {
			return wrongType(inv, "each:: receiver is not an Object")
		}
		for _, name := range obj.Slots() {
			if _, err := inv.Invoke(args[0], []value.Value{l.str(name)}); err != nil {
				return value.Nothing(), err
			}
		}
		return self, nil
	})

	l.def(l.ObjectProto, "=", []code.ParameterDescriptor{param("other")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		return value.Bool(self.Identical(args[0])), nil
	})

	l.def(l.ObjectProto, "~=", []code.ParameterDescriptor{param("other")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		return value.Bool(!self.Identical(args[0])), nil
	})

	l.def(l.ObjectProto, "asString", nil, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		return l.str(self.String()), nil
	})
}
