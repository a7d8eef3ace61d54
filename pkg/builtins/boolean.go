package builtins

import (
	"fmt"

	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/value"
)

// installBoolean wires Boolean's block-dispatch methods (`ifTrue:`,
// `ifFalse:`, `ifTrue:ifFalse:`), invoking the zero-arg Function argument
// through inv.Invoke rather than a dedicated opcode, per spec.md's "no
// special control-flow bytecode" design (conditionals are ordinary message
// sends to a Boolean receiver).
func (l *Library) installBoolean() {
	l.def(l.BooleanProto, "not", nil, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		b, ok := self.Bool()
		if !ok {
			return wrongType(inv, "not: receiver is not a Boolean")
		}
		return value.Bool(!b), nil
	})

	l.def(l.BooleanProto, "ifTrue:", []code.ParameterDescriptor{param("block")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		b, ok := self.Bool()
		if !ok {
			return wrongType(inv, "ifTrue:: receiver is not a Boolean")
		}
		if !b {
			return value.Nothing(), nil
		}
		return inv.Invoke(args[0], nil)
	})

	l.def(l.BooleanProto, "ifFalse:", []code.ParameterDescriptor{param("block")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		b, ok := self.Bool()
		if !ok {
			return wrongType(inv, "ifFalse:: receiver is not a Boolean")
		}
		if b {
			return value.Nothing(), nil
		}
		return inv.Invoke(args[0], nil)
	})

	l.def(l.BooleanProto, "ifTrue:ifFalse:", []code.ParameterDescriptor{param("trueBlock"), param("falseBlock")},
		func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
			b, ok := self.Bool()
			if !ok {
				return wrongType(inv, "ifTrue:ifFalse:: receiver is not a Boolean")
			}
			if b {
				return inv.Invoke(args[0], nil)
			}
			return inv.Invoke(args[1], nil)
		})

	l.def(l.BooleanProto, "&", []code.ParameterDescriptor{param("other")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		a, ok := self.Bool()
		if !ok {
			return wrongType(inv, "&: receiver is not a Boolean")
		}
		b, ok := args[0].Bool()
		if !ok {
			return wrongType(inv, "&: argument is not a Boolean")
		}
		return value.Bool(a && b), nil
	})

	l.def(l.BooleanProto, "|", []code.ParameterDescriptor{param("other")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		a, ok := self.Bool()
		if !ok {
			return wrongType(inv, "|: receiver is not a Boolean")
		}
		b, ok := args[0].Bool()
		if !ok {
			return wrongType(inv, "|: argument is not a Boolean")
		}
		return value.Bool(a || b), nil
	})

	l.def(l.BooleanProto, "asString", nil, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		b, ok := self.Bool()
		if !ok {
			return wrongType(inv, "asString: receiver is not a Boolean")
		}
		return l.str(fmt.Sprintf("%t", b)), nil
	})
}
