package builtins

import (
	"fmt"

	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/value"
)

// installInteger wires Integer's arithmetic and comparison methods, grounded
// on the teacher's primitives.go numeric selector handling (`+`, `-`, `*`,
// `/`, `<`, `>`, etc.), generalized into builtin slots on IntegerProto.
func (l *Library) installInteger() {
	arith := func(name string, op func(a, b int64) int64) {
		l.def(l.IntegerProto, name, []code.ParameterDescriptor{param("other")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
			a, ok := self.Int()
			if !ok {
				return wrongType(inv, name+": receiver is not an Integer")
			}
			b, ok := args[0].Int()
			if !ok {
				return wrongType(inv, name+": argument is not an Integer")
			}
			return value.Int(op(a, b)), nil
		})
	}
	arith("+", func(a, b int64) int64 { return a + b })
	arith("-", func(a, b int64) int64 { return a - b })
	arith("*", func(a, b int64) int64 { return a * b })

	l.def(l.IntegerProto, "/", []code.ParameterDescriptor{param("other")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		a, ok := self.Int()
		if !ok {
			return wrongType(inv, "/: receiver is not an Integer")
		}
		b, ok := args[0].Int()
		if !ok {
			return wrongType(inv, "/: argument is not an Integer")
		}
		if b == 0 {
			return value.Nothing(), inv.Raise(code.ENumeric, "division by zero")
		}
		return value.Int(a / b), nil
	})

	l.def(l.IntegerProto, "%", []code.ParameterDescriptor{param("other")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		a, ok := self.Int()
		if !ok {
			return wrongType(inv, "%: receiver is not an Integer")
		}
		b, ok := args[0].Int()
		if !ok {
			return wrongType(inv, "%: argument is not an Integer")
		}
		if b == 0 {
			return value.Nothing(), inv.Raise(code.ENumeric, "modulo by zero")
		}
		return value.Int(a % b), nil
	})

	cmp := func(name string, op func(a, b int64) bool) {
		l.def(l.IntegerProto, name, []code.ParameterDescriptor{param("other")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
			a, ok := self.Int()
			if !ok {
				return wrongType(inv, name+": receiver is not an Integer")
			}
			b, ok := args[0].Int()
			if !ok {
				return value.Bool(false), nil
			}
			return value.Bool(op(a, b)), nil
		})
	}
	cmp("<", func(a, b int64) bool { return a < b })
	cmp(">", func(a, b int64) bool { return a > b })
	cmp("<=", func(a, b int64) bool { return a <= b })
	cmp(">=", func(a, b int64) bool { return a >= b })
	cmp("=", func(a, b int64) bool { return a == b })
	cmp("~=", func(a, b int64) bool { return a != b })

	l.def(l.IntegerProto, "negate", nil, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		a, ok := self.Int()
		if !ok {
			return wrongType(inv, "negate: receiver is not an Integer")
		}
		return value.Int(-a), nil
	})

	l.def(l.IntegerProto, "asString", nil, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		a, ok := self.Int()
		if !ok {
			return wrongType(inv, "asString: receiver is not an Integer")
		}
		return l.str(fmt.Sprintf("%d", a)), nil
	})
}
