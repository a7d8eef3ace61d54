package builtins

import (
	"strconv"
	"strings"

	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/value"
)

// installString wires String's concatenation/length/indexing/conversion
// methods, grounded on the teacher's primitives.go string selectors,
// operating on the immutable heap.String payload directly.
func (l *Library) installString() {
	l.def(l.StringProto, "+", []code.ParameterDescriptor{param("other")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		a, ok := asHeapString(self)
		if !ok {
			return wrongType(inv, "+: receiver is not a String")
		}
		b, ok := asHeapString(args[0])
		if !ok {
			return wrongType(inv, "+: argument is not a String")
		}
		return l.str(a.Text + b.Text), nil
	})

	l.def(l.StringProto, "length", nil, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		s, ok := asHeapString(self)
		if !ok {
			return wrongType(inv, "length: receiver is not a String")
		}
		return value.Int(int64(s.Len())), nil
	})

	l.def(l.StringProto, "at:", []code.ParameterDescriptor{param("index")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		s, ok := asHeapString(self)
		if !ok {
			return wrongType(inv, "at:: receiver is not a String")
		}
		idx, ok := args[0].Int()
		if !ok || idx < 0 || int(idx) >= len(s.Text) {
			return value.Nothing(), inv.Raise(code.EWrongArguments, "at:: index out of range")
		}
		return l.str(string(s.Text[idx])), nil
	})

	l.def(l.StringProto, "asInteger", nil, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		s, ok := asHeapString(self)
		if !ok {
			return wrongType(inv, "asInteger: receiver is not a String")
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s.Text), 10, 64)
		if err != nil {
			return value.Nothing(), inv.Raise(code.ENumeric, "asInteger: not a valid integer: "+s.Text)
		}
		return value.Int(n), nil
	})

	l.def(l.StringProto, "=", []code.ParameterDescriptor{param("other")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		a, ok := asHeapString(self)
		if !ok {
			return value.Bool(false), nil
		}
		b, ok := asHeapString(args[0])
		if !ok {
			return value.Bool(false), nil
		}
		return value.Bool(a.Text == b.Text), nil
	})

	l.def(l.StringProto, "asString", nil, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		return self, nil
	})
}
