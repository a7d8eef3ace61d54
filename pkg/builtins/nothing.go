package builtins

import (
	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/value"
)

// installNothing wires the singleton Nothing value's minimal surface: it is
// otherwise just an empty receiver at the bottom of its own one-member
// prototype chain (rooted on ObjectProto).
func (l *Library) installNothing() {
	l.def(l.NothingProto, "asString", nil, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		return l.str("nothing"), nil
	})

	l.def(l.NothingProto, "=", []code.ParameterDescriptor{param("other")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		return value.Bool(args[0].IsNothing()), nil
	})
}
