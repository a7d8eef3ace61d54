package builtins

import (
	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/value"
)

// installFunction wires `force` (DESIGN.md Open Question 1: forcing the
// same lazy parameter twice evaluates its thunk twice — no engine-level
// memoization; a September-level caller that wants the result cached
// writes that caching itself) and `call` (ordinary invocation with an
// explicit argument list, for passing a Function as a first-class value
// rather than calling it through CALL directly).
func (l *Library) installFunction() {
	l.def(l.FunctionProto, "force", nil, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		if _, ok := self.Heap(); !ok {
			return wrongType(inv, "force: receiver is not a Function")
		}
		return inv.Invoke(self, nil)
	})

	l.def(l.FunctionProto, "call", []code.ParameterDescriptor{restParam("args")}, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		arr, ok := asHeapArray(args[0])
		if !ok {
			return inv.Invoke(self, nil)
		}
		return inv.Invoke(self, arr.Elements)
	})

	l.def(l.FunctionProto, "asString", nil, func(inv code.Invoker, self value.Value, args []value.Value) (value.Value, error) {
		return l.str(self.String()), nil
	})
}
