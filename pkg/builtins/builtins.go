// Package builtins installs September's built-in prototype method library:
// the arithmetic/comparison/indexing operations spec.md treats as an
// external collaborator but that the VM needs wired in to run any program
// at all.
//
// Grounded on the teacher's pkg/vm/primitives.go: the same operations
// (Integer arithmetic, Boolean block dispatch, String/Array indexing) are
// implemented here, generalized from "selector string handled inline in
// send's big switch" to "NativeFunc installed as a builtin slot on a
// prototype object", so every call goes through the same C3 lookup as
// user-defined methods instead of a hardcoded type switch.
package builtins

import (
	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/heap"
	"github.com/septvm/septvm/pkg/object"
	"github.com/septvm/septvm/pkg/value"
)

// Library holds every built-in prototype, one per primitive kind plus the
// shared root Object prototype every other proto — and every user-defined
// object — ultimately traces back to through C3 linearization.
type Library struct {
	mgr  *heap.Manager
	bind func(value.Value, value.Value) value.Value

	ObjectProto   *object.Object
	IntegerProto  *object.Object
	BooleanProto  *object.Object
	NothingProto  *object.Object
	StringProto   *object.Object
	ArrayProto    *object.Object
	FunctionProto *object.Object
}

// Install builds the full prototype library, rooted at ObjectProto, and
// registers every prototype with mgr.
func Install(mgr *heap.Manager) *Library {
	l := &Library{mgr: mgr, bind: code.Binder(mgr)}

	l.ObjectProto = object.New(mgr)
	l.IntegerProto = object.New(mgr)
	l.BooleanProto = object.New(mgr)
	l.NothingProto = object.New(mgr)
	l.StringProto = object.New(mgr)
	l.ArrayProto = object.New(mgr)
	l.FunctionProto = object.New(mgr)

	root := value.Ref(l.ObjectProto)
	for _, p := range []*object.Object{
		l.IntegerProto, l.BooleanProto, l.NothingProto,
		l.StringProto, l.ArrayProto, l.FunctionProto,
	} {
		p.SetPrototypes([]value.Value{root})
	}

	l.installObject()
	l.installInteger()
	l.installBoolean()
	l.installNothing()
	l.installString()
	l.installArray()
	l.installFunction()

	return l
}

// NewStringValue wraps Go text as a September String Value on the library's
// heap. Wired into pkg/exception.Taxonomy.MakeString, since pkg/exception
// can't construct one itself without importing pkg/builtins and creating a
// cycle (pkg/builtins would need pkg/exception's class constants, which
// live in pkg/code precisely to avoid that).
func (l *Library) NewStringValue(s string) value.Value {
	return value.Ref(heap.NewString(l.mgr, s))
}

// def installs a NativeFunc as a builtin method on proto.
func (l *Library) def(proto *object.Object, name string, params []code.ParameterDescriptor, fn code.NativeFunc) {
	bf := code.NewBuiltinFunction(l.mgr, name, params, fn)
	proto.DefineBuiltin(name, value.Ref(bf), l.bind)
}

func param(name string) code.ParameterDescriptor {
	return code.ParameterDescriptor{Name: name, Default: -1}
}

func restParam(name string) code.ParameterDescriptor {
	return code.ParameterDescriptor{Name: name, Flags: code.FlagRest, Default: -1}
}

func (l *Library) str(s string) value.Value { return l.NewStringValue(s) }

func wrongType(inv code.Invoker, message string) (value.Value, error) {
	return value.Nothing(), inv.Raise(code.EWrongType, message)
}

func asObject(v value.Value) (*object.Object, bool) {
	h, ok := v.Heap()
	if !ok {
		return nil, false
	}
	o, ok := h.(*object.Object)
	return o, ok
}

func asHeapString(v value.Value) (*heap.String, bool) {
	h, ok := v.Heap()
	if !ok {
		return nil, false
	}
	s, ok := h.(*heap.String)
	return s, ok
}

func asHeapArray(v value.Value) (*heap.Array, bool) {
	h, ok := v.Heap()
	if !ok {
		return nil, false
	}
	a, ok := h.(*heap.Array)
	return a, ok
}
