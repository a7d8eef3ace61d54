// Package exception implements September's built-in exception taxonomy:
// a root Exception prototype plus one child prototype per well-known
// exception class, and helpers to construct exception instances.
//
// Grounded on the teacher's RuntimeError (pkg/vm/errors.go) for the
// error-carrying shape, reworked from a Go error value into a September
// heap Object with `class` and `message` slots, per spec.md §4.5/GLOSSARY.
package exception

import (
	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/heap"
	"github.com/septvm/septvm/pkg/object"
	"github.com/septvm/septvm/pkg/value"
)

// Raised wraps a September exception Value as a Go error, the convention
// built-in natives use to signal a language-level exception (as opposed to
// a Go-level fault) back to the interpreter.
type Raised struct {
	Value value.Value
}

func (r *Raised) Error() string { return "september exception raised" }

// Well-known exception class names, per spec.md's exception taxonomy.
// Aliased to pkg/code's constants (the canonical copy, kept there so
// pkg/builtins can name a class without importing this heavier package)
// rather than redeclared, so the two packages can never drift apart.
const (
	EInternal          = code.EInternal
	EWrongType         = code.EWrongType
	EWrongArguments    = code.EWrongArguments
	EMissingProperty   = code.EMissingProperty
	ECannotLinearize   = code.ECannotLinearize
	EOutOfMemory       = code.EOutOfMemory
	ENumeric           = code.ENumeric
	ENotImplementedYet = code.ENotImplementedYet
	EMalformedModule   = code.EMalformedModule
	EUnexpectedEOF     = code.EUnexpectedEOF
	EFileNotFound      = code.EFileNotFound
	ENativeModuleError = code.ENativeModuleError
)

var allClasses = code.AllExceptionClasses

// Taxonomy wires together the root Exception prototype and every
// well-known exception class prototype, each a plain object.Object whose
// instances carry `class` and `message` fields.
type Taxonomy struct {
	mgr     *heap.Manager
	Root    *object.Object
	Classes map[string]*object.Object

	// OOM is a preallocated EOutOfMemory instance, used on the allocation-
	// failure path where allocating a fresh exception object would itself
	// risk failing (spec.md §4.1 Failure / §7).
	OOM value.Value

	// MakeString produces a September String Value from Go text for the
	// `message` field. Wired by pkg/vm.New (to pkg/builtins' NewStringValue)
	// after both the taxonomy and
	// the String prototype exist (pkg/builtins and pkg/exception would
	// otherwise form an import cycle), nil until then.
	MakeString func(string) value.Value
}

// New builds the full taxonomy, rooted under objectProto (the builtins'
// root Object prototype), registering every prototype object with mgr.
func New(mgr *heap.Manager, objectProto *object.Object) *Taxonomy {
	t := &Taxonomy{mgr: mgr, Classes: make(map[string]*object.Object)}

	t.Root = object.New(mgr)
	if objectProto != nil {
		t.Root.SetPrototypes([]value.Value{value.Ref(objectProto)})
	}
	t.Root.DefineField("message", value.Nothing())
	t.Root.DefineField("class", value.Nothing())

	for _, name := range allClasses {
		cls := object.New(mgr)
		cls.SetPrototypes([]value.Value{value.Ref(t.Root)})
		cls.DefineReadOnlyField("name", value.Nothing())
		t.Classes[name] = cls
	}

	t.OOM = t.New(EOutOfMemory, "out of memory")
	return t
}

// New constructs a new exception instance of the given class with message,
// as a fresh Object prototyped on Classes[class].
func (t *Taxonomy) New(class string, message string) value.Value {
	cls, ok := t.Classes[class]
	if !ok {
		cls = t.Root
	}
	inst := object.New(t.mgr)
	inst.SetPrototypes([]value.Value{value.Ref(cls)})
	inst.DefineField("message", t.stringMessage(message))
	inst.DefineField("class", value.Nothing())
	return value.Ref(inst)
}

func (t *Taxonomy) stringMessage(s string) value.Value {
	if t.MakeString != nil {
		return t.MakeString(s)
	}
	return value.Nothing()
}

// IsException reports whether v's heap object is (transitively) prototyped
// on the exception Root.
func (t *Taxonomy) IsException(v value.Value) bool {
	h, ok := v.Heap()
	if !ok {
		return false
	}
	obj, ok := h.(*object.Object)
	if !ok {
		return false
	}
	chain, err := obj.Linearize()
	if err != nil {
		return false
	}
	for _, anc := range chain {
		if anc == t.Root {
			return true
		}
	}
	return false
}
