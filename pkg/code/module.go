package code

import "github.com/septvm/septvm/pkg/value"

// Module is the in-memory form of one loaded September module: a root
// CodeBlock (the module body), a table of child CodeBlocks (function
// bodies, addressed by index from CREATE_FUNC/LAZY), a shared constant
// pool, and the module-level Scope Object every top-level binding lives on.
//
// Module itself is not a heap.HeapObject: it is not a September Value, it
// is VM/host-side bookkeeping. Its Scope field is what actually needs GC
// rootedness, and the VM registers each loaded Module's Scope as a root
// directly (spec.md §5: "the module-level Scope of every loaded module" is
// a GC root).
type Module struct {
	Name      string
	Root      *CodeBlock
	Functions []*CodeBlock
	Constants []value.Value
	// Names holds identifier strings referenced by PUSH_LOCAL/STORE_LOCAL/
	// CREATE_SLOT/FETCH_PROP/STORE_PROP operands. Kept separate from
	// Constants so that looking up a property name never requires a heap
	// String allocation at compile/assembly time.
	Names []string
	Scope value.Value // Reference to the module-level Scope Object

	// PendingFunctionRefs lists constant-pool slots a moduleformat decode
	// left as a Nothing placeholder because building the real Function
	// Value requires this Module's Scope, which does not exist until the
	// VM assigns one (see pkg/vm.VM.LoadModule). Empty for modules built
	// directly by pkg/asm, which can fill in such constants immediately.
	PendingFunctionRefs []PendingFunctionRef
}

// PendingFunctionRef records a constant-pool slot that should become a
// Function bound to this Module's Scope, closing over Functions[FuncIndex],
// once that Scope exists.
type PendingFunctionRef struct {
	ConstIndex int
	FuncIndex  int
}

// NewModule creates an empty Module shell; Root/Functions/Constants/Scope
// are filled in by the loader (pkg/moduleformat) or by pkg/asm for test
// fixtures.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// AddConstant appends v to the module's constant pool and returns its index.
func (m *Module) AddConstant(v value.Value) int {
	m.Constants = append(m.Constants, v)
	return len(m.Constants) - 1
}

// AddFunction appends a child CodeBlock to the function table and returns
// its index, for CREATE_FUNC/LAZY operands to reference.
func (m *Module) AddFunction(cb *CodeBlock) int {
	cb.Module = m
	m.Functions = append(m.Functions, cb)
	return len(m.Functions) - 1
}

// AddName interns name in the module's identifier table and returns its
// index, for PUSH_LOCAL/STORE_LOCAL/CREATE_SLOT/FETCH_PROP/STORE_PROP
// operands. Reuses an existing entry for the same name instead of
// duplicating it.
func (m *Module) AddName(name string) int {
	for i, n := range m.Names {
		if n == name {
			return i
		}
	}
	m.Names = append(m.Names, name)
	return len(m.Names) - 1
}
