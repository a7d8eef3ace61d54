// Package code defines September's compiled representation: opcodes and
// instructions, CodeBlocks, parameter descriptors, functions, and modules.
//
// Adapted from the teacher's pkg/bytecode/bytecode.go: the Opcode-as-byte
// and Instruction{Op, Operand} bit-packing idiom is kept; the opcode set
// itself is replaced with September's (PUSH_CONST/PUSH_LOCAL/STORE_LOCAL/
// CREATE_SLOT/FETCH_PROP/STORE_PROP/CALL/RETURN/CREATE_FUNC/branches/
// handler ops/RAISE/LAZY) in place of the teacher's Smalltalk message-send
// set (see DESIGN.md).
package code

import (
	"github.com/septvm/septvm/pkg/heap"
	"github.com/septvm/septvm/pkg/value"
)

// Opcode is a single bytecode operation.
type Opcode byte

const (
	OpPushConst Opcode = iota
	OpPushLocal
	OpStoreLocal
	OpCreateSlot
	OpFetchProp
	OpStoreProp
	OpCall
	OpReturn
	OpCreateFunc
	OpBranch
	OpBranchIf
	OpBranchIfNot
	OpPushHandler
	OpPopHandler
	OpRaise
	OpLazy
	OpPop
	OpDup
	OpPushSelf
	OpPushNothing
	OpPushTrue
	OpPushFalse
)

var opcodeNames = map[Opcode]string{
	OpPushConst:   "PUSH_CONST",
	OpPushLocal:   "PUSH_LOCAL",
	OpStoreLocal:  "STORE_LOCAL",
	OpCreateSlot:  "CREATE_SLOT",
	OpFetchProp:   "FETCH_PROP",
	OpStoreProp:   "STORE_PROP",
	OpCall:        "CALL",
	OpReturn:      "RETURN",
	OpCreateFunc:  "CREATE_FUNC",
	OpBranch:      "BRANCH",
	OpBranchIf:    "BRANCH_IF",
	OpBranchIfNot: "BRANCH_IFNOT",
	OpPushHandler: "PUSH_HANDLER",
	OpPopHandler:  "POP_HANDLER",
	OpRaise:       "RAISE",
	OpLazy:        "LAZY",
	OpPop:         "POP",
	OpDup:         "DUP",
	OpPushSelf:    "PUSH_SELF",
	OpPushNothing: "PUSH_NOTHING",
	OpPushTrue:    "PUSH_TRUE",
	OpPushFalse:   "PUSH_FALSE",
}

func (op Opcode) String() string {
	if n, ok := opcodeNames[op]; ok {
		return n
	}
	return "UNKNOWN"
}

// Instruction is one decoded bytecode op plus its operand. Operands that
// pack two fields (CALL's shape-index/argc) use the same
// shift-and-mask idiom as the teacher's OpSend selector/argc packing.
type Instruction struct {
	Op      Opcode
	Operand int32
}

// CallShapeShift/CallArgcMask pack a CALL instruction's operand into a call
// shape table index (high bits) and a literal argument count (low byte),
// mirroring bytecode.SelectorIndexShift/ArgCountMask from the teacher.
const (
	CallShapeShift = 8
	CallArgcMask   = 0xFF
)

func PackCall(shapeIndex, argc int) int32 {
	return int32(shapeIndex<<CallShapeShift | (argc & CallArgcMask))
}

func UnpackCall(operand int32) (shapeIndex, argc int) {
	o := int(operand)
	return o >> CallShapeShift, o & CallArgcMask
}

// ParamFlag describes a parameter's binding behavior.
type ParamFlag uint8

const (
	FlagLazy ParamFlag = 1 << iota
	FlagRest
	FlagNamedOnly
	FlagHasDefault
)

// ParameterDescriptor describes one formal parameter of a CodeBlock.
type ParameterDescriptor struct {
	Name    string
	Flags   ParamFlag
	Default int // index into the owning Module's Functions table producing
	// the default-value thunk; -1 if FlagHasDefault is unset.
}

func (p ParameterDescriptor) Is(f ParamFlag) bool { return p.Flags&f != 0 }

// CallShape records one call site's argument layout: Names[i] is "" for a
// positional argument in slot i, or the parameter name for a named
// argument, in the order values are pushed/popped.
type CallShape struct {
	Names []string
}

// CodeBlock is one compiled function/module body: instructions plus
// parameter descriptors. Constants are *not* stored per-block — every
// CodeBlock shares its owning Module's single constant pool (spec.md §6.1
// describes a module-wide constant pool; per-block pools would just
// duplicate entries referenced from multiple blocks in the same module).
type CodeBlock struct {
	heap.Header
	Name         string
	Instructions []Instruction
	Params       []ParameterDescriptor
	MaxStack     int
	CallShapes   []CallShape
	Module       *Module // plain Go pointer: CodeBlocks never outlive their
	// Module, and the Module's own Scope is already a GC root, so this link
	// need not itself be a markable Value edge.
}

// NewCodeBlock allocates an (initially empty) CodeBlock registered with mgr.
func NewCodeBlock(mgr Registrar, name string) *CodeBlock {
	cb := &CodeBlock{Header: heap.NewHeader(value.HeapCodeBlock), Name: name}
	mgr.Register(cb)
	return cb
}

func (cb *CodeBlock) References() []value.Value {
	// CodeBlocks reference no Values directly; their constants live on the
	// Module. Nothing here needs marking beyond what the Module's own
	// rootedness already guarantees.
	return nil
}

// Function is a closure: a CodeBlock paired with the Scope Object it was
// created under.
type Function struct {
	heap.Header
	Code    *CodeBlock
	Capture value.Value // Reference to the captured Scope Object
}

func NewFunction(mgr Registrar, cb *CodeBlock, capture value.Value) *Function {
	f := &Function{Header: heap.NewHeader(value.HeapFunction), Code: cb, Capture: capture}
	mgr.Register(f)
	return f
}

func (f *Function) References() []value.Value { return []value.Value{f.Capture} }

// NativeFunc is the signature of a built-in (Go-implemented) callable.
// Invoker lets natives call back into September (e.g. Array#do:).
type NativeFunc func(inv Invoker, self value.Value, args []value.Value) (value.Value, error)

// Invoker is the capability a NativeFunc needs to call back into September
// (Invoke) and to signal a language-level failure (Raise), without
// pkg/code depending on pkg/vm; both are satisfied by the same *vm.VM.
// Raise returns an error value a NativeFunc can return directly; the VM
// recognizes it and raises the corresponding September exception in the
// calling frame instead of treating it as a Go-level fault.
type Invoker interface {
	Invoke(fn value.Value, args []value.Value) (value.Value, error)
	Raise(class, message string) error
}

// BuiltinFunction is a Go-implemented callable installed by pkg/builtins.
type BuiltinFunction struct {
	heap.Header
	Name   string
	Params []ParameterDescriptor
	Fn     NativeFunc
}

func NewBuiltinFunction(mgr Registrar, name string, params []ParameterDescriptor, fn NativeFunc) *BuiltinFunction {
	b := &BuiltinFunction{Header: heap.NewHeader(value.HeapFunction), Name: name, Params: params, Fn: fn}
	mgr.Register(b)
	return b
}

func (b *BuiltinFunction) References() []value.Value { return nil }

// BoundMethod pairs a callable (Function or BuiltinFunction Value) with the
// receiver it was looked up on, so that a later CALL dispatches with the
// right `self`. Produced by object.methodSlot/builtinSlot's bind callback.
type BoundMethod struct {
	heap.Header
	Fn   value.Value
	Self value.Value
}

func (b *BoundMethod) References() []value.Value { return []value.Value{b.Fn, b.Self} }

// Registrar is the minimal heap.Manager surface code's constructors need.
type Registrar interface {
	Register(value.HeapObject)
}

// Binder returns an object.Slot-compatible bind callback (fn, self) ->
// BoundMethod Value, closing over mgr so pkg/object never needs to import
// pkg/heap itself for this one allocation.
func Binder(mgr Registrar) func(fn value.Value, self value.Value) value.Value {
	return func(fn value.Value, self value.Value) value.Value {
		bm := &BoundMethod{Header: heap.NewHeader(value.HeapFunction), Fn: fn, Self: self}
		mgr.Register(bm)
		return value.Ref(bm)
	}
}
