// Package asm assembles pkg/code Modules programmatically: CodeBlocks,
// constants, names, and call shapes, built by explicit Emit calls rather
// than by walking an AST. The source-to-bytecode compiler is out of
// scope (spec.md §1) — this package is what test fixtures (pkg/asm's and
// pkg/vm's own tests) use instead to produce a Module to run; cmd/septvm
// does not use it and only loads encoded module files.
//
// Grounded on the teacher's pkg/compiler/compiler.go: the same
// emit-instruction / addConstant-dedup mechanics are kept, generalized
// from "walk an AST node, emit its instructions" to "caller explicitly
// sequences Emit calls" — there is no AST here to walk.
package asm

import (
	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/heap"
	"github.com/septvm/septvm/pkg/value"
)

// Builder assembles one Module: its constant pool, name table, root
// CodeBlock, and function table.
type Builder struct {
	mgr *heap.Manager
	mod *code.Module
}

func NewBuilder(mgr *heap.Manager, moduleName string) *Builder {
	return &Builder{mgr: mgr, mod: code.NewModule(moduleName)}
}

func (b *Builder) Module() *code.Module { return b.mod }

// Constant interns v in the module's constant pool, reusing an existing
// identical entry when possible (mirrors the teacher's addConstant dedup
// in compiler.go).
func (b *Builder) Constant(v value.Value) int32 {
	for i, c := range b.mod.Constants {
		if c.Identical(v) {
			return int32(i)
		}
	}
	return int32(b.mod.AddConstant(v))
}

func (b *Builder) IntConstant(n int64) int32     { return b.Constant(value.Int(n)) }
func (b *Builder) BoolConstant(v bool) int32     { return b.Constant(value.Bool(v)) }
func (b *Builder) StringConstant(s string) int32 {
	return b.Constant(value.Ref(heap.NewString(b.mgr, s)))
}

// Name interns name in the module's identifier table, for PUSH_LOCAL/
// STORE_LOCAL/CREATE_SLOT/FETCH_PROP/STORE_PROP operands.
func (b *Builder) Name(name string) int32 { return int32(b.mod.AddName(name)) }

// Block allocates a fresh, empty CodeBlock and returns a BlockBuilder to
// emit instructions into it. The caller decides whether it becomes the
// module's root (SetRoot) or a function-table entry (AddFunction).
func (b *Builder) Block(name string) *BlockBuilder {
	cb := code.NewCodeBlock(b.mgr, name)
	cb.Module = b.mod
	return &BlockBuilder{asm: b, cb: cb}
}

// SetRoot installs bb's CodeBlock as the module's root (top-level) body.
func (b *Builder) SetRoot(bb *BlockBuilder) { b.mod.Root = bb.cb }

// AddFunction installs bb's CodeBlock into the module's function table and
// returns its index, for CREATE_FUNC/LAZY operands to reference.
func (b *Builder) AddFunction(bb *BlockBuilder) int32 { return int32(b.mod.AddFunction(bb.cb)) }

// BlockBuilder accumulates one CodeBlock's parameters, call shapes, and
// instructions.
type BlockBuilder struct {
	asm *Builder
	cb  *code.CodeBlock
}

func (bb *BlockBuilder) Code() *code.CodeBlock { return bb.cb }

func (bb *BlockBuilder) SetParams(params []code.ParameterDescriptor) *BlockBuilder {
	bb.cb.Params = params
	return bb
}

func (bb *BlockBuilder) SetMaxStack(n int) *BlockBuilder {
	bb.cb.MaxStack = n
	return bb
}

func (bb *BlockBuilder) emit(op code.Opcode, operand int32) int {
	bb.cb.Instructions = append(bb.cb.Instructions, code.Instruction{Op: op, Operand: operand})
	return len(bb.cb.Instructions) - 1
}

// Emit appends a zero-operand instruction and returns its index.
func (bb *BlockBuilder) Emit(op code.Opcode) int { return bb.emit(op, 0) }

// EmitOperand appends an instruction carrying operand and returns its
// index, for later PatchOperand calls against forward branch targets.
func (bb *BlockBuilder) EmitOperand(op code.Opcode, operand int32) int { return bb.emit(op, operand) }

// PatchOperand rewrites a previously emitted instruction's operand —
// used to back-patch a forward BRANCH/BRANCH_IF/BRANCH_IFNOT once its
// target instruction pointer is known.
func (bb *BlockBuilder) PatchOperand(at int, operand int32) {
	bb.cb.Instructions[at].Operand = operand
}

// Here returns the instruction pointer the next Emit call will occupy.
func (bb *BlockBuilder) Here() int32 { return int32(len(bb.cb.Instructions)) }

// AddCallShape records shape as this block's next call site's argument
// layout and returns the packed CALL operand (shape index + argc).
func (bb *BlockBuilder) AddCallShape(shape code.CallShape) int32 {
	idx := len(bb.cb.CallShapes)
	bb.cb.CallShapes = append(bb.cb.CallShapes, shape)
	return code.PackCall(idx, len(shape.Names))
}

// CascadeSend is one message in a cascade chain: EmitArgs (if non-nil)
// emits whatever pushes this send's argument values, called before the
// stashed receiver is re-read and its selector fetched.
type CascadeSend struct {
	Selector string
	Shape    code.CallShape
	EmitArgs func(*BlockBuilder)
}

// EmitCascade emits a chain of sends to one receiver already on the
// operand stack, without re-evaluating it — the supplemented cascades
// feature (SPEC_FULL.md §8), grounded in the original interpreter's
// message-chaining support. CALL always pops its callee off the top of
// the stack and its arguments from beneath it (pkg/vm/ops.go's OpCall
// case), so an argument-bearing send cannot simply DUP the receiver:
// any EmitArgs push would land between the duplicate and CALL, burying
// the callee under its own arguments. Instead the receiver is stashed
// in a synthetic local once, then re-read before every send — the same
// args-then-receiver-then-FETCH_PROP order a plain (non-cascaded) send
// uses. Every send but the last is followed by a POP discarding its
// result; the last send's result becomes the cascade's overall value.
func (bb *BlockBuilder) EmitCascade(sends []CascadeSend) {
	recvName := bb.asm.Name("$cascadeReceiver")
	bb.EmitOperand(code.OpCreateSlot, recvName)
	bb.EmitOperand(code.OpStoreLocal, recvName)

	for i, send := range sends {
		last := i == len(sends)-1
		if send.EmitArgs != nil {
			send.EmitArgs(bb)
		}
		bb.EmitOperand(code.OpPushLocal, recvName)
		nameIdx := bb.asm.Name(send.Selector)
		bb.EmitOperand(code.OpFetchProp, nameIdx)
		shapeOperand := bb.AddCallShape(send.Shape)
		bb.EmitOperand(code.OpCall, shapeOperand)
		if !last {
			bb.Emit(code.OpPop)
		}
	}
}
