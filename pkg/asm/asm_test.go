package asm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/heap"
	"github.com/septvm/septvm/pkg/value"
)

func TestConstantDedupByIdentity(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	b := NewBuilder(mgr, "m")

	i1 := b.IntConstant(7)
	i2 := b.IntConstant(7)
	i3 := b.IntConstant(8)
	require.Equal(t, i1, i2)
	require.NotEqual(t, i1, i3)

	bo1 := b.BoolConstant(true)
	bo2 := b.BoolConstant(true)
	require.Equal(t, bo1, bo2)

	require.Len(t, b.Module().Constants, 3)
}

func TestStringConstantDoesNotDedupDistinctHeapObjects(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	b := NewBuilder(mgr, "m")

	s1 := b.StringConstant("hi")
	s2 := b.StringConstant("hi")
	require.NotEqual(t, s1, s2, "each heap.String allocation is a distinct Reference, never deduped by content")
}

func TestNameInterning(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	b := NewBuilder(mgr, "m")

	n1 := b.Name("foo")
	n2 := b.Name("bar")
	n3 := b.Name("foo")
	require.Equal(t, n1, n3)
	require.NotEqual(t, n1, n2)
	require.Equal(t, []string{"foo", "bar"}, b.Module().Names)
}

func TestBlockBuilderEmitAndPatch(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	b := NewBuilder(mgr, "m")
	bb := b.Block("main")

	branchAt := bb.EmitOperand(code.OpBranch, -1)
	require.Equal(t, int32(1), bb.Here(), "one instruction emitted so far")
	bb.Emit(code.OpPushNothing)
	target := bb.Here()
	bb.PatchOperand(branchAt, target)

	require.Equal(t, code.OpBranch, bb.Code().Instructions[branchAt].Op)
	require.Equal(t, target, bb.Code().Instructions[branchAt].Operand)
}

func TestAddCallShapePacksShapeIndexAndArgc(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	b := NewBuilder(mgr, "m")
	bb := b.Block("main")

	operand := bb.AddCallShape(code.CallShape{Names: []string{"a", "b"}})
	shapeIdx, argc := code.UnpackCall(operand)
	require.Equal(t, 0, shapeIdx)
	require.Equal(t, 2, argc)
	require.Equal(t, []code.CallShape{{Names: []string{"a", "b"}}}, bb.Code().CallShapes)

	operand2 := bb.AddCallShape(code.CallShape{})
	shapeIdx2, argc2 := code.UnpackCall(operand2)
	require.Equal(t, 1, shapeIdx2)
	require.Equal(t, 0, argc2)
}

func TestSetRootAndAddFunction(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	b := NewBuilder(mgr, "m")

	root := b.Block("main")
	b.SetRoot(root)
	require.Same(t, root.Code(), b.Module().Root)

	fn := b.Block("helper")
	idx := b.AddFunction(fn)
	require.Equal(t, int32(0), idx)
	require.Same(t, fn.Code(), b.Module().Functions[0])
}

// instructionOps extracts just the opcodes from a block, for asserting a
// cascade's emitted shape without pinning down constant/name indices.
func instructionOps(bb *BlockBuilder) []code.Opcode {
	ops := make([]code.Opcode, len(bb.Code().Instructions))
	for i, instr := range bb.Code().Instructions {
		ops[i] = instr.Op
	}
	return ops
}

func TestEmitCascadeZeroArgSends(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	b := NewBuilder(mgr, "m")
	bb := b.Block("main")

	bb.EmitOperand(code.OpPushConst, b.IntConstant(5))
	bb.EmitCascade([]CascadeSend{
		{Selector: "negate", Shape: code.CallShape{}},
		{Selector: "negate", Shape: code.CallShape{}},
	})

	ops := instructionOps(bb)
	require.Equal(t, []code.Opcode{
		code.OpPushConst,
		code.OpCreateSlot,
		code.OpStoreLocal,
		code.OpPushLocal,
		code.OpFetchProp,
		code.OpCall,
		code.OpPop,
		code.OpPushLocal,
		code.OpFetchProp,
		code.OpCall,
	}, ops, "every send but the last is followed by POP; the stashed receiver is re-read via PUSH_LOCAL before each FETCH_PROP")
}

func TestEmitCascadeWithArgumentBearingSend(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	b := NewBuilder(mgr, "m")
	bb := b.Block("main")

	bb.EmitOperand(code.OpPushConst, b.IntConstant(5))
	bb.EmitCascade([]CascadeSend{
		{
			Selector: "+",
			Shape:    code.CallShape{Names: []string{""}},
			EmitArgs: func(bb *BlockBuilder) {
				bb.EmitOperand(code.OpPushConst, b.IntConstant(1))
			},
		},
	})

	ops := instructionOps(bb)
	// args must be pushed before the receiver is re-read and fetched, so
	// that CALL's callee-on-top convention is satisfied.
	require.Equal(t, []code.Opcode{
		code.OpPushConst, // 5
		code.OpCreateSlot,
		code.OpStoreLocal,
		code.OpPushConst, // 1 (the argument)
		code.OpPushLocal, // receiver
		code.OpFetchProp,
		code.OpCall,
	}, ops)
}

func TestIntConstantProducesIntegerValue(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	b := NewBuilder(mgr, "m")
	idx := b.IntConstant(3)
	n, ok := b.Module().Constants[idx].Int()
	require.True(t, ok)
	require.Equal(t, int64(3), n)
}

func TestBoolConstantProducesBooleanValue(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	b := NewBuilder(mgr, "m")
	idx := b.BoolConstant(false)
	got, ok := b.Module().Constants[idx].Bool()
	require.True(t, ok)
	require.False(t, got)
}

func TestStringConstantWrapsHeapString(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	b := NewBuilder(mgr, "m")
	idx := b.StringConstant("hi")
	h, ok := b.Module().Constants[idx].Heap()
	require.True(t, ok)
	require.Equal(t, value.HeapString, h.HeapKind())
}
