package moduleformat

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/septvm/septvm/pkg/code"
	"github.com/septvm/septvm/pkg/heap"
	"github.com/septvm/septvm/pkg/value"
)

func buildSampleModule(mgr *heap.Manager) *code.Module {
	mod := code.NewModule("sample")
	xName := mod.AddName("x")
	plusName := mod.AddName("+")

	mod.AddConstant(value.Int(41))
	mod.AddConstant(value.Bool(true))
	mod.AddConstant(value.Nothing())
	strIdx := mod.AddConstant(value.Ref(heap.NewString(mgr, "hello")))
	_ = strIdx

	root := code.NewCodeBlock(mgr, "main")
	root.Module = mod
	root.MaxStack = 4
	root.Params = []code.ParameterDescriptor{{Name: "arg", Flags: code.FlagHasDefault, Default: 0}}
	shapeIdx := len(root.CallShapes)
	root.CallShapes = append(root.CallShapes, code.CallShape{Names: []string{""}})
	root.Instructions = []code.Instruction{
		{Op: code.OpPushConst, Operand: 0},
		{Op: code.OpCreateSlot, Operand: xName},
		{Op: code.OpStoreLocal, Operand: xName},
		{Op: code.OpPushLocal, Operand: xName},
		{Op: code.OpFetchProp, Operand: plusName},
		{Op: code.OpCall, Operand: code.PackCall(shapeIdx, 1)},
		{Op: code.OpReturn},
	}
	mod.Root = root

	fn := code.NewCodeBlock(mgr, "helper")
	fn.Module = mod
	fn.Instructions = []code.Instruction{{Op: code.OpPushNothing}, {Op: code.OpReturn}}
	mod.AddFunction(fn)

	return mod
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	mod := buildSampleModule(mgr)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, mod))

	got, err := Decode(&buf, mgr)
	require.NoError(t, err)

	require.Equal(t, mod.Name, got.Name)
	require.Equal(t, mod.Names, got.Names)
	require.Len(t, got.Constants, len(mod.Constants))

	n, ok := got.Constants[0].Int()
	require.True(t, ok)
	require.Equal(t, int64(41), n)

	b, ok := got.Constants[1].Bool()
	require.True(t, ok)
	require.True(t, b)

	require.True(t, got.Constants[2].IsNothing())

	h, ok := got.Constants[3].Heap()
	require.True(t, ok)
	str, ok := h.(*heap.String)
	require.True(t, ok)
	require.Equal(t, "hello", str.Text)

	require.Equal(t, mod.Root.Name, got.Root.Name)
	require.Equal(t, mod.Root.MaxStack, got.Root.MaxStack)
	require.Equal(t, mod.Root.Params, got.Root.Params)
	require.Equal(t, mod.Root.CallShapes, got.Root.CallShapes)
	require.Equal(t, mod.Root.Instructions, got.Root.Instructions)

	require.Len(t, got.Functions, 1)
	require.Equal(t, mod.Functions[0].Instructions, got.Functions[0].Instructions)
}

func TestEncodeDecodeFunctionRefConstant(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	mod := code.NewModule("withfunc")

	fn := code.NewCodeBlock(mgr, "inner")
	fn.Module = mod
	fn.Instructions = []code.Instruction{{Op: code.OpReturn}}
	fnIdx := mod.AddFunction(fn)

	closure := code.NewFunction(mgr, fn, value.Nothing())
	constIdx := mod.AddConstant(value.Ref(closure))

	root := code.NewCodeBlock(mgr, "main")
	root.Module = mod
	root.Instructions = []code.Instruction{{Op: code.OpReturn}}
	mod.Root = root

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, mod))

	got, err := Decode(&buf, mgr)
	require.NoError(t, err)

	require.True(t, got.Constants[constIdx].IsNothing(), "a Function constant decodes as a pending placeholder")
	require.Len(t, got.PendingFunctionRefs, 1)
	require.Equal(t, constIdx, got.PendingFunctionRefs[0].ConstIndex)
	require.Equal(t, fnIdx, got.PendingFunctionRefs[0].FuncIndex)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	buf := bytes.NewBufferString("NOPE....")

	_, err := Decode(buf, mgr)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMalformed))
}

func TestDecodeRejectsTruncatedStream(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	mod := buildSampleModule(mgr)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, mod))

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()/2])
	_, err := Decode(truncated, mgr)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTruncated))
}

func TestDecodeRejectsMissingFooter(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	mod := buildSampleModule(mgr)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, mod))
	full := buf.Bytes()
	corrupted := append([]byte{}, full[:len(full)-4]...)
	corrupted = append(corrupted, []byte("OOPS")...)

	_, err := Decode(bytes.NewReader(corrupted), mgr)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMalformed))
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	mgr := heap.NewManager(heap.DefaultThreshold)
	mod := buildSampleModule(mgr)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, mod))
	raw := buf.Bytes()
	raw[4] = 0xFF // version low byte, right after the 4-byte magic

	_, err := Decode(bytes.NewReader(raw), mgr)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMalformed))
}
