package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeHeapObject struct {
	kind   HeapKind
	marked bool
}

func (f *fakeHeapObject) HeapKind() HeapKind  { return f.kind }
func (f *fakeHeapObject) Marked() bool        { return f.marked }
func (f *fakeHeapObject) SetMarked(b bool)    { f.marked = b }
func (f *fakeHeapObject) References() []Value { return nil }

func TestValueConstructorsAndAccessors(t *testing.T) {
	i := Int(42)
	require.True(t, i.IsInteger())
	n, ok := i.Int()
	require.True(t, ok)
	require.Equal(t, int64(42), n)

	b := Bool(true)
	require.True(t, b.IsBoolean())
	bv, ok := b.Bool()
	require.True(t, ok)
	require.True(t, bv)

	noth := Nothing()
	require.True(t, noth.IsNothing())

	obj := &fakeHeapObject{kind: HeapObjectKind}
	ref := Ref(obj)
	require.True(t, ref.IsReference())
	got, ok := ref.Heap()
	require.True(t, ok)
	require.Same(t, obj, got)
}

func TestRefOfNilIsNothing(t *testing.T) {
	var obj *fakeHeapObject
	v := Ref(obj)
	require.True(t, v.IsNothing(), "Ref(nil) must collapse to Nothing, not a nil Reference")
}

func TestTruthyOnlyFalseIsFalsy(t *testing.T) {
	require.False(t, Bool(false).Truthy())
	require.True(t, Bool(true).Truthy())
	require.True(t, Nothing().Truthy())
	require.True(t, Int(0).Truthy())
}

func TestIdentical(t *testing.T) {
	require.True(t, Int(1).Identical(Int(1)))
	require.False(t, Int(1).Identical(Int(2)))
	require.False(t, Int(1).Identical(Bool(true)))
	require.True(t, Nothing().Identical(Nothing()))

	a := &fakeHeapObject{}
	b := &fakeHeapObject{}
	require.True(t, Ref(a).Identical(Ref(a)))
	require.False(t, Ref(a).Identical(Ref(b)))
}

func TestAccessorsReturnFalseForWrongKind(t *testing.T) {
	v := Bool(true)
	_, ok := v.Int()
	require.False(t, ok)

	i := Int(1)
	_, ok = i.Bool()
	require.False(t, ok)

	_, ok = i.Heap()
	require.False(t, ok)
}

func TestValueString(t *testing.T) {
	require.Equal(t, "42", Int(42).String())
	require.Equal(t, "true", Bool(true).String())
	require.Equal(t, "nothing", Nothing().String())
}
