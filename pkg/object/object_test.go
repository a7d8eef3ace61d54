package object

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/septvm/septvm/pkg/heap"
	"github.com/septvm/septvm/pkg/value"
)

type noopInvoker struct{}

func (noopInvoker) Invoke(fn value.Value, args []value.Value) (value.Value, error) {
	return value.Nothing(), nil
}

func newMgr() *heap.Manager { return heap.NewManager(heap.DefaultThreshold) }

func TestFieldSlotReadWrite(t *testing.T) {
	mgr := newMgr()
	o := New(mgr)
	o.DefineField("x", value.Int(1))

	s, owner, err := o.Lookup("x")
	require.NoError(t, err)
	require.Same(t, o, owner)

	got, err := s.Read(value.Ref(o), noopInvoker{})
	require.NoError(t, err)
	require.Equal(t, int64(1), mustInt(t, got))

	ok, err := s.Write(value.Ref(o), value.Int(2), noopInvoker{})
	require.NoError(t, err)
	require.True(t, ok)

	got, _ = s.Read(value.Ref(o), noopInvoker{})
	require.Equal(t, int64(2), mustInt(t, got))
}

func TestReadOnlyFieldRefusesWrite(t *testing.T) {
	mgr := newMgr()
	o := New(mgr)
	o.DefineReadOnlyField("pi", value.Int(3))

	s, _, _ := o.Lookup("pi")
	ok, err := s.Write(value.Ref(o), value.Int(4), noopInvoker{})
	require.NoError(t, err)
	require.False(t, ok)
}

func mustInt(t *testing.T, v value.Value) int64 {
	t.Helper()
	n, ok := v.Int()
	require.True(t, ok)
	return n
}

// TestLinearizeSingleInheritance exercises a plain prototype chain with no
// diamond: child -> parent -> grandparent.
func TestLinearizeSingleInheritance(t *testing.T) {
	mgr := newMgr()
	grandparent := New(mgr)
	parent := New(mgr)
	parent.SetPrototypes([]value.Value{value.Ref(grandparent)})
	child := New(mgr)
	child.SetPrototypes([]value.Value{value.Ref(parent)})

	chain, err := child.Linearize()
	require.NoError(t, err)
	require.Equal(t, []*Object{child, parent, grandparent}, chain)
}

// TestLinearizeDiamond builds the classic diamond (D -> B, C; B, C -> A) and
// checks the C3 merge keeps B before C (declaration order) and A last.
func TestLinearizeDiamond(t *testing.T) {
	mgr := newMgr()
	a := New(mgr)
	b := New(mgr)
	b.SetPrototypes([]value.Value{value.Ref(a)})
	c := New(mgr)
	c.SetPrototypes([]value.Value{value.Ref(a)})
	d := New(mgr)
	d.SetPrototypes([]value.Value{value.Ref(b), value.Ref(c)})

	chain, err := d.Linearize()
	require.NoError(t, err)
	require.Equal(t, []*Object{d, b, c, a}, chain)
}

func TestLookupFindsInheritedSlot(t *testing.T) {
	mgr := newMgr()
	base := New(mgr)
	base.DefineField("greeting", value.Int(1))
	derived := New(mgr)
	derived.SetPrototypes([]value.Value{value.Ref(base)})

	s, owner, err := derived.Lookup("greeting")
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Same(t, base, owner)

	_, ownSlot := derived.OwnSlot("greeting")
	require.False(t, ownSlot)
}

func TestSetPropertyCopiesDownInsteadOfMutatingAncestor(t *testing.T) {
	mgr := newMgr()
	base := New(mgr)
	base.DefineField("counter", value.Int(0))
	derived := New(mgr)
	derived.SetPrototypes([]value.Value{value.Ref(base)})

	err := derived.SetProperty("counter", value.Int(5), noopInvoker{}, value.Ref(derived))
	require.NoError(t, err)

	// The write shadows on derived; base (shared by every other object
	// prototyped on it) is left untouched.
	s, ownsNow := derived.OwnSlot("counter")
	require.True(t, ownsNow)
	got, _ := s.Read(value.Ref(derived), noopInvoker{})
	require.Equal(t, int64(5), mustInt(t, got))

	baseSlot, _ := base.OwnSlot("counter")
	baseGot, _ := baseSlot.Read(value.Ref(base), noopInvoker{})
	require.Equal(t, int64(0), mustInt(t, baseGot), "writing through a derived object must not mutate the prototype")
}

func TestSetPropertyOnASiblingDoesNotSeeTheOthersShadow(t *testing.T) {
	mgr := newMgr()
	base := New(mgr)
	base.DefineField("counter", value.Int(0))
	a := New(mgr)
	a.SetPrototypes([]value.Value{value.Ref(base)})
	b := New(mgr)
	b.SetPrototypes([]value.Value{value.Ref(base)})

	require.NoError(t, a.SetProperty("counter", value.Int(5), noopInvoker{}, value.Ref(a)))

	s, owner, err := b.Lookup("counter")
	require.NoError(t, err)
	require.Same(t, base, owner)
	got, _ := s.Read(value.Ref(b), noopInvoker{})
	require.Equal(t, int64(0), mustInt(t, got), "a sibling prototyped on the same base must still see the original value")
}

func TestSetPropertyShadowsReadOnlyOwner(t *testing.T) {
	mgr := newMgr()
	base := New(mgr)
	base.DefineReadOnlyField("id", value.Int(1))
	derived := New(mgr)
	derived.SetPrototypes([]value.Value{value.Ref(base)})

	err := derived.SetProperty("id", value.Int(2), noopInvoker{}, value.Ref(derived))
	require.NoError(t, err)

	s, owns := derived.OwnSlot("id")
	require.True(t, owns, "a refused write must shadow with a new field slot on the receiver")
	got, _ := s.Read(value.Ref(derived), noopInvoker{})
	require.Equal(t, int64(2), mustInt(t, got))
}

func TestSetPropertyUnknownNameCreatesFieldOnReceiver(t *testing.T) {
	mgr := newMgr()
	o := New(mgr)

	err := o.SetProperty("brandNew", value.Int(9), noopInvoker{}, value.Ref(o))
	require.NoError(t, err)

	s, owns := o.OwnSlot("brandNew")
	require.True(t, owns)
	got, _ := s.Read(value.Ref(o), noopInvoker{})
	require.Equal(t, int64(9), mustInt(t, got))
}

func TestSlotsPreservesInsertionOrder(t *testing.T) {
	mgr := newMgr()
	o := New(mgr)
	o.DefineField("c", value.Int(3))
	o.DefineField("a", value.Int(1))
	o.DefineField("b", value.Int(2))

	require.Equal(t, []string{"c", "a", "b"}, o.Slots())
}

func TestLinearizeCachesUntilPrototypesChange(t *testing.T) {
	mgr := newMgr()
	a := New(mgr)
	o := New(mgr)
	o.SetPrototypes([]value.Value{value.Ref(a)})

	first, err := o.Linearize()
	require.NoError(t, err)

	second, err := o.Linearize()
	require.NoError(t, err)
	require.Equal(t, first, second)

	b := New(mgr)
	o.SetPrototypes([]value.Value{value.Ref(b)})
	third, err := o.Linearize()
	require.NoError(t, err)
	require.Equal(t, []*Object{o, b}, third)
}
