package heap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/septvm/septvm/pkg/value"
)

type fakeRoots struct {
	roots []value.Value
}

func (f *fakeRoots) Roots() []value.Value { return f.roots }

func TestArrayPushPopTop(t *testing.T) {
	mgr := NewManager(DefaultThreshold)
	a := NewArray(mgr)

	a.Push(value.Int(1))
	a.Push(value.Int(2))

	top, ok := a.Top()
	require.True(t, ok)
	n, _ := top.Int()
	require.Equal(t, int64(2), n)

	v, ok := a.Pop()
	require.True(t, ok)
	n, _ = v.Int()
	require.Equal(t, int64(2), n)
	require.Equal(t, 1, a.Len())

	a.Truncate(0)
	require.Equal(t, 0, a.Len())
	_, ok = a.Pop()
	require.False(t, ok)
}

func TestCollectReclaimsUnreachableObjects(t *testing.T) {
	mgr := NewManager(1000)
	roots := &fakeRoots{}
	mgr.AddRootProvider(roots)

	kept := NewArray(mgr)
	roots.roots = []value.Value{value.Ref(kept)}

	_ = NewArray(mgr) // unreachable, should be swept

	require.Equal(t, 2, mgr.LiveCount())
	freed := mgr.Collect()
	require.Equal(t, 1, freed)
	require.Equal(t, 1, mgr.LiveCount())
}

func TestCollectTracesReferences(t *testing.T) {
	mgr := NewManager(1000)
	roots := &fakeRoots{}
	mgr.AddRootProvider(roots)

	inner := NewArray(mgr)
	outer := NewArray(mgr)
	outer.Push(value.Ref(inner))
	roots.roots = []value.Value{value.Ref(outer)}

	mgr.Collect()
	require.Equal(t, 2, mgr.LiveCount(), "inner must survive via outer's References()")
}

func TestMaybeCollectRespectsThreshold(t *testing.T) {
	mgr := NewManager(3)
	roots := &fakeRoots{}
	mgr.AddRootProvider(roots)

	NewArray(mgr)
	NewArray(mgr)
	require.Equal(t, 0, mgr.Collections())

	NewArray(mgr)
	mgr.MaybeCollect()
	require.Equal(t, 1, mgr.Collections())
}

func TestPinScopeKeepsValueAlive(t *testing.T) {
	mgr := NewManager(1000)
	roots := &fakeRoots{}
	mgr.AddRootProvider(roots)

	pinned := NewArray(mgr)
	scope := mgr.BeginPin()
	scope.Pin(value.Ref(pinned))

	mgr.Collect()
	require.Equal(t, 1, mgr.LiveCount(), "a pinned value must survive collection with no other roots")

	scope.Release()
	mgr.Collect()
	require.Equal(t, 0, mgr.LiveCount(), "releasing the pin-scope must make the object collectible again")
}

func TestPinScopeReleaseOutOfOrderIsFatal(t *testing.T) {
	mgr := NewManager(1000)

	outer := mgr.BeginPin()
	inner := mgr.BeginPin()

	require.Panics(t, func() { outer.Release() })

	inner.Release()
	outer.Release()
}

func TestPinAfterReleaseIsFatal(t *testing.T) {
	mgr := NewManager(1000)
	scope := mgr.BeginPin()
	scope.Release()

	require.Panics(t, func() { scope.Pin(value.Int(1)) })
}
