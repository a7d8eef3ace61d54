package strpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInternReturnsCanonicalCopy(t *testing.T) {
	p := New()

	a := p.Intern("length")
	b := p.Intern("length")

	require.Equal(t, a, b)
	require.Equal(t, 1, p.Len())
}

func TestInternDistinctStrings(t *testing.T) {
	p := New()

	p.Intern("at:")
	p.Intern("at:put:")
	p.Intern("size")

	require.Equal(t, 3, p.Len())
}

func TestContains(t *testing.T) {
	p := New()

	require.False(t, p.Contains("keys"))
	p.Intern("keys")
	require.True(t, p.Contains("keys"))
}
