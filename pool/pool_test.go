package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolAcquireReleaseReuse(t *testing.T) {
	p := New[int](2)
	require.Equal(t, 2, p.Cap())

	h1, v1, ok := p.Acquire()
	require.True(t, ok)
	*v1 = 42

	h2, v2, ok := p.Acquire()
	require.True(t, ok)
	*v2 = 7

	_, _, ok = p.Acquire()
	require.False(t, ok, "pool is at capacity")

	got, ok := p.Get(h1)
	require.True(t, ok)
	require.Equal(t, 42, *got)

	p.Release(h1)
	_, ok = p.Get(h1)
	require.False(t, ok, "released handle must not resolve")

	h3, v3, ok := p.Acquire()
	require.True(t, ok)
	*v3 = 99
	require.NotEqual(t, h1, h3, "reacquired slot gets a new generation")

	_, ok = p.Get(h2)
	require.True(t, ok, "unrelated handle unaffected by h1's release")
}

func TestPoolZeroHandleInvalid(t *testing.T) {
	var zero Handle
	require.False(t, zero.Valid())

	p := New[int](1)
	_, ok := p.Get(zero)
	require.False(t, ok)
}

func TestPoolReleaseClearsValue(t *testing.T) {
	p := New[string](1)
	h, v, ok := p.Acquire()
	require.True(t, ok)
	*v = "hello"
	p.Release(h)

	h2, v2, ok := p.Acquire()
	require.True(t, ok)
	require.Equal(t, "", *v2, "released slot value must be zeroed before reuse")
	require.Equal(t, h.index, h2.index)
}

func TestPoolLenAndCap(t *testing.T) {
	p := New[int](3)
	require.Equal(t, 0, p.Len())
	h, _, _ := p.Acquire()
	require.Equal(t, 1, p.Len())
	p.Release(h)
	require.Equal(t, 0, p.Len())
	require.Equal(t, 3, p.Cap())
}
