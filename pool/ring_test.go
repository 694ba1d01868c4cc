package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingWriteRead(t *testing.T) {
	r := NewRing(4)
	n := r.Write([]byte{1, 2, 3})
	require.Equal(t, 3, n)
	require.Equal(t, 3, r.Len())

	out := make([]byte, 2)
	n = r.Read(out)
	require.Equal(t, 2, n)
	require.Equal(t, []byte{1, 2}, out)
	require.Equal(t, 1, r.Len())
}

func TestRingWrapsAround(t *testing.T) {
	r := NewRing(3)
	r.Write([]byte{1, 2})
	out := make([]byte, 1)
	r.Read(out)
	r.Write([]byte{3, 4}) // wraps past the end of the backing array

	all := make([]byte, 3)
	n := r.Read(all)
	require.Equal(t, 3, n)
	require.Equal(t, []byte{2, 3, 4}, all)
}

func TestRingFullWriteIsPartial(t *testing.T) {
	r := NewRing(2)
	n := r.Write([]byte{1, 2, 3})
	require.Equal(t, 2, n, "write never overflows capacity")
	require.Equal(t, 2, r.Cap())
}

func TestRingReset(t *testing.T) {
	r := NewRing(4)
	r.Write([]byte{1, 2})
	r.Reset()
	require.Equal(t, 0, r.Len())
}
