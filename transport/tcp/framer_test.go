package tcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	frame := Encode(0x0007, 0x11, 0x03, []byte{0x00, 0x6B, 0x00, 0x03})
	d := &Decoder{}
	require.True(t, d.Push(frame))

	hdr, body, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint16(0x0007), hdr.TransactionID)
	require.Equal(t, uint16(0), hdr.ProtocolID)
	require.Equal(t, byte(0x11), hdr.UnitID)
	require.Equal(t, []byte{0x03, 0x00, 0x6B, 0x00, 0x03}, body)
}

func TestFragmentedDeliveryFiresExactlyOnce(t *testing.T) {
	frame := Encode(0x0002, 0x01, 0x03, []byte{0x00, 0x00, 0x00, 0x03})
	d := &Decoder{}

	completions := 0
	for i := range frame {
		require.True(t, d.Push(frame[i:i+1]))
		_, _, ok, err := d.Next()
		require.NoError(t, err)
		if ok {
			completions++
			require.Equal(t, len(frame)-1, i, "frame must complete only on the final byte")
		}
	}
	require.Equal(t, 1, completions)

	// An extra unrelated byte must not complete a phantom frame.
	require.True(t, d.Push([]byte{0x42}))
	_, _, ok, err := d.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInvalidProtocolIDRejectedAndConsumesHeader(t *testing.T) {
	d := &Decoder{}
	bad := []byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x02, 0x11, 0x03, 0x00}
	require.True(t, d.Push(bad))

	_, _, ok, err := d.Next()
	require.Error(t, err)
	require.False(t, ok)
	require.Equal(t, len(bad)-headerLen, d.n, "exactly 7 bytes consumed on a bad header")
}

func TestLengthAboveRangeRejectedAndConsumesOnlyHeader(t *testing.T) {
	d := &Decoder{}
	// length = 0x00FF (255) is outside the spec's [1,254] range.
	bad := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0xFF, 0x11, 0x03, 0x00}
	require.True(t, d.Push(bad))

	_, _, ok, err := d.Next()
	require.Error(t, err)
	require.False(t, ok)
	require.Equal(t, len(bad)-headerLen, d.n, "exactly 7 bytes consumed, trailing bytes preserved for resync")
}

func TestNeedsMoreDataReturnsFalseWithoutError(t *testing.T) {
	d := &Decoder{}
	d.Push([]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x11}) // 7-byte header only, 5 PDU bytes still pending
	_, _, ok, err := d.Next()
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 7, d.n, "header bytes stay buffered until the body arrives")
}

func TestPipelinedFramesServedInOrder(t *testing.T) {
	a := Encode(1, 0x01, 0x03, []byte{0x00, 0x00, 0x00, 0x01})
	b := Encode(2, 0x01, 0x03, []byte{0x00, 0x01, 0x00, 0x01})
	d := &Decoder{}
	require.True(t, d.Push(append(append([]byte{}, a...), b...)))

	hdr1, _, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint16(1), hdr1.TransactionID)

	hdr2, _, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint16(2), hdr2.TransactionID)
}
