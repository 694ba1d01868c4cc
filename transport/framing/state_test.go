package framing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-automation/modbuscore/pdu"
	"github.com/kestrel-automation/modbuscore/transport"
)

func TestRTUFramingRoundTrip(t *testing.T) {
	fs := NewRTU(19200)
	adu := transport.ADU{UnitID: 0x11, Function: pdu.ReadHoldingRegisters}
	wire := fs.Encode(adu, 0, []byte{0x00, 0x6B, 0x00, 0x03})

	fs.Push(wire, 0)
	_, ok, err := fs.Next(0)
	require.NoError(t, err)
	require.False(t, ok, "no silence elapsed yet")

	frame, ok, err := fs.Next(10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, byte(0x11), frame.ADU.UnitID)
	require.Equal(t, pdu.ReadHoldingRegisters, frame.ADU.Function)
	require.Equal(t, []byte{0x00, 0x6B, 0x00, 0x03}, frame.ADU.Payload)
}

func TestASCIIFramingRoundTrip(t *testing.T) {
	fs := NewASCII()
	adu := transport.ADU{UnitID: 0x11, Function: pdu.ReadHoldingRegisters}
	wire := fs.Encode(adu, 0, []byte{0x00, 0x6B, 0x00, 0x03})

	fs.Push(wire, 0)
	frame, ok, err := fs.Next(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, byte(0x11), frame.ADU.UnitID)
	require.Equal(t, pdu.ReadHoldingRegisters, frame.ADU.Function)
}

func TestTCPFramingRoundTrip(t *testing.T) {
	fs := NewTCP()
	adu := transport.ADU{UnitID: 0x11, Function: pdu.ReadHoldingRegisters}
	wire := fs.Encode(adu, 0x0042, []byte{0x00, 0x6B, 0x00, 0x03})

	fs.Push(wire, 0)
	frame, ok, err := fs.Next(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint16(0x0042), frame.TransactionID)
	require.Equal(t, byte(0x11), frame.ADU.UnitID)
}

func TestTCPFramingMultiplexesDistinctTransactionIDs(t *testing.T) {
	fs := NewTCP()
	adu := transport.ADU{UnitID: 0x01, Function: pdu.ReadHoldingRegisters}
	w1 := fs.Encode(adu, 1, []byte{0x00, 0x00, 0x00, 0x01})
	w2 := fs.Encode(adu, 2, []byte{0x00, 0x01, 0x00, 0x01})

	fs.Push(append(append([]byte{}, w2...), w1...), 0)

	f1, ok, err := fs.Next(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint16(2), f1.TransactionID, "response arrival order, not submission order")

	f2, ok, err := fs.Next(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint16(1), f2.TransactionID)
}
