package diag

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-automation/modbuscore/pdu"
	"github.com/kestrel-automation/modbuscore/transport"
)

func TestCountersAccumulateMonotonically(t *testing.T) {
	var c Counters
	c.RecordRequest(pdu.ReadHoldingRegisters)
	c.RecordRequest(pdu.ReadHoldingRegisters)
	c.RecordResponse(pdu.ReadHoldingRegisters)
	c.RecordError(transport.KindCRC)
	c.RecordError(transport.KindCRC)
	c.RecordError(transport.KindTimeout)

	snap := c.Snapshot()
	require.Equal(t, uint64(2), snap.RequestsByFC[pdu.ReadHoldingRegisters])
	require.Equal(t, uint64(1), snap.ResponsesByFC[pdu.ReadHoldingRegisters])
	require.Equal(t, uint64(2), snap.ErrorsByKind[transport.KindCRC])
	require.Equal(t, uint64(1), snap.ErrorsByKind[transport.KindTimeout])
	require.Equal(t, uint64(2), snap.Total, "Total tracks requests only")

	c.RecordRequest(pdu.ReadCoils)
	next := c.Snapshot()
	require.Equal(t, uint64(3), next.Total, "counters never decrease")
	require.Equal(t, snap.RequestsByFC[pdu.ReadHoldingRegisters], next.RequestsByFC[pdu.ReadHoldingRegisters])
}

func TestCountersSnapshotIsACopy(t *testing.T) {
	var c Counters
	c.RecordRequest(pdu.ReadCoils)
	snap := c.Snapshot()

	c.RecordRequest(pdu.ReadCoils)

	require.Equal(t, uint64(1), snap.RequestsByFC[pdu.ReadCoils], "a taken snapshot must not see later updates")
	require.Equal(t, uint64(2), c.Snapshot().RequestsByFC[pdu.ReadCoils])
}

func TestTraceRecentReturnsOldestFirstWithinCapacity(t *testing.T) {
	tr := NewTrace(3)
	tr.Record(Event{AtMs: 1, Kind: EventRequestSent, Function: pdu.ReadCoils})
	tr.Record(Event{AtMs: 2, Kind: EventResponseReceived, Function: pdu.ReadCoils})

	recent := tr.Recent(10)
	require.Len(t, recent, 2, "Recent caps at however many events actually exist")
	require.Equal(t, uint32(1), recent[0].AtMs)
	require.Equal(t, uint32(2), recent[1].AtMs)
}

func TestTraceWrapsAndDropsOldestEntry(t *testing.T) {
	tr := NewTrace(2)
	tr.Record(Event{AtMs: 1})
	tr.Record(Event{AtMs: 2})
	tr.Record(Event{AtMs: 3}) // overwrites AtMs:1

	recent := tr.Recent(2)
	require.Equal(t, []uint32{2, 3}, []uint32{recent[0].AtMs, recent[1].AtMs})
}

func TestCountersResetStartsANewEpoch(t *testing.T) {
	var c Counters
	c.RecordRequest(pdu.ReadCoils)
	c.RecordError(transport.KindTimeout)
	c.RecordDropped()

	c.Reset()
	snap := c.Snapshot()
	require.Equal(t, uint64(0), snap.Total)
	require.Equal(t, uint64(0), snap.ErrorsByKind[transport.KindTimeout])
	require.Equal(t, uint64(0), snap.Dropped)

	c.RecordRequest(pdu.ReadCoils)
	require.Equal(t, uint64(1), c.Snapshot().Total, "the new epoch counts from zero")
}

func TestTraceResetDiscardsHistory(t *testing.T) {
	tr := NewTrace(2)
	tr.Record(Event{AtMs: 1})
	tr.Reset()
	require.Empty(t, tr.Recent(2))

	tr.Record(Event{AtMs: 9})
	recent := tr.Recent(2)
	require.Len(t, recent, 1)
	require.Equal(t, uint32(9), recent[0].AtMs)
}
