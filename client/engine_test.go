package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-automation/modbuscore/pdu"
	"github.com/kestrel-automation/modbuscore/transport"
	"github.com/kestrel-automation/modbuscore/transport/framing"
	"github.com/kestrel-automation/modbuscore/transport/rtu"
	"github.com/kestrel-automation/modbuscore/transport/tcp"
	"github.com/kestrel-automation/modbuscore/transport/transporttest"
)

// deviceSide reads whatever the client just sent on the wire.
func deviceSide(t *testing.T, dev *transporttest.Endpoint) []byte {
	t.Helper()
	buf := make([]byte, 512)
	n, err := dev.Recv(buf)
	require.NoError(t, err)
	require.Greater(t, n, 0, "expected the client to have sent a frame")
	return buf[:n]
}

func TestClientRTUHappyPath(t *testing.T) {
	host, dev := transporttest.NewLinkedPair()
	c := New(host, framing.NewRTU(19200), 4)

	req, err := pdu.NewReadHoldingRegistersRequest(0x006B, 3)
	require.NoError(t, err)

	var result Result
	done := false
	_, subErr := c.Submit(Request{
		UnitID: 0x11, Function: pdu.ReadHoldingRegisters, Operation: req, ValueCount: 3,
		TimeoutMs: 1000, Callback: func(r Result) { result = r; done = true },
	})
	require.Nil(t, subErr)

	c.Poll() // encodes and sends the request

	sent := deviceSide(t, dev)
	require.Equal(t, []byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03, 0x76, 0x87}, sent, "spec scenario 1 wire bytes")

	response := rtu.Encode(0x11, 0x03, []byte{0x06, 0x02, 0x2B, 0x00, 0x00, 0x00, 0x64})
	_, err = dev.Send(response)
	require.NoError(t, err)

	c.Poll() // buffers the response
	host.Advance(5)
	c.Poll() // silence elapses, frame finalizes, callback fires

	require.True(t, done)
	require.Nil(t, result.Err)
	got := result.Response.(*pdu.ReadHoldingRegistersResponse)
	require.Equal(t, []uint16{0x022B, 0x0000, 0x0064}, got.Values)
}

func TestClientRTUCRCErrorTriggersRetry(t *testing.T) {
	host, dev := transporttest.NewLinkedPair()
	c := New(host, framing.NewRTU(19200), 4)

	req, err := pdu.NewReadHoldingRegistersRequest(0x0000, 1)
	require.NoError(t, err)

	var calls int
	var last Result
	_, subErr := c.Submit(Request{
		UnitID: 0x01, Function: pdu.ReadHoldingRegisters, Operation: req, ValueCount: 1,
		TimeoutMs: 5000, MaxRetries: 1, RetryBackoffMs: 20,
		Callback: func(r Result) { calls++; last = r },
	})
	require.Nil(t, subErr)

	c.Poll()
	deviceSide(t, dev) // drain the first request

	goodResponse := rtu.Encode(0x01, 0x03, []byte{0x02, 0x00, 0x2A})
	corrupted := append([]byte(nil), goodResponse...)
	corrupted[len(corrupted)-1] ^= 0xFF
	_, err = dev.Send(corrupted)
	require.NoError(t, err)

	c.Poll()
	host.Advance(5)
	c.Poll() // CRC mismatch observed, slot moves to delayed retry

	require.Equal(t, 0, calls, "must not complete yet; a retry is pending")

	host.Advance(25) // past the 20ms backoff
	c.Poll()          // releaseDelayed requeues, trySend resends

	resent := deviceSide(t, dev)
	require.Equal(t, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, resent[:6], "identical request re-sent")

	_, err = dev.Send(goodResponse)
	require.NoError(t, err)
	c.Poll()
	host.Advance(5)
	c.Poll()

	require.Equal(t, 1, calls, "callback fires exactly once despite the retry")
	require.Nil(t, last.Err)
	resp := last.Response.(*pdu.ReadHoldingRegistersResponse)
	require.Equal(t, []uint16{0x002A}, resp.Values)
}

func TestClientTCPTransactionIDCorrelation(t *testing.T) {
	host, dev := transporttest.NewLinkedPair()
	c := New(host, framing.NewTCP(), 4)

	results := map[uint16]Result{}
	submit := func(reg uint16) {
		req := pdu.NewWriteSingleRegisterRequest(reg, 0x1234)
		_, err := c.Submit(Request{
			UnitID: 0x01, Function: pdu.WriteSingleRegister, Operation: req, TimeoutMs: 5000,
			Callback: func(r Result) { results[r.Response.(*pdu.WriteSingleRegisterResponse).Offset] = r },
		})
		require.Nil(t, err)
	}

	submit(1)
	submit(2)
	c.Poll() // sends tid=0 (offset 1)
	c.Poll() // sends tid=1 (offset 2)

	buf := make([]byte, 512)
	n, _ := dev.Recv(buf)
	d := &tcp.Decoder{}
	d.Push(buf[:n])
	hdr1, _, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	hdr2, _, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)

	// Respond to the second transaction first.
	resp2 := tcp.Encode(hdr2.TransactionID, 0x01, pdu.WriteSingleRegister, pdu.NewWriteSingleRegisterResponse(2, 0x1234).Bytes())
	_, err = dev.Send(resp2)
	require.NoError(t, err)
	c.Poll()

	_, haveOffset1 := results[1]
	_, haveOffset2 := results[2]
	require.False(t, haveOffset1, "tid=0's response has not arrived yet")
	require.True(t, haveOffset2, "tid=1 completes first since its response arrived first")

	resp1 := tcp.Encode(hdr1.TransactionID, 0x01, pdu.WriteSingleRegister, pdu.NewWriteSingleRegisterResponse(1, 0x1234).Bytes())
	_, err = dev.Send(resp1)
	require.NoError(t, err)
	c.Poll()

	require.Contains(t, results, uint16(1))
}

func TestClientCancelFiresCallbackExactlyOnce(t *testing.T) {
	host, _ := transporttest.NewLinkedPair()
	c := New(host, framing.NewRTU(19200), 4)

	req, err := pdu.NewReadHoldingRegistersRequest(0, 1)
	require.NoError(t, err)

	calls := 0
	var lastErr *transport.Error
	h, subErr := c.Submit(Request{
		UnitID: 1, Function: pdu.ReadHoldingRegisters, Operation: req, ValueCount: 1,
		TimeoutMs: 10, Callback: func(r Result) { calls++; lastErr = r.Err },
	})
	require.Nil(t, subErr)

	c.Poll() // goes in flight
	cancelErr := c.Cancel(h)
	require.Nil(t, cancelErr)

	c.Poll() // cancel observed without waiting for the timeout

	require.Equal(t, 1, calls)
	require.Equal(t, transport.KindCancelled, lastErr.Kind)
	require.False(t, c.singleFlight.Valid(), "the half-duplex channel is freed immediately")

	c.Poll()
	require.Equal(t, 1, calls, "callback must not fire again")
}

func TestClientCancelWhileStillQueuedFiresCallbackExactlyOnce(t *testing.T) {
	host, _ := transporttest.NewLinkedPair()
	c := New(host, framing.NewRTU(19200), 4)

	reqA, _ := pdu.NewReadHoldingRegistersRequest(0, 1)
	callsA := 0
	_, err := c.Submit(Request{
		UnitID: 1, Function: pdu.ReadHoldingRegisters, Operation: reqA, ValueCount: 1,
		TimeoutMs: 10, Callback: func(Result) { callsA++ },
	})
	require.Nil(t, err)

	reqB, _ := pdu.NewReadHoldingRegistersRequest(0, 1)
	callsB := 0
	var lastErrB *transport.Error
	hB, err := c.Submit(Request{
		UnitID: 1, Function: pdu.ReadHoldingRegisters, Operation: reqB, ValueCount: 1,
		TimeoutMs: 5000, Callback: func(r Result) { callsB++; lastErrB = r.Err },
	})
	require.Nil(t, err)

	c.Poll() // dispatches A on the only in-flight slot; B stays queued, still PENDING
	require.True(t, c.singleFlight.Valid())

	cancelErr := c.Cancel(hB)
	require.Nil(t, cancelErr)

	host.Advance(20) // past A's TimeoutMs
	c.Poll()         // the cancel sweep removes B from the queue, then A times out

	require.Equal(t, 1, callsA, "A must still complete (with a timeout) exactly once")
	require.Equal(t, 1, callsB, "B's callback must fire exactly once even though it was cancelled before ever being sent")
	require.Equal(t, transport.KindCancelled, lastErrB.Kind)

	_, stillHeld := c.pool.Get(hB)
	require.False(t, stillHeld, "B's slot must be released back to the pool")
}

func TestClientAtMostOneInFlightOnRTU(t *testing.T) {
	host, dev := transporttest.NewLinkedPair()
	c := New(host, framing.NewRTU(19200), 4)

	req, _ := pdu.NewReadHoldingRegistersRequest(0, 1)
	for i := 0; i < 3; i++ {
		_, err := c.Submit(Request{UnitID: 1, Function: pdu.ReadHoldingRegisters, Operation: req, ValueCount: 1, TimeoutMs: 5000, Callback: func(Result) {}})
		require.Nil(t, err)
	}

	c.Poll()
	require.True(t, c.singleFlight.Valid())
	deviceSide(t, dev)

	// A second poll before any response must not dispatch a second request.
	c.Poll()
	buf := make([]byte, 8)
	n, _ := dev.Recv(buf)
	require.Equal(t, 0, n, "only one transaction may be in flight at a time")
}

func TestClientTCPUnknownTransactionIDDroppedAndCounted(t *testing.T) {
	host, dev := transporttest.NewLinkedPair()
	c := New(host, framing.NewTCP(), 4)

	unsolicited := tcp.Encode(0x7777, 0x01, pdu.ReadHoldingRegisters, []byte{0x02, 0x00, 0x2A})
	_, err := dev.Send(unsolicited)
	require.NoError(t, err)

	c.Poll()

	require.Equal(t, uint64(1), c.counters.Snapshot().Dropped)
	require.Equal(t, 0, len(c.byTID), "no transaction may have been resolved")
}

func TestClientIdleCallbackFiresOncePerQuietPeriod(t *testing.T) {
	host, dev := transporttest.NewLinkedPair()
	idles := 0
	c := New(host, framing.NewRTU(19200), 4, WithPowerMgmt(50, func() { idles++ }))

	c.Poll() // anchors the quiet period
	host.Advance(60)
	c.Poll()
	require.Equal(t, 1, idles)

	host.Advance(60)
	c.Poll()
	require.Equal(t, 1, idles, "must not re-fire while the same quiet period continues")

	// Any work re-arms idle detection.
	req, _ := pdu.NewReadHoldingRegistersRequest(0, 1)
	_, err := c.Submit(Request{
		UnitID: 1, Function: pdu.ReadHoldingRegisters, Operation: req, ValueCount: 1,
		TimeoutMs: 5000, Callback: func(Result) {},
	})
	require.Nil(t, err)
	c.Poll()
	deviceSide(t, dev)

	resp := rtu.Encode(1, 0x03, []byte{0x02, 0x00, 0x00})
	_, sendErr := dev.Send(resp)
	require.NoError(t, sendErr)
	c.Poll()
	host.Advance(5)
	c.Poll()

	host.Advance(60)
	c.Poll()
	require.Equal(t, 2, idles, "a fresh quiet period after work fires again")
}

func TestClientHalfDuplexPriorityOrdering(t *testing.T) {
	host, dev := transporttest.NewLinkedPair()
	c := New(host, framing.NewRTU(19200), 4)

	req, _ := pdu.NewReadHoldingRegistersRequest(0, 1)
	var order []string
	submit := func(name string, pri Priority) {
		_, err := c.Submit(Request{
			UnitID: 1, Function: pdu.ReadHoldingRegisters, Operation: req, ValueCount: 1,
			TimeoutMs: 5000, Priority: pri,
			Callback: func(Result) { order = append(order, name) },
		})
		require.Nil(t, err)
	}

	submit("A", PriorityHigh)
	submit("B", PriorityNormal)
	submit("C", PriorityHigh)

	respondOnce := func() {
		c.Poll()
		sent := deviceSide(t, dev)
		require.Len(t, sent, 8)
		resp := rtu.Encode(1, 0x03, []byte{0x02, 0x00, 0x00})
		_, err := dev.Send(resp)
		require.NoError(t, err)
		c.Poll()
		host.Advance(5)
		c.Poll()
	}

	respondOnce()
	respondOnce()
	respondOnce()

	require.Equal(t, []string{"A", "C", "B"}, order)
}
