// Package client implements the transaction engine: a fixed-capacity pool
// of in-flight requests driven by Poll, with priority queueing, per-request
// timeout and retry, and a watchdog over a wedged link. Nothing here
// blocks, spawns a goroutine, or loops; looping is left to the convenience
// wrappers in convenience.go.
package client

import (
	"go.uber.org/zap"

	"github.com/kestrel-automation/modbuscore/diag"
	"github.com/kestrel-automation/modbuscore/pdu"
	"github.com/kestrel-automation/modbuscore/pool"
	"github.com/kestrel-automation/modbuscore/transport"
	"github.com/kestrel-automation/modbuscore/transport/framing"
)

const defaultQueueCapacity = 16
const defaultWatchdogMs = 5000
const maxRTUPayload = 253 - 5 // unit + fc + crc16 already accounted for by the caller's 253 ceiling

// Option configures a Client at construction, the functional-options idiom
// this module uses throughout in place of the teacher's build-tag-style
// compile-time configuration.
type Option func(*Client)

// WithQueueDepth bounds how many requests may wait in each priority band.
func WithQueueDepth(n int) Option {
	return func(c *Client) { c.queueCapacity = n }
}

// WithWatchdog sets how long the engine tolerates a silent link while a
// transaction is in flight before force-failing it.
func WithWatchdog(ms uint32) Option {
	return func(c *Client) { c.watchdogMs = ms }
}

// WithTraceHex enables recording of function-code events into the trace.
func WithTraceHex(on bool) Option {
	return func(c *Client) { c.traceHex = on }
}

// WithLogger attaches a structured logger; the default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithFunctionSet restricts which function codes Submit will accept. The
// default, set by New, is pdu.AllFunctions.
func WithFunctionSet(fs pdu.FunctionSet) Option {
	return func(c *Client) { c.functions = fs }
}

// WithPowerMgmt arms idle detection: once the engine has had no queued or
// in-flight work and no wire activity for idleMs, onIdle is invoked. The
// host typically uses it to drop into a low-power wait. It fires once per
// quiet period; any subsequent work re-arms it.
func WithPowerMgmt(idleMs uint32, onIdle func()) Option {
	return func(c *Client) { c.idleMs, c.onIdle = idleMs, onIdle }
}

// Client is the poll-driven transaction engine for one transport link.
type Client struct {
	cap     transport.Capability
	framing *framing.FramingState
	pool    *pool.Pool[slot]

	queueCapacity int
	queueHigh     []Handle
	queueNormal   []Handle
	delayed       []Handle // slots waiting out a retry backoff

	singleFlight   Handle          // half-duplex: the one IN_FLIGHT slot, if any
	byTID          map[uint16]Handle // TCP: IN_FLIGHT slots keyed by transaction id
	multiplexed    bool
	nextTID        uint16

	watchdogMs uint32
	lastRxMs   uint32
	haveRx     bool

	idleMs       uint32
	onIdle       func()
	idleAnchorMs uint32
	idleAnchored bool
	idleNotified bool

	counters  *diag.Counters
	trace     *diag.Trace
	traceHex  bool
	logger    *zap.Logger
	functions pdu.FunctionSet

	recvBuf [512]byte
}

// New builds a Client over cap using fr for wire framing, with a fixed
// transaction pool of poolCapacity slots.
func New(cp transport.Capability, fr *framing.FramingState, poolCapacity int, opts ...Option) *Client {
	c := &Client{
		cap:           cp,
		framing:       fr,
		pool:          pool.New[slot](poolCapacity),
		queueCapacity: defaultQueueCapacity,
		watchdogMs:    defaultWatchdogMs,
		counters:      &diag.Counters{},
		trace:         diag.NewTrace(64),
		logger:        zap.NewNop(),
		functions:     pdu.AllFunctions,
		multiplexed:   fr.Variant == framing.VariantTCP,
	}
	if c.multiplexed {
		c.byTID = make(map[uint16]Handle, poolCapacity)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetQueueCapacity changes the per-band queue depth limit.
func (c *Client) SetQueueCapacity(n int) { c.queueCapacity = n }

// SetWatchdogMs changes the link-silence tolerance.
func (c *Client) SetWatchdogMs(ms uint32) { c.watchdogMs = ms }

// SetTraceHex toggles event tracing.
func (c *Client) SetTraceHex(on bool) { c.traceHex = on }

// Counters exposes the request/error counters for diagnostics wiring.
func (c *Client) Counters() *diag.Counters { return c.counters }

// RecentEvents copies up to n of the most recent trace events, oldest
// first. Only populated while tracing is enabled via WithTraceHex or
// SetTraceHex.
func (c *Client) RecentEvents(n int) []diag.Event { return c.trace.Recent(n) }

// Submit enqueues req and returns the Handle that identifies it, or an
// error if req is malformed or the engine has no room for it.
func (c *Client) Submit(req Request) (Handle, *transport.Error) {
	if req.Operation == nil {
		return Handle{}, transport.NewError(transport.KindInvalidArgument, nil)
	}
	if !c.functions.Contains(req.Function) {
		return Handle{}, transport.NewError(transport.KindInvalidArgument, nil)
	}
	if c.framing.Variant == framing.VariantRTU && len(req.Operation.Bytes()) > maxRTUPayload {
		return Handle{}, transport.NewError(transport.KindInvalidArgument, nil)
	}
	band := c.queueNormal
	if req.Priority == PriorityHigh {
		band = c.queueHigh
	}
	if len(band) >= c.queueCapacity {
		return Handle{}, transport.ErrNoResources
	}
	h, s, ok := c.pool.Acquire()
	if !ok {
		return Handle{}, transport.ErrNoResources
	}
	*s = slot{st: statePending, req: req, retriesLeft: req.MaxRetries}
	c.enqueue(h, req.Priority)
	return h, nil
}

// Cancel marks h for cancellation. If the slot is IN_FLIGHT, the next Poll
// observes the flag, abandons the in-flight wait, and fires the callback
// with Cancelled; if it is still queued or waiting out a retry backoff, the
// next Poll removes it and fires the callback with Cancelled as well.
func (c *Client) Cancel(h Handle) *transport.Error {
	s, ok := c.pool.Get(h)
	if !ok {
		return transport.NewError(transport.KindInvalidArgument, nil)
	}
	s.cancelled = true
	return nil
}

// Poll drives the state machine by one step: at most one receive, one
// frame dispatch, one timeout sweep, and one send.
func (c *Client) Poll() {
	c.step()
}

// PollWithBudget repeats Poll's step up to n times, stopping early once a
// step does no work, bounding per-call cost for a cooperative scheduler
// that multiplexes several engines.
func (c *Client) PollWithBudget(n int) {
	for i := 0; i < n; i++ {
		if !c.step() {
			return
		}
	}
}

func (c *Client) step() bool {
	now := c.cap.NowMs()
	did := false

	n, _ := c.cap.Recv(c.recvBuf[:])
	if n > 0 {
		c.framing.Push(c.recvBuf[:n], now)
		c.lastRxMs, c.haveRx = now, true
		did = true
	}

	if frame, ok, err := c.framing.Next(now); ok || err != nil {
		did = true
		c.handleFrame(frame, err, now)
	}

	if c.sweepCancelled(now) {
		did = true
	}
	if c.sweepTimeouts(now) {
		did = true
	}
	if c.checkWatchdog(now) {
		did = true
	}
	if c.releaseDelayed(now) {
		did = true
	}
	if c.trySend(now) {
		did = true
	}
	c.trackIdle(now, did)
	return did
}

func (c *Client) trackIdle(now uint32, did bool) {
	if c.onIdle == nil {
		return
	}
	if did {
		c.idleAnchorMs, c.idleAnchored, c.idleNotified = now, true, false
		return
	}
	if !c.idleAnchored {
		c.idleAnchorMs, c.idleAnchored = now, true
		return
	}
	if c.idleNotified || c.hasWork() {
		return
	}
	if transport.Elapsed(now, c.idleAnchorMs) >= c.idleMs {
		c.idleNotified = true
		c.onIdle()
	}
}

func (c *Client) hasWork() bool {
	return len(c.queueHigh) > 0 || len(c.queueNormal) > 0 || len(c.delayed) > 0 ||
		c.singleFlight.Valid() || len(c.byTID) > 0
}

func (c *Client) enqueue(h Handle, p Priority) {
	if p == PriorityHigh {
		c.queueHigh = append(c.queueHigh, h)
	} else {
		c.queueNormal = append(c.queueNormal, h)
	}
}

func (c *Client) dequeue() (Handle, bool) {
	for len(c.queueHigh) > 0 {
		h := c.queueHigh[0]
		c.queueHigh = c.queueHigh[1:]
		s, ok := c.pool.Get(h)
		if !ok {
			continue
		}
		if s.cancelled {
			c.deliver(h, s, Result{Handle: h, Err: transport.ErrCancelled})
			continue
		}
		return h, true
	}
	for len(c.queueNormal) > 0 {
		h := c.queueNormal[0]
		c.queueNormal = c.queueNormal[1:]
		s, ok := c.pool.Get(h)
		if !ok {
			continue
		}
		if s.cancelled {
			c.deliver(h, s, Result{Handle: h, Err: transport.ErrCancelled})
			continue
		}
		return h, true
	}
	return Handle{}, false
}

func (c *Client) channelFree() bool {
	if !c.multiplexed {
		return !c.singleFlight.Valid()
	}
	return len(c.byTID) < c.pool.Cap()
}

func (c *Client) trySend(now uint32) bool {
	if !c.channelFree() {
		return false
	}
	h, ok := c.dequeue()
	if !ok {
		return false
	}
	s, ok := c.pool.Get(h)
	if !ok {
		return false
	}
	body := s.req.Operation.Bytes()
	adu := transport.ADU{UnitID: s.req.UnitID, Function: s.req.Function}
	if !c.singleFlight.Valid() && len(c.byTID) == 0 {
		// The watchdog counts link silence only while work is in flight, so
		// silence from an idle period before this send does not count.
		c.lastRxMs = now
	}
	var tid uint16
	if c.multiplexed {
		tid = c.nextTID
		c.nextTID++
		c.byTID[tid] = h
	} else {
		c.singleFlight = h
	}
	frame := c.framing.Encode(adu, tid, body)
	c.cap.Send(frame)
	s.st = stateInFlight
	s.sendAnchorMs, s.haveAnchor = now, true
	s.tid = tid
	c.counters.RecordRequest(s.req.Function)
	if c.traceHex {
		c.trace.Record(diag.Event{AtMs: now, Kind: diag.EventRequestSent, Function: s.req.Function})
	}
	return true
}

func (c *Client) handleFrame(f framing.Frame, decErr error, now uint32) {
	var h Handle
	var ok bool
	if c.multiplexed {
		h, ok = c.byTID[f.TransactionID]
		if ok {
			delete(c.byTID, f.TransactionID)
		}
	} else {
		h = c.singleFlight
		ok = h.Valid()
		c.singleFlight = Handle{}
	}
	if !ok {
		// Response for an unknown or already-resolved transaction.
		c.counters.RecordDropped()
		return
	}
	s, ok := c.pool.Get(h)
	if !ok {
		return
	}
	if decErr != nil {
		c.finish(h, s, nil, transport.AsError(decErr), now)
		return
	}
	if f.ADU.UnitID != s.req.UnitID {
		c.finish(h, s, nil, transport.NewError(transport.KindInvalidRequest, nil), now)
		return
	}
	if f.ADU.Function.IsException() {
		code, err := pdu.ParseException(f.ADU.Payload)
		if err != nil {
			c.finish(h, s, nil, transport.FromPDU(err), now)
			return
		}
		c.finish(h, s, nil, transport.NewExceptionError(code), now)
		return
	}
	op, err := pdu.ParseResponse(f.ADU.Function, f.ADU.Payload, s.req.ValueCount)
	if err != nil {
		c.finish(h, s, nil, transport.FromPDU(err), now)
		return
	}
	c.counters.RecordResponse(f.ADU.Function)
	if c.traceHex {
		c.trace.Record(diag.Event{AtMs: now, Kind: diag.EventResponseReceived, Function: f.ADU.Function})
	}
	c.finish(h, s, op, nil, now)
}

// sweepCancelled releases in-flight slots whose cancel flag was set since
// the last poll, freeing a half-duplex channel without waiting for the
// abandoned response or its timeout.
func (c *Client) sweepCancelled(now uint32) bool {
	did := false
	if c.singleFlight.Valid() {
		if s, ok := c.pool.Get(c.singleFlight); ok && s.cancelled {
			h := c.singleFlight
			c.singleFlight = Handle{}
			c.finish(h, s, nil, transport.ErrCancelled, now)
			did = true
		}
	}
	if c.multiplexed {
		for tid, h := range c.byTID {
			s, ok := c.pool.Get(h)
			if !ok {
				delete(c.byTID, tid)
				continue
			}
			if s.cancelled {
				delete(c.byTID, tid)
				c.finish(h, s, nil, transport.ErrCancelled, now)
				did = true
			}
		}
	}
	var qd bool
	if c.queueHigh, qd = c.purgeCancelled(c.queueHigh); qd {
		did = true
	}
	if c.queueNormal, qd = c.purgeCancelled(c.queueNormal); qd {
		did = true
	}
	return did
}

// purgeCancelled removes cancelled (or stale) entries from a queue band,
// delivering their callbacks, so a cancelled-while-queued transaction does
// not wait for the channel to free before completing.
func (c *Client) purgeCancelled(q []Handle) ([]Handle, bool) {
	did := false
	kept := q[:0]
	for _, h := range q {
		s, ok := c.pool.Get(h)
		if !ok {
			did = true
			continue
		}
		if s.cancelled {
			c.deliver(h, s, Result{Handle: h, Err: transport.ErrCancelled})
			did = true
			continue
		}
		kept = append(kept, h)
	}
	return kept, did
}

func (c *Client) sweepTimeouts(now uint32) bool {
	did := false
	if c.singleFlight.Valid() {
		if s, ok := c.pool.Get(c.singleFlight); ok && s.haveAnchor {
			if transport.Elapsed(now, s.sendAnchorMs) >= s.req.TimeoutMs {
				h := c.singleFlight
				c.singleFlight = Handle{}
				c.finish(h, s, nil, transport.ErrTimeout, now)
				did = true
			}
		}
	}
	if c.multiplexed {
		for tid, h := range c.byTID {
			s, ok := c.pool.Get(h)
			if !ok || !s.haveAnchor {
				continue
			}
			if transport.Elapsed(now, s.sendAnchorMs) >= s.req.TimeoutMs {
				delete(c.byTID, tid)
				c.finish(h, s, nil, transport.ErrTimeout, now)
				did = true
			}
		}
	}
	return did
}

func (c *Client) checkWatchdog(now uint32) bool {
	anyInFlight := c.singleFlight.Valid() || len(c.byTID) > 0
	if !anyInFlight || !c.haveRx {
		return false
	}
	if transport.Elapsed(now, c.lastRxMs) < c.watchdogMs {
		return false
	}
	// Fail the oldest in-flight slot with Transport. The framing decoder is
	// not reset here; any bytes it has buffered are left to its own
	// framing rules.
	if c.singleFlight.Valid() {
		h := c.singleFlight
		c.singleFlight = Handle{}
		if s, ok := c.pool.Get(h); ok {
			c.finish(h, s, nil, transport.NewError(transport.KindTransport, nil), now)
		}
		return true
	}
	var oldestTID uint16
	var oldest Handle
	var oldestAge uint32
	for tid, h := range c.byTID {
		if s, ok := c.pool.Get(h); ok {
			if age := transport.Elapsed(now, s.sendAnchorMs); !oldest.Valid() || age > oldestAge {
				oldestTID, oldest, oldestAge = tid, h, age
			}
		}
	}
	if !oldest.Valid() {
		return false
	}
	delete(c.byTID, oldestTID)
	s, _ := c.pool.Get(oldest)
	c.finish(oldest, s, nil, transport.NewError(transport.KindTransport, nil), now)
	return true
}

func (c *Client) releaseDelayed(now uint32) bool {
	did := false
	remaining := c.delayed[:0]
	for _, h := range c.delayed {
		s, ok := c.pool.Get(h)
		if !ok {
			continue
		}
		if s.cancelled {
			c.deliver(h, s, Result{Handle: h, Err: transport.ErrCancelled})
			did = true
			continue
		}
		if transport.Elapsed(now, s.retryReadyMs) < s.req.RetryBackoffMs {
			remaining = append(remaining, h)
			continue
		}
		s.awaitingRetry = false
		s.st = statePending
		c.enqueue(h, s.req.Priority)
		did = true
	}
	c.delayed = remaining
	return did
}

// finish transitions a slot to its terminal state, retrying it instead of
// completing it when retries remain and the error is retryable.
func (c *Client) finish(h Handle, s *slot, op pdu.Operation, err *transport.Error, now uint32) {
	if s.cancelled {
		c.deliver(h, s, Result{Handle: h, Err: transport.ErrCancelled})
		return
	}
	if err != nil {
		c.counters.RecordError(err.Kind)
		if c.traceHex {
			kind := diag.EventError
			if err.Kind == transport.KindTimeout {
				kind = diag.EventTimeout
			}
			c.trace.Record(diag.Event{AtMs: now, Kind: kind, Function: s.req.Function})
		}
		retry := retryable(err.Kind) || (err.Kind == transport.KindException && s.req.RetryOnException)
		if retry && s.retriesLeft > 0 {
			if c.traceHex {
				c.trace.Record(diag.Event{AtMs: now, Kind: diag.EventRetry, Function: s.req.Function})
			}
			s.retriesLeft--
			s.st = statePending
			s.haveAnchor = false
			s.awaitingRetry = true
			s.retryReadyMs = now
			c.delayed = append(c.delayed, h)
			return
		}
	}
	c.deliver(h, s, Result{Handle: h, Response: op, Err: err})
}

func retryable(k transport.Kind) bool {
	switch k {
	case transport.KindTimeout, transport.KindCRC, transport.KindTransport:
		return true
	default:
		return false
	}
}

func (c *Client) deliver(h Handle, s *slot, res Result) {
	res.UserCtx = s.req.UserCtx
	cb := s.req.Callback
	c.pool.Release(h)
	if cb != nil {
		cb(res)
	}
}
