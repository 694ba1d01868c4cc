package server

import (
	"go.uber.org/zap"

	"github.com/kestrel-automation/modbuscore/diag"
	"github.com/kestrel-automation/modbuscore/pdu"
	"github.com/kestrel-automation/modbuscore/transport"
	"github.com/kestrel-automation/modbuscore/transport/framing"
)

const maxRegions = 64

// AddResult reports the outcome of adding a region to a Server.
type AddResult byte

const (
	AddOK AddResult = iota
	AddOverlap
	AddFull
	AddInvalidArgument
)

func (r AddResult) String() string {
	switch r {
	case AddOK:
		return "OK"
	case AddOverlap:
		return "Overlap"
	case AddFull:
		return "Full"
	case AddInvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

// Option configures a Server at construction.
type Option func(*Server)

// WithLogger overrides the no-op default logger.
func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.logger = l } }

// WithServerID sets the payload ReportServerID (FC 0x11) returns.
func WithServerID(id []byte, run bool) Option {
	return func(s *Server) {
		s.serverID = append([]byte(nil), id...)
		s.serverRun = run
	}
}

// WithRegionCapacity overrides the default maximum number of regions a
// Server will accept.
func WithRegionCapacity(m int) Option {
	return func(s *Server) { s.regionCapacity = m }
}

// WithFunctionSet restricts which function codes the Server will route;
// requests for a disabled function are answered with IllegalFunction. The
// default, set by New, is pdu.AllFunctions.
func WithFunctionSet(fs pdu.FunctionSet) Option {
	return func(s *Server) { s.functions = fs }
}

// WithTraceHex enables recording of request/response events into the trace.
func WithTraceHex(on bool) Option {
	return func(s *Server) { s.traceHex = on }
}

// WithPowerMgmt arms idle detection: once the server has gone idleMs with
// no inbound bytes or frames, onIdle is invoked. It fires once per quiet
// period; any subsequent activity re-arms it.
func WithPowerMgmt(idleMs uint32, onIdle func()) Option {
	return func(s *Server) { s.idleMs, s.onIdle = idleMs, onIdle }
}

// Server routes incoming ADUs against a table of regions, one request at a
// time. It mirrors the teacher's RequestHandler dispatch but is driven by
// Poll instead of a blocking accept loop, so it never owns a goroutine.
type Server struct {
	unitID  byte
	regions []*Region

	cap     transport.Capability
	framing *framing.FramingState

	serverID  []byte
	serverRun bool

	regionCapacity int
	functions      pdu.FunctionSet

	idleMs       uint32
	onIdle       func()
	idleAnchorMs uint32
	idleAnchored bool
	idleNotified bool

	counters *diag.Counters
	trace    *diag.Trace
	traceHex bool
	logger   *zap.Logger

	recvBuf [512]byte
}

// New builds a Server that answers for unitID (and unaddressed broadcasts
// to unit 0) over cp, decoding and encoding ADUs with fr.
func New(unitID byte, cp transport.Capability, fr *framing.FramingState, opts ...Option) *Server {
	s := &Server{
		unitID:         unitID,
		cap:            cp,
		framing:        fr,
		counters:       &diag.Counters{},
		trace:          diag.NewTrace(64),
		logger:         zap.NewNop(),
		regionCapacity: maxRegions,
		functions:      pdu.AllFunctions,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Counters exposes the request/error counters for diagnostics wiring.
func (s *Server) Counters() *diag.Counters { return s.counters }

// RecentEvents copies up to n of the most recent trace events, oldest first.
func (s *Server) RecentEvents(n int) []diag.Event { return s.trace.Recent(n) }

func (s *Server) addRegion(r *Region) AddResult {
	if r.Count == 0 || uint32(r.Start)+uint32(r.Count) > 0x10000 {
		return AddInvalidArgument
	}
	if len(s.regions) >= s.regionCapacity {
		return AddFull
	}
	for _, existing := range s.regions {
		if overlaps(existing, r) {
			return AddOverlap
		}
	}
	s.regions = append(s.regions, r)
	return AddOK
}

// AddBoolRegion registers a coil or discrete-input region backed by a flat
// store.
func (s *Server) AddBoolRegion(kind Kind, start, count uint16, store BoolStore, readOnly bool) AddResult {
	if store == nil || (kind != KindCoils && kind != KindDiscreteInputs) {
		return AddInvalidArgument
	}
	return s.addRegion(&Region{Kind: kind, Start: start, Count: count, ReadOnly: readOnly, bools: store})
}

// AddBoolCallbackRegion registers a coil or discrete-input region backed by
// application logic instead of flat storage.
func (s *Server) AddBoolCallbackRegion(kind Kind, start, count uint16, cb BoolCallback, readOnly bool) AddResult {
	if cb == nil || (kind != KindCoils && kind != KindDiscreteInputs) {
		return AddInvalidArgument
	}
	return s.addRegion(&Region{Kind: kind, Start: start, Count: count, ReadOnly: readOnly, boolCB: cb})
}

// AddRegisterRegion registers a holding- or input-register region backed by
// a flat store.
func (s *Server) AddRegisterRegion(kind Kind, start, count uint16, store RegisterStore, readOnly bool) AddResult {
	if store == nil || (kind != KindHoldingRegisters && kind != KindInputRegisters) {
		return AddInvalidArgument
	}
	return s.addRegion(&Region{Kind: kind, Start: start, Count: count, ReadOnly: readOnly, registers: store})
}

// AddRegisterCallbackRegion registers a register region backed by
// application logic.
func (s *Server) AddRegisterCallbackRegion(kind Kind, start, count uint16, cb RegisterCallback, readOnly bool) AddResult {
	if cb == nil || (kind != KindHoldingRegisters && kind != KindInputRegisters) {
		return AddInvalidArgument
	}
	return s.addRegion(&Region{Kind: kind, Start: start, Count: count, ReadOnly: readOnly, registerCB: cb})
}

func (s *Server) findRegion(kind Kind, offset, count uint16) *Region {
	for _, r := range s.regions {
		if r.Kind == kind && r.contains(offset, count) {
			return r
		}
	}
	return nil
}

func kindToException(k transport.Kind) pdu.ExceptionCode {
	switch k {
	case transport.KindInvalidArgument, transport.KindInvalidRequest:
		return pdu.IllegalDataValue
	case transport.KindNoResources:
		return pdu.ServerDeviceBusy
	default:
		return pdu.ServerDeviceFailure
	}
}

func (r *Region) readBools(offset, count uint16) ([]bool, pdu.ExceptionCode, bool) {
	if r.bools != nil {
		v, ok := r.bools.ReadBools(offset-r.Start, count)
		if !ok {
			return nil, pdu.IllegalDataAddress, false
		}
		return v, 0, true
	}
	v, kind := r.boolCB.ReadBools(offset, count)
	if kind != transport.KindOK {
		return nil, kindToException(kind), false
	}
	return v, 0, true
}

func (r *Region) writeBools(offset uint16, values []bool) (pdu.ExceptionCode, bool) {
	if r.ReadOnly {
		return pdu.IllegalDataAddress, false
	}
	if r.bools != nil {
		if !r.bools.WriteBools(offset-r.Start, values) {
			return pdu.IllegalDataAddress, false
		}
		return 0, true
	}
	kind := r.boolCB.WriteBools(offset, values)
	if kind != transport.KindOK {
		return kindToException(kind), false
	}
	return 0, true
}

func (r *Region) readRegisters(offset, count uint16) ([]uint16, pdu.ExceptionCode, bool) {
	if r.registers != nil {
		v, ok := r.registers.ReadRegisters(offset-r.Start, count)
		if !ok {
			return nil, pdu.IllegalDataAddress, false
		}
		return v, 0, true
	}
	v, kind := r.registerCB.ReadRegisters(offset, count)
	if kind != transport.KindOK {
		return nil, kindToException(kind), false
	}
	return v, 0, true
}

func (r *Region) writeRegisters(offset uint16, values []uint16) (pdu.ExceptionCode, bool) {
	if r.ReadOnly {
		return pdu.IllegalDataAddress, false
	}
	if r.registers != nil {
		if !r.registers.WriteRegisters(offset-r.Start, values) {
			return pdu.IllegalDataAddress, false
		}
		return 0, true
	}
	kind := r.registerCB.WriteRegisters(offset, values)
	if kind != transport.KindOK {
		return kindToException(kind), false
	}
	return 0, true
}

// Poll drains one pending receive, decodes at most one frame, and routes
// and answers it. It never blocks and reports whether it made any
// progress, so PollWithBudget can stop early.
func (s *Server) Poll() bool {
	did := false
	n, _ := s.cap.Recv(s.recvBuf[:])
	now := s.cap.NowMs()
	if n > 0 {
		s.framing.Push(s.recvBuf[:n], now)
		did = true
	}
	frame, ok, err := s.framing.Next(now)
	switch {
	case err != nil:
		s.counters.RecordError(transport.AsError(err).Kind)
		did = true
	case ok:
		s.handle(frame)
		did = true
	}
	s.trackIdle(now, did)
	return did
}

func (s *Server) trackIdle(now uint32, did bool) {
	if s.onIdle == nil {
		return
	}
	if did {
		s.idleAnchorMs, s.idleAnchored, s.idleNotified = now, true, false
		return
	}
	if !s.idleAnchored {
		s.idleAnchorMs, s.idleAnchored = now, true
		return
	}
	if s.idleNotified {
		return
	}
	if transport.Elapsed(now, s.idleAnchorMs) >= s.idleMs {
		s.idleNotified = true
		s.onIdle()
	}
}

// PollWithBudget calls Poll up to n times, stopping as soon as a call makes
// no progress.
func (s *Server) PollWithBudget(n int) {
	for i := 0; i < n; i++ {
		if !s.Poll() {
			return
		}
	}
}

func (s *Server) handle(f framing.Frame) {
	broadcast := f.ADU.UnitID == 0
	if f.ADU.UnitID != s.unitID && !broadcast {
		return
	}
	s.counters.RecordRequest(f.ADU.Function)
	if s.traceHex {
		s.trace.Record(diag.Event{AtMs: s.cap.NowMs(), Kind: diag.EventRequestReceived, Function: f.ADU.Function})
	}
	s.logger.Debug("request", zap.Uint8("unitId", f.ADU.UnitID), zap.Stringer("function", f.ADU.Function))

	if !s.functions.Contains(f.ADU.Function) {
		s.respondException(f, pdu.IllegalFunction, broadcast)
		return
	}

	req, parseErr := pdu.ParseRequest(f.ADU.Function, f.ADU.Payload)
	if parseErr != nil {
		code := pdu.IllegalDataValue
		if parseErr == pdu.ErrUnknownFunction {
			code = pdu.IllegalFunction
		}
		s.respondException(f, code, broadcast)
		return
	}

	resp, code := s.dispatch(f.ADU.Function, req)
	if code != 0 {
		s.respondException(f, code, broadcast)
		return
	}
	if broadcast {
		return
	}
	s.sendResponse(f, resp)
}

func (s *Server) respondException(f framing.Frame, code pdu.ExceptionCode, broadcast bool) {
	s.counters.RecordError(transport.KindException)
	if s.traceHex {
		s.trace.Record(diag.Event{AtMs: s.cap.NowMs(), Kind: diag.EventError, Function: f.ADU.Function})
	}
	if broadcast {
		return
	}
	adu := transport.ADU{UnitID: f.ADU.UnitID, Function: f.ADU.Function.AsException()}
	frame := s.framing.Encode(adu, f.TransactionID, []byte{byte(code)})
	s.cap.Send(frame)
}

func (s *Server) sendResponse(f framing.Frame, resp pdu.Operation) {
	s.counters.RecordResponse(f.ADU.Function)
	if s.traceHex {
		s.trace.Record(diag.Event{AtMs: s.cap.NowMs(), Kind: diag.EventResponseSent, Function: f.ADU.Function})
	}
	adu := transport.ADU{UnitID: f.ADU.UnitID, Function: f.ADU.Function}
	frame := s.framing.Encode(adu, f.TransactionID, resp.Bytes())
	s.cap.Send(frame)
}

func (s *Server) dispatch(fc pdu.FunctionCode, op pdu.Operation) (pdu.Operation, pdu.ExceptionCode) {
	switch fc {
	case pdu.ReadCoils:
		req := op.(*pdu.ReadCoilsRequest)
		r := s.findRegion(KindCoils, req.Offset, req.Count)
		if r == nil {
			return nil, pdu.IllegalDataAddress
		}
		values, code, ok := r.readBools(req.Offset, req.Count)
		if !ok {
			return nil, code
		}
		return pdu.NewReadCoilsResponse(values), 0

	case pdu.ReadDiscreteInputs:
		req := op.(*pdu.ReadDiscreteInputsRequest)
		r := s.findRegion(KindDiscreteInputs, req.Offset, req.Count)
		if r == nil {
			return nil, pdu.IllegalDataAddress
		}
		values, code, ok := r.readBools(req.Offset, req.Count)
		if !ok {
			return nil, code
		}
		return pdu.NewReadDiscreteInputsResponse(values), 0

	case pdu.ReadHoldingRegisters:
		req := op.(*pdu.ReadHoldingRegistersRequest)
		r := s.findRegion(KindHoldingRegisters, req.Offset, req.Count)
		if r == nil {
			return nil, pdu.IllegalDataAddress
		}
		values, code, ok := r.readRegisters(req.Offset, req.Count)
		if !ok {
			return nil, code
		}
		return pdu.NewReadHoldingRegistersResponse(values), 0

	case pdu.ReadInputRegisters:
		req := op.(*pdu.ReadInputRegistersRequest)
		r := s.findRegion(KindInputRegisters, req.Offset, req.Count)
		if r == nil {
			return nil, pdu.IllegalDataAddress
		}
		values, code, ok := r.readRegisters(req.Offset, req.Count)
		if !ok {
			return nil, code
		}
		return pdu.NewReadInputRegistersResponse(values), 0

	case pdu.WriteSingleCoil:
		req := op.(*pdu.WriteSingleCoilRequest)
		r := s.findRegion(KindCoils, req.Offset, 1)
		if r == nil {
			return nil, pdu.IllegalDataAddress
		}
		if code, ok := r.writeBools(req.Offset, []bool{req.Value}); !ok {
			return nil, code
		}
		return pdu.NewWriteSingleCoilResponse(req.Offset, req.Value), 0

	case pdu.WriteSingleRegister:
		req := op.(*pdu.WriteSingleRegisterRequest)
		r := s.findRegion(KindHoldingRegisters, req.Offset, 1)
		if r == nil {
			return nil, pdu.IllegalDataAddress
		}
		if code, ok := r.writeRegisters(req.Offset, []uint16{req.Value}); !ok {
			return nil, code
		}
		return pdu.NewWriteSingleRegisterResponse(req.Offset, req.Value), 0

	case pdu.WriteMultipleCoils:
		req := op.(*pdu.WriteMultipleCoilsRequest)
		r := s.findRegion(KindCoils, req.Offset, uint16(len(req.Values)))
		if r == nil {
			return nil, pdu.IllegalDataAddress
		}
		if code, ok := r.writeBools(req.Offset, req.Values); !ok {
			return nil, code
		}
		return pdu.NewWriteMultipleCoilsResponse(req.Offset, uint16(len(req.Values))), 0

	case pdu.WriteMultipleRegisters:
		req := op.(*pdu.WriteMultipleRegistersRequest)
		r := s.findRegion(KindHoldingRegisters, req.Offset, uint16(len(req.Values)))
		if r == nil {
			return nil, pdu.IllegalDataAddress
		}
		if code, ok := r.writeRegisters(req.Offset, req.Values); !ok {
			return nil, code
		}
		return pdu.NewWriteMultipleRegistersResponse(req.Offset, uint16(len(req.Values))), 0

	case pdu.MaskWriteRegister:
		req := op.(*pdu.MaskWriteRegisterRequest)
		r := s.findRegion(KindHoldingRegisters, req.Offset, 1)
		if r == nil {
			return nil, pdu.IllegalDataAddress
		}
		current, code, ok := r.readRegisters(req.Offset, 1)
		if !ok {
			return nil, code
		}
		masked := (current[0] & req.And) | (req.Or &^ req.And)
		if code, ok := r.writeRegisters(req.Offset, []uint16{masked}); !ok {
			return nil, code
		}
		return pdu.NewMaskWriteRegisterResponse(req.Offset, req.And, req.Or), 0

	case pdu.ReadWriteMultipleRegisters:
		req := op.(*pdu.ReadWriteMultipleRegistersRequest)
		wr := s.findRegion(KindHoldingRegisters, req.WriteOffset, uint16(len(req.WriteValues)))
		if wr == nil {
			return nil, pdu.IllegalDataAddress
		}
		if code, ok := wr.writeRegisters(req.WriteOffset, req.WriteValues); !ok {
			return nil, code
		}
		rr := s.findRegion(KindHoldingRegisters, req.ReadOffset, req.ReadCount)
		if rr == nil {
			return nil, pdu.IllegalDataAddress
		}
		values, code, ok := rr.readRegisters(req.ReadOffset, req.ReadCount)
		if !ok {
			return nil, code
		}
		return pdu.NewReadWriteMultipleRegistersResponse(values), 0

	case pdu.ReportServerID:
		return pdu.NewReportServerIDResponse(s.serverID, s.serverRun), 0

	default:
		return nil, pdu.IllegalFunction
	}
}
