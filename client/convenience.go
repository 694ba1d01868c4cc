package client

import (
	"github.com/kestrel-automation/modbuscore/pdu"
	"github.com/kestrel-automation/modbuscore/transport"
)

// Sync wraps a Client with blocking convenience methods that submit a
// request, then loop Poll and Yield until the transaction reaches a
// terminal state or deadlineMs elapses. Per the engine's concurrency
// model, these are the only functions in the module allowed to loop.
type Sync struct {
	c          *Client
	deadlineMs uint32
}

// NewSync wraps c; deadlineMs bounds how long a call will loop waiting for
// a terminal result before giving up and cancelling the transaction.
func NewSync(c *Client, deadlineMs uint32) *Sync {
	return &Sync{c: c, deadlineMs: deadlineMs}
}

func (s *Sync) call(req Request) (pdu.Operation, error) {
	var result Result
	done := false
	req.Callback = func(r Result) { result = r; done = true }

	h, submitErr := s.c.Submit(req)
	if submitErr != nil {
		return nil, submitErr
	}

	start := s.c.cap.NowMs()
	cancelled := false
	for !done {
		s.c.Poll()
		s.c.cap.Yield()
		if !cancelled && transport.Elapsed(s.c.cap.NowMs(), start) > s.deadlineMs {
			s.c.Cancel(h)
			cancelled = true
		}
	}
	if result.Err != nil {
		return nil, result.Err
	}
	return result.Response, nil
}

func (s *Sync) ReadCoils(unitID byte, offset, quantity uint16) ([]bool, error) {
	req, err := pdu.NewReadCoilsRequest(offset, quantity)
	if err != nil {
		return nil, transport.FromPDU(err)
	}
	op, callErr := s.call(Request{UnitID: unitID, Function: pdu.ReadCoils, Operation: req, ValueCount: int(quantity), TimeoutMs: defaultRequestTimeoutMs})
	if callErr != nil {
		return nil, callErr
	}
	return op.(*pdu.ReadCoilsResponse).Values, nil
}

func (s *Sync) ReadDiscreteInputs(unitID byte, offset, quantity uint16) ([]bool, error) {
	req, err := pdu.NewReadDiscreteInputsRequest(offset, quantity)
	if err != nil {
		return nil, transport.FromPDU(err)
	}
	op, callErr := s.call(Request{UnitID: unitID, Function: pdu.ReadDiscreteInputs, Operation: req, ValueCount: int(quantity), TimeoutMs: defaultRequestTimeoutMs})
	if callErr != nil {
		return nil, callErr
	}
	return op.(*pdu.ReadDiscreteInputsResponse).Values, nil
}

func (s *Sync) ReadHoldingRegisters(unitID byte, offset, quantity uint16) ([]uint16, error) {
	req, err := pdu.NewReadHoldingRegistersRequest(offset, quantity)
	if err != nil {
		return nil, transport.FromPDU(err)
	}
	op, callErr := s.call(Request{UnitID: unitID, Function: pdu.ReadHoldingRegisters, Operation: req, ValueCount: int(quantity), TimeoutMs: defaultRequestTimeoutMs})
	if callErr != nil {
		return nil, callErr
	}
	return op.(*pdu.ReadHoldingRegistersResponse).Values, nil
}

func (s *Sync) ReadInputRegisters(unitID byte, offset, quantity uint16) ([]uint16, error) {
	req, err := pdu.NewReadInputRegistersRequest(offset, quantity)
	if err != nil {
		return nil, transport.FromPDU(err)
	}
	op, callErr := s.call(Request{UnitID: unitID, Function: pdu.ReadInputRegisters, Operation: req, ValueCount: int(quantity), TimeoutMs: defaultRequestTimeoutMs})
	if callErr != nil {
		return nil, callErr
	}
	return op.(*pdu.ReadInputRegistersResponse).Values, nil
}

func (s *Sync) WriteSingleCoil(unitID byte, offset uint16, value bool) error {
	req := pdu.NewWriteSingleCoilRequest(offset, value)
	op, callErr := s.call(Request{UnitID: unitID, Function: pdu.WriteSingleCoil, Operation: req, TimeoutMs: defaultRequestTimeoutMs})
	if callErr != nil {
		return callErr
	}
	resp := op.(*pdu.WriteSingleCoilResponse)
	if resp.Offset != offset || resp.Value != value {
		return transport.NewError(transport.KindInvalidRequest, nil)
	}
	return nil
}

func (s *Sync) WriteSingleRegister(unitID byte, offset, value uint16) error {
	req := pdu.NewWriteSingleRegisterRequest(offset, value)
	op, callErr := s.call(Request{UnitID: unitID, Function: pdu.WriteSingleRegister, Operation: req, TimeoutMs: defaultRequestTimeoutMs})
	if callErr != nil {
		return callErr
	}
	resp := op.(*pdu.WriteSingleRegisterResponse)
	if resp.Offset != offset || resp.Value != value {
		return transport.NewError(transport.KindInvalidRequest, nil)
	}
	return nil
}

func (s *Sync) WriteMultipleCoils(unitID byte, offset uint16, values []bool) error {
	req, err := pdu.NewWriteMultipleCoilsRequest(offset, values)
	if err != nil {
		return transport.FromPDU(err)
	}
	op, callErr := s.call(Request{UnitID: unitID, Function: pdu.WriteMultipleCoils, Operation: req, TimeoutMs: defaultRequestTimeoutMs})
	if callErr != nil {
		return callErr
	}
	resp := op.(*pdu.WriteMultipleCoilsResponse)
	if resp.Offset != offset || int(resp.Count) != len(values) {
		return transport.NewError(transport.KindInvalidRequest, nil)
	}
	return nil
}

func (s *Sync) WriteMultipleRegisters(unitID byte, offset uint16, values []uint16) error {
	req, err := pdu.NewWriteMultipleRegistersRequest(offset, values)
	if err != nil {
		return transport.FromPDU(err)
	}
	op, callErr := s.call(Request{UnitID: unitID, Function: pdu.WriteMultipleRegisters, Operation: req, TimeoutMs: defaultRequestTimeoutMs})
	if callErr != nil {
		return callErr
	}
	resp := op.(*pdu.WriteMultipleRegistersResponse)
	if resp.Offset != offset || int(resp.Count) != len(values) {
		return transport.NewError(transport.KindInvalidRequest, nil)
	}
	return nil
}

func (s *Sync) MaskWriteRegister(unitID byte, offset, and, or uint16) error {
	req := pdu.NewMaskWriteRegisterRequest(offset, and, or)
	op, callErr := s.call(Request{UnitID: unitID, Function: pdu.MaskWriteRegister, Operation: req, TimeoutMs: defaultRequestTimeoutMs})
	if callErr != nil {
		return callErr
	}
	resp := op.(*pdu.MaskWriteRegisterResponse)
	if resp.Offset != offset || resp.And != and || resp.Or != or {
		return transport.NewError(transport.KindInvalidRequest, nil)
	}
	return nil
}

func (s *Sync) ReadWriteMultipleRegisters(unitID byte, readOffset, readCount, writeOffset uint16, writeValues []uint16) ([]uint16, error) {
	req, err := pdu.NewReadWriteMultipleRegistersRequest(readOffset, readCount, writeOffset, writeValues)
	if err != nil {
		return nil, transport.FromPDU(err)
	}
	op, callErr := s.call(Request{UnitID: unitID, Function: pdu.ReadWriteMultipleRegisters, Operation: req, ValueCount: int(readCount), TimeoutMs: defaultRequestTimeoutMs})
	if callErr != nil {
		return nil, callErr
	}
	return op.(*pdu.ReadWriteMultipleRegistersResponse).Values, nil
}

func (s *Sync) ReportServerID(unitID byte) ([]byte, bool, error) {
	op, callErr := s.call(Request{UnitID: unitID, Function: pdu.ReportServerID, Operation: &pdu.ReportServerIDRequest{}, TimeoutMs: defaultRequestTimeoutMs})
	if callErr != nil {
		return nil, false, callErr
	}
	resp := op.(*pdu.ReportServerIDResponse)
	return resp.ID, resp.Run, nil
}

const defaultRequestTimeoutMs = 1000
