package pdu

import "go.uber.org/zap/zapcore"

// Operation is the payload half of a PDU: a function's request or response
// data with no addressing or checksum. Implementations never copy the wire
// bytes they were parsed from except where the wire format requires it
// (e.g. unpacking a packed bit array).
type Operation interface {
	zapcore.ObjectMarshaler
	Bytes() []byte
}

// Countable is implemented by read requests and array responses so the
// client engine can remember how many coils/registers a response must
// unpack without holding onto the original request.
type Countable interface {
	ValueCount() int
}

func countOf(n int, min, max int) error {
	if n < min || n > max {
		return ErrOutOfRange
	}
	return nil
}

// ReadCoilsRequest reads the status of 1..2000 coils starting at Offset.
type ReadCoilsRequest struct {
	Offset uint16
	Count  uint16
}

func NewReadCoilsRequest(offset, count uint16) (*ReadCoilsRequest, error) {
	if err := countOf(int(count), 1, 2000); err != nil {
		return nil, err
	}
	return &ReadCoilsRequest{Offset: offset, Count: count}, nil
}

func (r *ReadCoilsRequest) ValueCount() int { return int(r.Count) }

func (r *ReadCoilsRequest) Bytes() []byte {
	return []byte{byte(r.Offset >> 8), byte(r.Offset), byte(r.Count >> 8), byte(r.Count)}
}

func (r *ReadCoilsRequest) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("offset", r.Offset)
	enc.AddUint16("count", r.Count)
	return nil
}

// ReadDiscreteInputsRequest reads the status of 1..2000 discrete inputs.
type ReadDiscreteInputsRequest struct {
	Offset uint16
	Count  uint16
}

func NewReadDiscreteInputsRequest(offset, count uint16) (*ReadDiscreteInputsRequest, error) {
	if err := countOf(int(count), 1, 2000); err != nil {
		return nil, err
	}
	return &ReadDiscreteInputsRequest{Offset: offset, Count: count}, nil
}

func (r *ReadDiscreteInputsRequest) ValueCount() int { return int(r.Count) }

func (r *ReadDiscreteInputsRequest) Bytes() []byte {
	return []byte{byte(r.Offset >> 8), byte(r.Offset), byte(r.Count >> 8), byte(r.Count)}
}

func (r *ReadDiscreteInputsRequest) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("offset", r.Offset)
	enc.AddUint16("count", r.Count)
	return nil
}

// ReadHoldingRegistersRequest reads 1..125 holding registers.
type ReadHoldingRegistersRequest struct {
	Offset uint16
	Count  uint16
}

func NewReadHoldingRegistersRequest(offset, count uint16) (*ReadHoldingRegistersRequest, error) {
	if err := countOf(int(count), 1, 125); err != nil {
		return nil, err
	}
	return &ReadHoldingRegistersRequest{Offset: offset, Count: count}, nil
}

func (r *ReadHoldingRegistersRequest) ValueCount() int { return int(r.Count) }

func (r *ReadHoldingRegistersRequest) Bytes() []byte {
	return []byte{byte(r.Offset >> 8), byte(r.Offset), byte(r.Count >> 8), byte(r.Count)}
}

func (r *ReadHoldingRegistersRequest) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("offset", r.Offset)
	enc.AddUint16("count", r.Count)
	return nil
}

// ReadInputRegistersRequest reads 1..125 input registers.
type ReadInputRegistersRequest struct {
	Offset uint16
	Count  uint16
}

func NewReadInputRegistersRequest(offset, count uint16) (*ReadInputRegistersRequest, error) {
	if err := countOf(int(count), 1, 125); err != nil {
		return nil, err
	}
	return &ReadInputRegistersRequest{Offset: offset, Count: count}, nil
}

func (r *ReadInputRegistersRequest) ValueCount() int { return int(r.Count) }

func (r *ReadInputRegistersRequest) Bytes() []byte {
	return []byte{byte(r.Offset >> 8), byte(r.Offset), byte(r.Count >> 8), byte(r.Count)}
}

func (r *ReadInputRegistersRequest) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("offset", r.Offset)
	enc.AddUint16("count", r.Count)
	return nil
}

func boolArrayBytes(values []bool) []byte {
	byteCount := len(values) / 8
	if len(values)%8 != 0 {
		byteCount++
	}
	data := make([]byte, 1+byteCount)
	data[0] = byte(byteCount)
	for i, v := range values {
		if v {
			data[1+i/8] |= 1 << uint(i%8)
		}
	}
	return data
}

// ReadCoilsResponse carries the coil values read, one bool per coil.
type ReadCoilsResponse struct {
	Values []bool
}

func NewReadCoilsResponse(values []bool) *ReadCoilsResponse {
	return &ReadCoilsResponse{Values: values}
}

func (r *ReadCoilsResponse) ValueCount() int { return len(r.Values) }
func (r *ReadCoilsResponse) Bytes() []byte   { return boolArrayBytes(r.Values) }

func (r *ReadCoilsResponse) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	return enc.AddArray("values", zapcore.ArrayMarshalerFunc(func(ae zapcore.ArrayEncoder) error {
		for _, v := range r.Values {
			ae.AppendBool(v)
		}
		return nil
	}))
}

// ReadDiscreteInputsResponse carries the discrete input values read.
type ReadDiscreteInputsResponse struct {
	Values []bool
}

func NewReadDiscreteInputsResponse(values []bool) *ReadDiscreteInputsResponse {
	return &ReadDiscreteInputsResponse{Values: values}
}

func (r *ReadDiscreteInputsResponse) ValueCount() int { return len(r.Values) }
func (r *ReadDiscreteInputsResponse) Bytes() []byte   { return boolArrayBytes(r.Values) }

func (r *ReadDiscreteInputsResponse) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	return enc.AddArray("values", zapcore.ArrayMarshalerFunc(func(ae zapcore.ArrayEncoder) error {
		for _, v := range r.Values {
			ae.AppendBool(v)
		}
		return nil
	}))
}

func regArrayBytes(values []uint16) []byte {
	data := make([]byte, 1+2*len(values))
	data[0] = byte(2 * len(values))
	for i, v := range values {
		data[1+2*i] = byte(v >> 8)
		data[2+2*i] = byte(v)
	}
	return data
}

// ReadHoldingRegistersResponse carries the register values read.
type ReadHoldingRegistersResponse struct {
	Values []uint16
}

func NewReadHoldingRegistersResponse(values []uint16) *ReadHoldingRegistersResponse {
	return &ReadHoldingRegistersResponse{Values: values}
}

func (r *ReadHoldingRegistersResponse) ValueCount() int { return len(r.Values) }
func (r *ReadHoldingRegistersResponse) Bytes() []byte   { return regArrayBytes(r.Values) }

func (r *ReadHoldingRegistersResponse) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	return enc.AddArray("values", zapcore.ArrayMarshalerFunc(func(ae zapcore.ArrayEncoder) error {
		for _, v := range r.Values {
			ae.AppendUint16(v)
		}
		return nil
	}))
}

// ReadInputRegistersResponse carries the register values read.
type ReadInputRegistersResponse struct {
	Values []uint16
}

func NewReadInputRegistersResponse(values []uint16) *ReadInputRegistersResponse {
	return &ReadInputRegistersResponse{Values: values}
}

func (r *ReadInputRegistersResponse) ValueCount() int { return len(r.Values) }
func (r *ReadInputRegistersResponse) Bytes() []byte   { return regArrayBytes(r.Values) }

func (r *ReadInputRegistersResponse) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	return enc.AddArray("values", zapcore.ArrayMarshalerFunc(func(ae zapcore.ArrayEncoder) error {
		for _, v := range r.Values {
			ae.AppendUint16(v)
		}
		return nil
	}))
}

// WriteSingleCoilRequest writes one coil; the wire encodes true as 0xFF00.
type WriteSingleCoilRequest struct {
	Offset uint16
	Value  bool
}

func NewWriteSingleCoilRequest(offset uint16, value bool) *WriteSingleCoilRequest {
	return &WriteSingleCoilRequest{Offset: offset, Value: value}
}

func (r *WriteSingleCoilRequest) Bytes() []byte {
	v := byte(0x00)
	if r.Value {
		v = 0xFF
	}
	return []byte{byte(r.Offset >> 8), byte(r.Offset), v, 0x00}
}

func (r *WriteSingleCoilRequest) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("offset", r.Offset)
	enc.AddBool("value", r.Value)
	return nil
}

// WriteSingleCoilResponse echoes the request verbatim on success.
type WriteSingleCoilResponse struct {
	Offset uint16
	Value  bool
}

func NewWriteSingleCoilResponse(offset uint16, value bool) *WriteSingleCoilResponse {
	return &WriteSingleCoilResponse{Offset: offset, Value: value}
}

func (r *WriteSingleCoilResponse) Bytes() []byte {
	v := byte(0x00)
	if r.Value {
		v = 0xFF
	}
	return []byte{byte(r.Offset >> 8), byte(r.Offset), v, 0x00}
}

func (r *WriteSingleCoilResponse) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("offset", r.Offset)
	enc.AddBool("value", r.Value)
	return nil
}

// WriteSingleRegisterRequest writes one holding register.
type WriteSingleRegisterRequest struct {
	Offset uint16
	Value  uint16
}

func NewWriteSingleRegisterRequest(offset, value uint16) *WriteSingleRegisterRequest {
	return &WriteSingleRegisterRequest{Offset: offset, Value: value}
}

func (r *WriteSingleRegisterRequest) Bytes() []byte {
	return []byte{byte(r.Offset >> 8), byte(r.Offset), byte(r.Value >> 8), byte(r.Value)}
}

func (r *WriteSingleRegisterRequest) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("offset", r.Offset)
	enc.AddUint16("value", r.Value)
	return nil
}

// WriteSingleRegisterResponse echoes the request verbatim on success.
type WriteSingleRegisterResponse struct {
	Offset uint16
	Value  uint16
}

func NewWriteSingleRegisterResponse(offset, value uint16) *WriteSingleRegisterResponse {
	return &WriteSingleRegisterResponse{Offset: offset, Value: value}
}

func (r *WriteSingleRegisterResponse) Bytes() []byte {
	return []byte{byte(r.Offset >> 8), byte(r.Offset), byte(r.Value >> 8), byte(r.Value)}
}

func (r *WriteSingleRegisterResponse) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("offset", r.Offset)
	enc.AddUint16("value", r.Value)
	return nil
}

// WriteMultipleCoilsRequest writes 1..1968 coils starting at Offset.
type WriteMultipleCoilsRequest struct {
	Offset uint16
	Values []bool
}

func NewWriteMultipleCoilsRequest(offset uint16, values []bool) (*WriteMultipleCoilsRequest, error) {
	if err := countOf(len(values), 1, 1968); err != nil {
		return nil, err
	}
	return &WriteMultipleCoilsRequest{Offset: offset, Values: values}, nil
}

func (r *WriteMultipleCoilsRequest) ValueCount() int { return len(r.Values) }

func (r *WriteMultipleCoilsRequest) Bytes() []byte {
	byteCount := len(r.Values) / 8
	if len(r.Values)%8 != 0 {
		byteCount++
	}
	data := make([]byte, 5+byteCount)
	data[0] = byte(r.Offset >> 8)
	data[1] = byte(r.Offset)
	data[2] = byte(len(r.Values) >> 8)
	data[3] = byte(len(r.Values))
	data[4] = byte(byteCount)
	for i, v := range r.Values {
		if v {
			data[5+i/8] |= 1 << uint(i%8)
		}
	}
	return data
}

func (r *WriteMultipleCoilsRequest) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("offset", r.Offset)
	enc.AddInt("count", len(r.Values))
	return nil
}

// WriteMultipleCoilsResponse reports the offset and count written.
type WriteMultipleCoilsResponse struct {
	Offset uint16
	Count  uint16
}

func NewWriteMultipleCoilsResponse(offset, count uint16) *WriteMultipleCoilsResponse {
	return &WriteMultipleCoilsResponse{Offset: offset, Count: count}
}

func (r *WriteMultipleCoilsResponse) Bytes() []byte {
	return []byte{byte(r.Offset >> 8), byte(r.Offset), byte(r.Count >> 8), byte(r.Count)}
}

func (r *WriteMultipleCoilsResponse) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("offset", r.Offset)
	enc.AddUint16("count", r.Count)
	return nil
}

// WriteMultipleRegistersRequest writes 1..123 holding registers.
type WriteMultipleRegistersRequest struct {
	Offset uint16
	Values []uint16
}

func NewWriteMultipleRegistersRequest(offset uint16, values []uint16) (*WriteMultipleRegistersRequest, error) {
	if err := countOf(len(values), 1, 123); err != nil {
		return nil, err
	}
	return &WriteMultipleRegistersRequest{Offset: offset, Values: values}, nil
}

func (r *WriteMultipleRegistersRequest) ValueCount() int { return len(r.Values) }

func (r *WriteMultipleRegistersRequest) Bytes() []byte {
	byteCount := 2 * len(r.Values)
	data := make([]byte, 5+byteCount)
	data[0] = byte(r.Offset >> 8)
	data[1] = byte(r.Offset)
	data[2] = byte(len(r.Values) >> 8)
	data[3] = byte(len(r.Values))
	data[4] = byte(byteCount)
	for i, v := range r.Values {
		data[5+2*i] = byte(v >> 8)
		data[6+2*i] = byte(v)
	}
	return data
}

func (r *WriteMultipleRegistersRequest) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("offset", r.Offset)
	enc.AddInt("count", len(r.Values))
	return nil
}

// WriteMultipleRegistersResponse reports the offset and count written.
type WriteMultipleRegistersResponse struct {
	Offset uint16
	Count  uint16
}

func NewWriteMultipleRegistersResponse(offset, count uint16) *WriteMultipleRegistersResponse {
	return &WriteMultipleRegistersResponse{Offset: offset, Count: count}
}

func (r *WriteMultipleRegistersResponse) Bytes() []byte {
	return []byte{byte(r.Offset >> 8), byte(r.Offset), byte(r.Count >> 8), byte(r.Count)}
}

func (r *WriteMultipleRegistersResponse) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("offset", r.Offset)
	enc.AddUint16("count", r.Count)
	return nil
}

// MaskWriteRegisterRequest applies result = (current & And) | (Or &^ And)
// to the holding register at Offset.
type MaskWriteRegisterRequest struct {
	Offset uint16
	And    uint16
	Or     uint16
}

func NewMaskWriteRegisterRequest(offset, and, or uint16) *MaskWriteRegisterRequest {
	return &MaskWriteRegisterRequest{Offset: offset, And: and, Or: or}
}

func (r *MaskWriteRegisterRequest) Bytes() []byte {
	return []byte{
		byte(r.Offset >> 8), byte(r.Offset),
		byte(r.And >> 8), byte(r.And),
		byte(r.Or >> 8), byte(r.Or),
	}
}

func (r *MaskWriteRegisterRequest) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("offset", r.Offset)
	enc.AddUint16("and", r.And)
	enc.AddUint16("or", r.Or)
	return nil
}

// Apply computes the masked write result for a current register value.
func (r *MaskWriteRegisterRequest) Apply(current uint16) uint16 {
	return (current & r.And) | (r.Or &^ r.And)
}

// MaskWriteRegisterResponse echoes the request verbatim on success.
type MaskWriteRegisterResponse struct {
	Offset uint16
	And    uint16
	Or     uint16
}

func NewMaskWriteRegisterResponse(offset, and, or uint16) *MaskWriteRegisterResponse {
	return &MaskWriteRegisterResponse{Offset: offset, And: and, Or: or}
}

func (r *MaskWriteRegisterResponse) Bytes() []byte {
	return []byte{
		byte(r.Offset >> 8), byte(r.Offset),
		byte(r.And >> 8), byte(r.And),
		byte(r.Or >> 8), byte(r.Or),
	}
}

func (r *MaskWriteRegisterResponse) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("offset", r.Offset)
	enc.AddUint16("and", r.And)
	enc.AddUint16("or", r.Or)
	return nil
}

// ReadWriteMultipleRegistersRequest writes WriteValues at WriteOffset, then
// reads ReadCount registers starting at ReadOffset. The write is applied
// before the read on the server side.
type ReadWriteMultipleRegistersRequest struct {
	ReadOffset  uint16
	ReadCount   uint16
	WriteOffset uint16
	WriteValues []uint16
}

func NewReadWriteMultipleRegistersRequest(readOffset, readCount, writeOffset uint16, writeValues []uint16) (*ReadWriteMultipleRegistersRequest, error) {
	if err := countOf(int(readCount), 1, 125); err != nil {
		return nil, err
	}
	if err := countOf(len(writeValues), 1, 121); err != nil {
		return nil, err
	}
	return &ReadWriteMultipleRegistersRequest{
		ReadOffset:  readOffset,
		ReadCount:   readCount,
		WriteOffset: writeOffset,
		WriteValues: writeValues,
	}, nil
}

func (r *ReadWriteMultipleRegistersRequest) ValueCount() int { return int(r.ReadCount) }

func (r *ReadWriteMultipleRegistersRequest) Bytes() []byte {
	byteCount := 2 * len(r.WriteValues)
	data := make([]byte, 9+byteCount)
	data[0] = byte(r.ReadOffset >> 8)
	data[1] = byte(r.ReadOffset)
	data[2] = byte(r.ReadCount >> 8)
	data[3] = byte(r.ReadCount)
	data[4] = byte(r.WriteOffset >> 8)
	data[5] = byte(r.WriteOffset)
	data[6] = byte(len(r.WriteValues) >> 8)
	data[7] = byte(len(r.WriteValues))
	data[8] = byte(byteCount)
	for i, v := range r.WriteValues {
		data[9+2*i] = byte(v >> 8)
		data[10+2*i] = byte(v)
	}
	return data
}

func (r *ReadWriteMultipleRegistersRequest) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("readOffset", r.ReadOffset)
	enc.AddUint16("readCount", r.ReadCount)
	enc.AddUint16("writeOffset", r.WriteOffset)
	enc.AddInt("writeCount", len(r.WriteValues))
	return nil
}

// ReadWriteMultipleRegistersResponse carries the registers read after the
// paired write was applied.
type ReadWriteMultipleRegistersResponse struct {
	Values []uint16
}

func NewReadWriteMultipleRegistersResponse(values []uint16) *ReadWriteMultipleRegistersResponse {
	return &ReadWriteMultipleRegistersResponse{Values: values}
}

func (r *ReadWriteMultipleRegistersResponse) ValueCount() int { return len(r.Values) }
func (r *ReadWriteMultipleRegistersResponse) Bytes() []byte   { return regArrayBytes(r.Values) }

func (r *ReadWriteMultipleRegistersResponse) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	return enc.AddArray("values", zapcore.ArrayMarshalerFunc(func(ae zapcore.ArrayEncoder) error {
		for _, v := range r.Values {
			ae.AppendUint16(v)
		}
		return nil
	}))
}

// ReportServerIDRequest carries no data.
type ReportServerIDRequest struct{}

func (r *ReportServerIDRequest) Bytes() []byte { return nil }
func (r *ReportServerIDRequest) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	return nil
}

// ReportServerIDResponse carries a host-defined identifier blob and the
// device's run/listen-only indicator.
type ReportServerIDResponse struct {
	ID  []byte
	Run bool
}

func NewReportServerIDResponse(id []byte, run bool) *ReportServerIDResponse {
	return &ReportServerIDResponse{ID: id, Run: run}
}

func (r *ReportServerIDResponse) Bytes() []byte {
	data := make([]byte, 2+len(r.ID))
	data[0] = byte(1 + len(r.ID))
	copy(data[1:], r.ID)
	if r.Run {
		data[1+len(r.ID)] = 0xFF
	}
	return data
}

func (r *ReportServerIDResponse) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddBinary("id", r.ID)
	enc.AddBool("run", r.Run)
	return nil
}

// ExceptionResponse is emitted in place of any response above when the
// server cannot honor the request.
type ExceptionResponse struct {
	Function FunctionCode
	Code     ExceptionCode
}

func NewExceptionResponse(fc FunctionCode, code ExceptionCode) *ExceptionResponse {
	return &ExceptionResponse{Function: fc.Base(), Code: code}
}

func (r *ExceptionResponse) Bytes() []byte { return []byte{byte(r.Code)} }

func (r *ExceptionResponse) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("function", r.Function.String())
	enc.AddString("exception", r.Code.String())
	return nil
}
