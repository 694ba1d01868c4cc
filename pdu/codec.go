package pdu

// EncodePDU concatenates a function code and an operation's payload into a
// wire-ready PDU. The returned slice is freshly allocated; callers that want
// to avoid the allocation should call op.Bytes() directly and prefix the
// function code into their own scratch buffer (this is what the framing
// encoders do).
func EncodePDU(fc FunctionCode, op Operation) []byte {
	body := op.Bytes()
	out := make([]byte, 1+len(body))
	out[0] = byte(fc)
	copy(out[1:], body)
	return out
}

// EncodeExceptionPDU builds the two-byte exception PDU `fc|0x80, code`.
func EncodeExceptionPDU(fc FunctionCode, code ExceptionCode) []byte {
	return []byte{byte(fc.AsException()), byte(code)}
}

// ParseRequest decodes the function-specific payload of a request PDU.
// data is the PDU body with the function code already stripped off; it is
// never copied, only sliced.
func ParseRequest(fc FunctionCode, data []byte) (Operation, error) {
	switch fc {
	case ReadCoils:
		return parseReadRequest(data, func(o, c uint16) (Operation, error) { return NewReadCoilsRequest(o, c) })
	case ReadDiscreteInputs:
		return parseReadRequest(data, func(o, c uint16) (Operation, error) { return NewReadDiscreteInputsRequest(o, c) })
	case ReadHoldingRegisters:
		return parseReadRequest(data, func(o, c uint16) (Operation, error) { return NewReadHoldingRegistersRequest(o, c) })
	case ReadInputRegisters:
		return parseReadRequest(data, func(o, c uint16) (Operation, error) { return NewReadInputRegistersRequest(o, c) })
	case WriteSingleCoil:
		return parseWriteSingleCoilRequest(data)
	case WriteSingleRegister:
		return parseWriteSingleRegisterRequest(data)
	case WriteMultipleCoils:
		return parseWriteMultipleCoilsRequest(data)
	case WriteMultipleRegisters:
		return parseWriteMultipleRegistersRequest(data)
	case MaskWriteRegister:
		return parseMaskWriteRegisterRequest(data)
	case ReadWriteMultipleRegisters:
		return parseReadWriteMultipleRegistersRequest(data)
	case ReportServerID:
		return &ReportServerIDRequest{}, nil
	default:
		return nil, ErrUnknownFunction
	}
}

func parseReadRequest(data []byte, new func(offset, count uint16) (Operation, error)) (Operation, error) {
	if len(data) != 4 {
		return nil, ErrShortPacket
	}
	offset := be16(data[0], data[1])
	count := be16(data[2], data[3])
	return new(offset, count)
}

func parseWriteSingleCoilRequest(data []byte) (Operation, error) {
	if len(data) != 4 {
		return nil, ErrShortPacket
	}
	if data[3] != 0x00 || (data[2] != 0x00 && data[2] != 0xFF) {
		return nil, ErrOutOfRange
	}
	return NewWriteSingleCoilRequest(be16(data[0], data[1]), data[2] == 0xFF), nil
}

func parseWriteSingleRegisterRequest(data []byte) (Operation, error) {
	if len(data) != 4 {
		return nil, ErrShortPacket
	}
	return NewWriteSingleRegisterRequest(be16(data[0], data[1]), be16(data[2], data[3])), nil
}

func parseWriteMultipleCoilsRequest(data []byte) (Operation, error) {
	if len(data) < 5 {
		return nil, ErrShortPacket
	}
	offset := be16(data[0], data[1])
	count := be16(data[2], data[3])
	byteCount := int(data[4])
	if len(data) != 5+byteCount {
		return nil, ErrWrongLength
	}
	if err := countOf(int(count), 1, 1968); err != nil {
		return nil, err
	}
	expectedBytes := int(count) / 8
	if count%8 != 0 {
		expectedBytes++
	}
	if byteCount != expectedBytes {
		return nil, ErrWrongLength
	}
	values := make([]bool, count)
	for i := range values {
		values[i] = data[5+i/8]&(1<<uint(i%8)) != 0
	}
	return &WriteMultipleCoilsRequest{Offset: offset, Values: values}, nil
}

func parseWriteMultipleRegistersRequest(data []byte) (Operation, error) {
	if len(data) < 5 {
		return nil, ErrShortPacket
	}
	offset := be16(data[0], data[1])
	count := be16(data[2], data[3])
	byteCount := int(data[4])
	if len(data) != 5+byteCount {
		return nil, ErrWrongLength
	}
	if err := countOf(int(count), 1, 123); err != nil {
		return nil, err
	}
	if byteCount != 2*int(count) {
		return nil, ErrWrongLength
	}
	values := make([]uint16, count)
	for i := range values {
		values[i] = be16(data[5+2*i], data[6+2*i])
	}
	return &WriteMultipleRegistersRequest{Offset: offset, Values: values}, nil
}

func parseMaskWriteRegisterRequest(data []byte) (Operation, error) {
	if len(data) != 6 {
		return nil, ErrShortPacket
	}
	return NewMaskWriteRegisterRequest(be16(data[0], data[1]), be16(data[2], data[3]), be16(data[4], data[5])), nil
}

func parseReadWriteMultipleRegistersRequest(data []byte) (Operation, error) {
	if len(data) < 9 {
		return nil, ErrShortPacket
	}
	readOffset := be16(data[0], data[1])
	readCount := be16(data[2], data[3])
	writeOffset := be16(data[4], data[5])
	writeCount := be16(data[6], data[7])
	byteCount := int(data[8])
	if len(data) != 9+byteCount {
		return nil, ErrWrongLength
	}
	if byteCount != 2*int(writeCount) {
		return nil, ErrWrongLength
	}
	values := make([]uint16, writeCount)
	for i := range values {
		values[i] = be16(data[9+2*i], data[10+2*i])
	}
	return NewReadWriteMultipleRegistersRequest(readOffset, readCount, writeOffset, values)
}

// ParseResponse decodes the function-specific payload of a response PDU.
// valueCount is the quantity carried by the originating request, needed to
// size the unpacked bit/register array for read responses (the wire only
// carries a byte count, which can include padding bits).
func ParseResponse(fc FunctionCode, data []byte, valueCount int) (Operation, error) {
	switch fc {
	case ReadCoils:
		return parseReadBoolResponse(data, valueCount, func(v []bool) Operation { return NewReadCoilsResponse(v) })
	case ReadDiscreteInputs:
		return parseReadBoolResponse(data, valueCount, func(v []bool) Operation { return NewReadDiscreteInputsResponse(v) })
	case ReadHoldingRegisters:
		return parseReadRegResponse(data, valueCount, func(v []uint16) Operation { return NewReadHoldingRegistersResponse(v) })
	case ReadInputRegisters:
		return parseReadRegResponse(data, valueCount, func(v []uint16) Operation { return NewReadInputRegistersResponse(v) })
	case ReadWriteMultipleRegisters:
		return parseReadRegResponse(data, valueCount, func(v []uint16) Operation { return NewReadWriteMultipleRegistersResponse(v) })
	case WriteSingleCoil:
		op, err := parseWriteSingleCoilRequest(data) // identical wire shape to the request
		if err != nil {
			return nil, err
		}
		r := op.(*WriteSingleCoilRequest)
		return NewWriteSingleCoilResponse(r.Offset, r.Value), nil
	case WriteSingleRegister:
		op, err := parseWriteSingleRegisterRequest(data)
		if err != nil {
			return nil, err
		}
		r := op.(*WriteSingleRegisterRequest)
		return NewWriteSingleRegisterResponse(r.Offset, r.Value), nil
	case WriteMultipleCoils:
		return parseWriteMultipleArrayResponse(data, func(o, c uint16) Operation { return NewWriteMultipleCoilsResponse(o, c) })
	case WriteMultipleRegisters:
		return parseWriteMultipleArrayResponse(data, func(o, c uint16) Operation { return NewWriteMultipleRegistersResponse(o, c) })
	case MaskWriteRegister:
		return parseMaskWriteRegisterResponse(data)
	case ReportServerID:
		return parseReportServerIDResponse(data)
	default:
		return nil, ErrUnknownFunction
	}
}

func parseReadBoolResponse(data []byte, valueCount int, new func([]bool) Operation) (Operation, error) {
	if len(data) < 1 {
		return nil, ErrShortPacket
	}
	byteCount := int(data[0])
	if len(data) != 1+byteCount {
		return nil, ErrWrongLength
	}
	values := make([]bool, 8*byteCount)
	for i := range values {
		values[i] = data[1+i/8]&(1<<uint(i%8)) != 0
	}
	if valueCount > len(values) {
		return nil, ErrWrongLength
	}
	if valueCount > 0 {
		values = values[:valueCount]
	}
	return new(values), nil
}

func parseReadRegResponse(data []byte, valueCount int, new func([]uint16) Operation) (Operation, error) {
	if len(data) < 1 {
		return nil, ErrShortPacket
	}
	byteCount := int(data[0])
	if len(data) != 1+byteCount || byteCount%2 != 0 {
		return nil, ErrWrongLength
	}
	values := make([]uint16, byteCount/2)
	for i := range values {
		values[i] = be16(data[1+2*i], data[2+2*i])
	}
	if valueCount > 0 && valueCount != len(values) {
		return nil, ErrWrongLength
	}
	return new(values), nil
}

func parseWriteMultipleArrayResponse(data []byte, new func(offset, count uint16) Operation) (Operation, error) {
	if len(data) != 4 {
		return nil, ErrShortPacket
	}
	return new(be16(data[0], data[1]), be16(data[2], data[3])), nil
}

func parseMaskWriteRegisterResponse(data []byte) (Operation, error) {
	if len(data) != 6 {
		return nil, ErrShortPacket
	}
	return NewMaskWriteRegisterResponse(be16(data[0], data[1]), be16(data[2], data[3]), be16(data[4], data[5])), nil
}

func parseReportServerIDResponse(data []byte) (Operation, error) {
	if len(data) < 1 {
		return nil, ErrShortPacket
	}
	n := int(data[0])
	if len(data) != 1+n {
		return nil, ErrWrongLength
	}
	if n == 0 {
		return NewReportServerIDResponse(nil, false), nil
	}
	id := data[1 : n]
	run := data[n] == 0xFF
	return NewReportServerIDResponse(id, run), nil
}

// ParseException decodes the one-byte body of an exception PDU, the
// exception code. The caller strips the function code byte (the one with
// the high bit set) before calling and keeps it for itself.
func ParseException(data []byte) (ExceptionCode, error) {
	if len(data) != 1 {
		return 0, ErrBadException
	}
	code := ExceptionCode(data[0])
	if !code.Valid() {
		return 0, ErrBadException
	}
	return code, nil
}

func be16(hi, lo byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}
