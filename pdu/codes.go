// Package pdu implements the Modbus application-layer protocol data unit:
// function codes, exception codes, and the per-function request/response
// codecs. It never touches a byte beyond what framing hands it and never
// retains a copy of the wire bytes it is given.
package pdu

// FunctionCode identifies the Modbus operation carried by a PDU. The high
// bit marks an exception response (FunctionCode | 0x80).
type FunctionCode byte

const (
	ReadCoils                 FunctionCode = 0x01
	ReadDiscreteInputs        FunctionCode = 0x02
	ReadHoldingRegisters      FunctionCode = 0x03
	ReadInputRegisters        FunctionCode = 0x04
	WriteSingleCoil           FunctionCode = 0x05
	WriteSingleRegister       FunctionCode = 0x06
	ReportServerID            FunctionCode = 0x11
	WriteMultipleCoils        FunctionCode = 0x0F
	WriteMultipleRegisters    FunctionCode = 0x10
	MaskWriteRegister         FunctionCode = 0x16
	ReadWriteMultipleRegisters FunctionCode = 0x17

	exceptionBit FunctionCode = 0x80
)

// IsException reports whether fc carries the exception-response high bit.
func (f FunctionCode) IsException() bool {
	return f&exceptionBit != 0
}

// AsException returns the exception-response encoding of f.
func (f FunctionCode) AsException() FunctionCode {
	return f | exceptionBit
}

// Base strips the exception bit, returning the underlying request code.
func (f FunctionCode) Base() FunctionCode {
	return f &^ exceptionBit
}

func (f FunctionCode) String() string {
	switch f.Base() {
	case ReadCoils:
		return "ReadCoils"
	case ReadDiscreteInputs:
		return "ReadDiscreteInputs"
	case ReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case ReadInputRegisters:
		return "ReadInputRegisters"
	case WriteSingleCoil:
		return "WriteSingleCoil"
	case WriteSingleRegister:
		return "WriteSingleRegister"
	case WriteMultipleCoils:
		return "WriteMultipleCoils"
	case WriteMultipleRegisters:
		return "WriteMultipleRegisters"
	case ReportServerID:
		return "ReportServerID"
	case MaskWriteRegister:
		return "MaskWriteRegister"
	case ReadWriteMultipleRegisters:
		return "ReadWriteMultipleRegisters"
	default:
		return "Unknown"
	}
}

// ExceptionCode is the one-byte reason carried by an exception response.
type ExceptionCode byte

const (
	IllegalFunction                    ExceptionCode = 0x01
	IllegalDataAddress                 ExceptionCode = 0x02
	IllegalDataValue                   ExceptionCode = 0x03
	ServerDeviceFailure                ExceptionCode = 0x04
	Acknowledge                        ExceptionCode = 0x05
	ServerDeviceBusy                   ExceptionCode = 0x06
	MemoryParityError                  ExceptionCode = 0x08
	GatewayPathUnavailable             ExceptionCode = 0x0A
	GatewayTargetDeviceFailedToRespond ExceptionCode = 0x0B
)

// Valid reports whether code is one of the exception codes this engine
// recognizes on the wire.
func (c ExceptionCode) Valid() bool {
	switch c {
	case IllegalFunction, IllegalDataAddress, IllegalDataValue, ServerDeviceFailure,
		Acknowledge, ServerDeviceBusy, MemoryParityError, GatewayPathUnavailable,
		GatewayTargetDeviceFailedToRespond:
		return true
	default:
		return false
	}
}

func (c ExceptionCode) String() string {
	switch c {
	case IllegalFunction:
		return "IllegalFunction"
	case IllegalDataAddress:
		return "IllegalDataAddress"
	case IllegalDataValue:
		return "IllegalDataValue"
	case ServerDeviceFailure:
		return "ServerDeviceFailure"
	case Acknowledge:
		return "Acknowledge"
	case ServerDeviceBusy:
		return "ServerDeviceBusy"
	case MemoryParityError:
		return "MemoryParityError"
	case GatewayPathUnavailable:
		return "GatewayPathUnavailable"
	case GatewayTargetDeviceFailedToRespond:
		return "GatewayTargetDeviceFailedToRespond"
	default:
		return "UnknownException"
	}
}
