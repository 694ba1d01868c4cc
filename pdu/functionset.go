package pdu

// FunctionSet is a bitmask of enabled function codes, used by client/server
// constructors to restrict which functions an engine will submit or route.
// It replaces the notion of a per-function build tag with a runtime value,
// since Go has no conditional compilation.
type FunctionSet uint32

const (
	bitReadCoils FunctionSet = 1 << iota
	bitReadDiscreteInputs
	bitReadHoldingRegisters
	bitReadInputRegisters
	bitWriteSingleCoil
	bitWriteSingleRegister
	bitWriteMultipleCoils
	bitWriteMultipleRegisters
	bitMaskWriteRegister
	bitReadWriteMultipleRegisters
	bitReportServerID
)

// AllFunctions enables every function code this module implements.
const AllFunctions = bitReadCoils | bitReadDiscreteInputs | bitReadHoldingRegisters |
	bitReadInputRegisters | bitWriteSingleCoil | bitWriteSingleRegister |
	bitWriteMultipleCoils | bitWriteMultipleRegisters | bitMaskWriteRegister |
	bitReadWriteMultipleRegisters | bitReportServerID

func bitFor(fc FunctionCode) FunctionSet {
	switch fc.Base() {
	case ReadCoils:
		return bitReadCoils
	case ReadDiscreteInputs:
		return bitReadDiscreteInputs
	case ReadHoldingRegisters:
		return bitReadHoldingRegisters
	case ReadInputRegisters:
		return bitReadInputRegisters
	case WriteSingleCoil:
		return bitWriteSingleCoil
	case WriteSingleRegister:
		return bitWriteSingleRegister
	case WriteMultipleCoils:
		return bitWriteMultipleCoils
	case WriteMultipleRegisters:
		return bitWriteMultipleRegisters
	case MaskWriteRegister:
		return bitMaskWriteRegister
	case ReadWriteMultipleRegisters:
		return bitReadWriteMultipleRegisters
	case ReportServerID:
		return bitReportServerID
	default:
		return 0
	}
}

// Contains reports whether fc is enabled in the set.
func (s FunctionSet) Contains(fc FunctionCode) bool {
	bit := bitFor(fc)
	return bit != 0 && s&bit != 0
}

// NewFunctionSet builds a FunctionSet enabling exactly the given function
// codes, for callers that want to restrict a Client or Server to a subset
// of AllFunctions via WithFunctionSet.
func NewFunctionSet(fcs ...FunctionCode) FunctionSet {
	var s FunctionSet
	for _, fc := range fcs {
		s |= bitFor(fc)
	}
	return s
}
