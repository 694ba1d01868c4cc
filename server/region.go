// Package server implements the poll-driven Modbus request router: a table
// of address regions (coils, discrete inputs, holding/input registers)
// backed by either a flat slice or an application callback, dispatched by
// function code exactly like the teacher's RequestHandler, but without
// blocking I/O or per-request goroutines.
package server

import "github.com/kestrel-automation/modbuscore/transport"

// Kind identifies which of the four Modbus data tables a Region answers
// for.
type Kind byte

const (
	KindCoils Kind = iota
	KindDiscreteInputs
	KindHoldingRegisters
	KindInputRegisters
)

// BoolStore backs a coil or discrete-input region with in-process storage.
// Implementations are called synchronously from Poll; a RWMutex-backed
// implementation (see storage.go) is provided for the common case.
type BoolStore interface {
	ReadBools(offset, count uint16) ([]bool, bool)
	WriteBools(offset uint16, values []bool) bool
}

// RegisterStore backs a holding- or input-register region.
type RegisterStore interface {
	ReadRegisters(offset, count uint16) ([]uint16, bool)
	WriteRegisters(offset uint16, values []uint16) bool
}

// BoolCallback backs a coil or discrete-input region with application logic
// instead of a flat table, e.g. to mirror live hardware state. A non-OK
// Kind is answered with an exception: InvalidArgument and InvalidRequest
// become IllegalDataValue, NoResources becomes ServerDeviceBusy, and any
// other Kind becomes ServerDeviceFailure.
type BoolCallback interface {
	ReadBools(offset, count uint16) ([]bool, transport.Kind)
	WriteBools(offset uint16, values []bool) transport.Kind
}

// RegisterCallback is the register-region equivalent of BoolCallback.
type RegisterCallback interface {
	ReadRegisters(offset, count uint16) ([]uint16, transport.Kind)
	WriteRegisters(offset uint16, values []uint16) transport.Kind
}

// Region is one addressable span of a server's data model. Exactly one of
// the store/callback fields for its Kind is set.
type Region struct {
	Kind     Kind
	Start    uint16
	Count    uint16
	ReadOnly bool

	bools     BoolStore
	registers RegisterStore
	boolCB    BoolCallback
	registerCB RegisterCallback
}

func (r *Region) end() uint32 { return uint32(r.Start) + uint32(r.Count) }

func (r *Region) contains(offset, count uint16) bool {
	if count == 0 {
		return false
	}
	reqEnd := uint32(offset) + uint32(count)
	return uint32(offset) >= uint32(r.Start) && reqEnd <= r.end()
}

func overlaps(a, b *Region) bool {
	if a.Kind != b.Kind {
		return false
	}
	return uint32(a.Start) < b.end() && uint32(b.Start) < a.end()
}
