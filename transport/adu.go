package transport

import "github.com/kestrel-automation/modbuscore/pdu"

// ADU is the address-and-framing view of a single request or response:
// everything a dispatcher needs besides the decoded Operation payload.
// Payload may be a borrowed slice into a framing decoder's scratch buffer
// (the RTU decoder hands out such slices), so it is only guaranteed valid
// until the next call that advances that decoder.
type ADU struct {
	UnitID   byte
	Function pdu.FunctionCode
	Payload  []byte
}
