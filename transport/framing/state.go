// Package framing combines the rtu, ascii, and tcp decoders behind one
// tagged union so client and server engines can be written once against a
// single FramingState instead of three parallel code paths.
package framing

import (
	"github.com/kestrel-automation/modbuscore/pdu"
	"github.com/kestrel-automation/modbuscore/transport"
	"github.com/kestrel-automation/modbuscore/transport/ascii"
	"github.com/kestrel-automation/modbuscore/transport/rtu"
	"github.com/kestrel-automation/modbuscore/transport/tcp"
)

// Variant names which wire framing a FramingState holds.
type Variant byte

const (
	VariantRTU Variant = iota
	VariantASCII
	VariantTCP
)

// FramingState holds exactly one of the three decoders, selected by
// Variant; the other two pointer fields are always nil. This is the Go
// rendering of a tagged union: a single field distinguishes which of a
// fixed set of mutually exclusive shapes is live, with no interface
// allocation on the hot path.
type FramingState struct {
	Variant Variant
	rtu     *rtu.Decoder
	ascii   *ascii.Decoder
	tcp     *tcp.Decoder

	pendingASCII     []byte
	havePendingASCII bool
}

// NewRTU builds a FramingState driving RTU framing at the given baud rate.
func NewRTU(baud int) *FramingState {
	return &FramingState{Variant: VariantRTU, rtu: rtu.NewDecoder(baud)}
}

// NewASCII builds a FramingState driving ASCII framing.
func NewASCII(opts ...ascii.Option) *FramingState {
	return &FramingState{Variant: VariantASCII, ascii: ascii.NewDecoder(opts...)}
}

// NewTCP builds a FramingState driving MBAP framing.
func NewTCP() *FramingState {
	return &FramingState{Variant: VariantTCP, tcp: &tcp.Decoder{}}
}

// Frame is one decoded ADU plus the wire metadata an encoder needs to
// answer it: the RTU/ASCII unit id, or the TCP transaction id.
type Frame struct {
	ADU           transport.ADU
	TransactionID uint16 // TCP only
}

// Push feeds freshly received bytes into the active decoder at time nowMs
// (ignored by the TCP variant, which has no silence timing).
func (f *FramingState) Push(chunk []byte, nowMs uint32) {
	switch f.Variant {
	case VariantRTU:
		f.rtu.Push(chunk, nowMs)
	case VariantASCII:
		f.pendingASCII, f.havePendingASCII = f.ascii.Push(chunk, nowMs)
	case VariantTCP:
		f.tcp.Push(chunk)
	}
}

// Next attempts to pull one complete, validated frame out of the active
// decoder. ok is false when more bytes are needed; err is set when a frame
// was recognized but failed CRC/LRC or MBAP validation, in which case the
// caller should simply call Next again (RTU/ASCII) or continue polling
// (TCP, which resyncs internally). pendingASCII/havePendingASCII buffer the
// result of an ASCII Push, since ascii.Decoder.Push (unlike rtu.Decoder)
// recognizes a frame synchronously at the trailing CRLF rather than on a
// later silence check.
func (f *FramingState) Next(nowMs uint32) (frame Frame, ok bool, err error) {
	switch f.Variant {
	case VariantRTU:
		raw, have := f.rtu.Poll(nowMs)
		if !have {
			return Frame{}, false, nil
		}
		unitID, body, decErr := rtu.Decode(raw)
		f.rtu.Reset()
		if decErr != nil {
			return Frame{}, false, decErr
		}
		if len(body) < 1 {
			return Frame{}, false, transport.NewError(transport.KindInvalidRequest, pdu.ErrShortPacket)
		}
		return Frame{ADU: transport.ADU{UnitID: unitID, Function: pdu.FunctionCode(body[0]), Payload: body[1:]}}, true, nil
	case VariantASCII:
		if !f.havePendingASCII {
			return Frame{}, false, nil
		}
		f.havePendingASCII = false
		unitID, body, decErr := ascii.Decode(f.pendingASCII)
		f.ascii.Reset()
		if decErr != nil {
			return Frame{}, false, decErr
		}
		if len(body) < 1 {
			return Frame{}, false, transport.NewError(transport.KindInvalidRequest, pdu.ErrShortPacket)
		}
		return Frame{ADU: transport.ADU{UnitID: unitID, Function: pdu.FunctionCode(body[0]), Payload: body[1:]}}, true, nil
	case VariantTCP:
		hdr, body, have, decErr := f.tcp.Next()
		if decErr != nil {
			return Frame{}, false, decErr
		}
		if !have {
			return Frame{}, false, nil
		}
		if len(body) < 1 {
			return Frame{}, false, transport.NewError(transport.KindInvalidRequest, pdu.ErrShortPacket)
		}
		return Frame{
			ADU:           transport.ADU{UnitID: hdr.UnitID, Function: pdu.FunctionCode(body[0]), Payload: body[1:]},
			TransactionID: hdr.TransactionID,
		}, true, nil
	default:
		return Frame{}, false, nil
	}
}

// Encode builds the complete wire frame for an outgoing ADU, using
// transactionID for the TCP variant only.
func (f *FramingState) Encode(adu transport.ADU, transactionID uint16, body []byte) []byte {
	switch f.Variant {
	case VariantRTU:
		return rtu.Encode(adu.UnitID, adu.Function, body)
	case VariantASCII:
		return ascii.Encode(adu.UnitID, adu.Function, body)
	case VariantTCP:
		return tcp.Encode(transactionID, adu.UnitID, adu.Function, body)
	default:
		return nil
	}
}
