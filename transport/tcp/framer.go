package tcp

import (
	"github.com/kestrel-automation/modbuscore/pdu"
	"github.com/kestrel-automation/modbuscore/transport"
)

// Decoder accumulates bytes from a reliable TCP stream and peels off
// complete MBAP frames. Unlike the serial framers it has no silence timing:
// Modbus TCP's length field is authoritative. The internal buffer holds at
// most one ADU's worth of lookahead; a peer that pipelines several requests
// in one segment is served by calling Next repeatedly until it returns
// ok==false.
type Decoder struct {
	buf [maxADU]byte
	n   int
}

// Push appends freshly received bytes. Returns false if it would overflow
// the buffer, which only happens against a peer sending more than one ADU's
// worth of data before the previous one is drained by Next.
func (d *Decoder) Push(chunk []byte) bool {
	if d.n+len(chunk) > maxADU {
		return false
	}
	copy(d.buf[d.n:], chunk)
	d.n += len(chunk)
	return true
}

// Next attempts to extract one complete frame from the buffered bytes. It
// implements the 5-step MBAP processing loop: wait for the 7-byte header,
// validate the protocol id, wait for the declared length's worth of body,
// hand back the header and PDU body, and slide any remaining bytes (the
// start of the next pipelined frame) down to the front of the buffer.
func (d *Decoder) Next() (hdr Header, pduBytes []byte, ok bool, err error) {
	if d.n < headerLen {
		return Header{}, nil, false, nil
	}
	h := decodeHeader(d.buf[:headerLen])
	if h.ProtocolID != 0 {
		d.compact(headerLen) // resync past a garbled header
		return Header{}, nil, false, transport.NewError(transport.KindInvalidRequest, nil)
	}
	if h.Length == 0 {
		d.compact(headerLen)
		return Header{}, nil, false, transport.NewError(transport.KindInvalidRequest, nil)
	}
	total := headerLen + int(h.Length) - 1 // Length counts unit id + PDU
	if total > maxADU {
		d.compact(headerLen) // discard only the bad header, per the MBAP processing loop
		return Header{}, nil, false, transport.NewError(transport.KindInvalidRequest, nil)
	}
	if d.n < total {
		return Header{}, nil, false, nil
	}
	pduBytes = make([]byte, total-headerLen)
	copy(pduBytes, d.buf[headerLen:total])
	d.compact(total)
	return h, pduBytes, true, nil
}

func (d *Decoder) compact(consumed int) {
	remaining := d.n - consumed
	copy(d.buf[:remaining], d.buf[consumed:d.n])
	d.n = remaining
}

// Encode builds a complete MBAP frame: header followed by fc and body.
func Encode(tid uint16, unitID byte, fc pdu.FunctionCode, body []byte) []byte {
	h := Header{TransactionID: tid, ProtocolID: 0, Length: uint16(2 + len(body)), UnitID: unitID}
	out := make([]byte, 0, headerLen+1+len(body))
	out = append(out, h.encode()...)
	out = append(out, byte(fc))
	out = append(out, body...)
	return out
}
