// Package tcp implements the Modbus TCP/MBAP framing: a 7-byte header
// (transaction id, protocol id, length, unit id) prefixing the PDU, with no
// silence timing since TCP delivers a reliable byte stream.
package tcp

const headerLen = 7
const maxADU = 260 // 7-byte MBAP header + 253-byte PDU, the Modbus TCP ceiling

// Header is the decoded 7-byte MBAP prefix.
type Header struct {
	TransactionID uint16
	ProtocolID    uint16
	Length        uint16 // byte count of unit id + PDU that follows
	UnitID        byte
}

func decodeHeader(b []byte) Header {
	return Header{
		TransactionID: uint16(b[0])<<8 | uint16(b[1]),
		ProtocolID:    uint16(b[2])<<8 | uint16(b[3]),
		Length:        uint16(b[4])<<8 | uint16(b[5]),
		UnitID:        b[6],
	}
}

func (h Header) encode() []byte {
	return []byte{
		byte(h.TransactionID >> 8), byte(h.TransactionID),
		byte(h.ProtocolID >> 8), byte(h.ProtocolID),
		byte(h.Length >> 8), byte(h.Length),
		h.UnitID,
	}
}
