package ascii

import (
	"encoding/hex"
	"time"

	"github.com/kestrel-automation/modbuscore/pdu"
	"github.com/kestrel-automation/modbuscore/transport"
)

const maxASCIIFrame = 1 + 2*256 + 2 //':' + hex(unit+pdu+lrc, up to 256 binary bytes) + CRLF
const defaultCharTimeout = 500 * time.Millisecond

// Option configures a Decoder at construction.
type Option func(*Decoder)

// WithCharTimeout overrides the default 500ms inter-character timeout used
// to detect an abandoned frame.
func WithCharTimeout(d time.Duration) Option {
	return func(dec *Decoder) { dec.charTimeoutMs = uint32(d / time.Millisecond) }
}

// Decoder accumulates ASCII-framed bytes across repeated non-blocking Recv
// calls, recognizing a complete frame at the trailing CRLF and discarding
// one that stalls past the inter-character timeout.
type Decoder struct {
	buf           [maxASCIIFrame]byte
	n             int
	inFrame       bool
	lastMs        uint32
	haveLast      bool
	charTimeoutMs uint32
}

// NewDecoder builds a Decoder with the default 500ms inter-character
// timeout, or the timeout set by WithCharTimeout.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{charTimeoutMs: uint32(defaultCharTimeout / time.Millisecond)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Reset discards any partially accumulated frame.
func (d *Decoder) Reset() {
	d.n = 0
	d.inFrame = false
	d.haveLast = false
}

// Push appends freshly received bytes at time nowMs, watching for the
// leading ':' and trailing CRLF that delimit an ASCII frame. It returns the
// complete frame, including delimiters, the instant it is recognized; the
// caller must call Reset before the next Push once it has consumed it.
func (d *Decoder) Push(chunk []byte, nowMs uint32) (frame []byte, ok bool) {
	if d.haveLast && d.inFrame && transport.Elapsed(nowMs, d.lastMs) >= d.charTimeoutMs {
		d.Reset()
	}
	for _, b := range chunk {
		if !d.inFrame {
			if b == ':' {
				d.inFrame = true
				d.n = 0
				d.buf[d.n] = b
				d.n++
			}
			continue
		}
		if d.n < maxASCIIFrame {
			d.buf[d.n] = b
			d.n++
		}
		if b == '\n' && d.n >= 2 && d.buf[d.n-2] == '\r' {
			frame = d.buf[:d.n]
			ok = true
			d.lastMs = nowMs
			d.haveLast = true
			return frame, ok
		}
	}
	d.lastMs = nowMs
	d.haveLast = true
	return nil, false
}

// Decode validates frame's LRC and returns a unit id and PDU body. frame
// must include the leading ':' and trailing CRLF, as returned by Push.
func Decode(frame []byte) (unitID byte, pduBytes []byte, err error) {
	if len(frame) < 5 || frame[0] != ':' {
		return 0, nil, transport.NewError(transport.KindInvalidRequest, pdu.ErrShortPacket)
	}
	hexBody := frame[1 : len(frame)-2]
	raw, decErr := hex.DecodeString(string(hexBody))
	if decErr != nil {
		return 0, nil, transport.NewError(transport.KindInvalidRequest, decErr)
	}
	if len(raw) < 3 {
		return 0, nil, transport.NewError(transport.KindInvalidRequest, pdu.ErrShortPacket)
	}
	body, lrc := raw[:len(raw)-1], raw[len(raw)-1]
	if LRC(body) != lrc {
		return 0, nil, transport.NewError(transport.KindCRC, nil)
	}
	return body[0], body[1:], nil
}

// Encode builds a complete ASCII frame: ':' + hex(unit, fc, body, lrc) +
// CRLF, upper-cased per the teacher's wire convention.
func Encode(unitID byte, fc pdu.FunctionCode, body []byte) []byte {
	raw := make([]byte, 0, 2+len(body)+1)
	raw = append(raw, unitID, byte(fc))
	raw = append(raw, body...)
	raw = append(raw, LRC(raw))
	out := make([]byte, 0, 1+2*len(raw)+2)
	out = append(out, ':')
	out = append(out, []byte(hexUpper(raw))...)
	out = append(out, '\r', '\n')
	return out
}

func hexUpper(b []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 2*len(b))
	for i, v := range b {
		out[2*i] = digits[v>>4]
		out[2*i+1] = digits[v&0xF]
	}
	return string(out)
}
