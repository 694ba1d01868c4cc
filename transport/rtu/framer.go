package rtu

import (
	"time"

	"github.com/kestrel-automation/modbuscore/pdu"
	"github.com/kestrel-automation/modbuscore/transport"
)

const maxFrame = 256
const minFrame = 4 // unit id + function code + 2-byte CRC, zero-length PDU body

// Decoder accumulates bytes handed to it across repeated non-blocking Recv
// calls and recognizes a complete frame by inter-character silence, the way
// the Modbus-over-serial-line spec defines an RTU frame boundary. It never
// blocks and never allocates past construction; a recognized frame is a
// slice into the Decoder's own buffer valid until the next Push or Reset.
type Decoder struct {
	buf       [maxFrame]byte
	n         int
	lastMs    uint32
	haveLast  bool
	silenceMs uint32
}

// NewDecoder builds a Decoder timed for the given serial baud rate.
func NewDecoder(baud int) *Decoder {
	return &Decoder{silenceMs: uint32(SilenceTimeout(baud) / time.Millisecond)}
}

// Reset discards any partially accumulated frame.
func (d *Decoder) Reset() {
	d.n = 0
	d.haveLast = false
}

// Push appends freshly received bytes at time nowMs. If the gap since the
// previous Push exceeds the silence interval, the buffered bytes (if any)
// are assumed to belong to an incomplete or already-consumed frame and are
// dropped before chunk is appended, matching the spec's rule that a new
// silence interval starts a new frame.
func (d *Decoder) Push(chunk []byte, nowMs uint32) {
	if d.haveLast && transport.Elapsed(nowMs, d.lastMs) >= d.silenceMs {
		d.Reset()
	}
	for _, b := range chunk {
		if d.n < maxFrame {
			d.buf[d.n] = b
			d.n++
		}
		// Bytes beyond maxFrame are dropped; the frame is already corrupt
		// (no valid Modbus RTU PDU is that long). Poll still returns the
		// truncated maxFrame bytes once silence is observed, with no
		// overflow error; only Decode's CRC check can reject them.
	}
	d.lastMs = nowMs
	d.haveLast = true
}

// Poll reports whether the silence interval has elapsed since the last
// received byte. When it has and a plausible frame is buffered, it returns
// the raw frame bytes (unit id, PDU, CRC) for the caller to validate and
// consume; the caller must call Reset afterward to start the next frame.
func (d *Decoder) Poll(nowMs uint32) (frame []byte, ok bool) {
	if !d.haveLast || d.n < minFrame {
		return nil, false
	}
	if transport.Elapsed(nowMs, d.lastMs) < d.silenceMs {
		return nil, false
	}
	return d.buf[:d.n], true
}

// Decode validates frame's CRC and splits it into a unit id and PDU body.
// frame is typically the slice returned by Poll.
func Decode(frame []byte) (unitID byte, pduBytes []byte, err error) {
	if len(frame) < minFrame {
		return 0, nil, transport.NewError(transport.KindInvalidRequest, pdu.ErrShortPacket)
	}
	if !CheckCRC(frame) {
		return 0, nil, transport.NewError(transport.KindCRC, nil)
	}
	return frame[0], frame[1 : len(frame)-2], nil
}

// Encode builds a complete RTU frame: unit id, function code, operation
// body, and trailing CRC. The returned slice is freshly allocated.
func Encode(unitID byte, fc pdu.FunctionCode, body []byte) []byte {
	out := make([]byte, 0, 2+len(body)+2)
	out = append(out, unitID, byte(fc))
	out = append(out, body...)
	return AppendCRC(out)
}
