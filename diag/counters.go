// Package diag holds instance-scoped, allocation-free diagnostic counters
// and a circular event trace for a client or server engine. Presentation
// (logging, metrics export) is layered on top by the host; this package
// only accumulates.
package diag

import (
	"go.uber.org/zap/zapcore"

	"github.com/kestrel-automation/modbuscore/pdu"
	"github.com/kestrel-automation/modbuscore/transport"
)

const numFunctionCodes = 256

// Counters accumulates per-function-code request/response counts and
// per-error-kind failure counts for one engine instance.
type Counters struct {
	requestsByFC  [numFunctionCodes]uint64
	responsesByFC [numFunctionCodes]uint64
	errorsByKind  [256]uint64
	dropped       uint64
	total         uint64
}

// RecordRequest increments the request counter for fc.
func (c *Counters) RecordRequest(fc pdu.FunctionCode) {
	c.requestsByFC[byte(fc)]++
	c.total++
}

// RecordResponse increments the response counter for fc.
func (c *Counters) RecordResponse(fc pdu.FunctionCode) {
	c.responsesByFC[byte(fc)]++
}

// RecordError increments the failure counter for kind.
func (c *Counters) RecordError(kind transport.Kind) {
	c.errorsByKind[byte(kind)]++
}

// RecordDropped counts a frame that arrived but matched no transaction,
// e.g. a TCP response whose transaction id is unknown or already resolved.
func (c *Counters) RecordDropped() {
	c.dropped++
}

// Reset zeroes every counter, starting a new monotonic epoch. Resetting is
// always explicit; no engine operation does it implicitly.
func (c *Counters) Reset() {
	*c = Counters{}
}

// Snapshot is a point-in-time copy of Counters safe to read without
// racing further updates (the engine that owns Counters is single-threaded,
// so Snapshot exists for handing a stable view to a concurrent presenter
// like the prometheus collector).
type Snapshot struct {
	RequestsByFC  [numFunctionCodes]uint64
	ResponsesByFC [numFunctionCodes]uint64
	ErrorsByKind  [256]uint64
	Dropped       uint64
	Total         uint64
}

// Snapshot copies the current counter state.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		RequestsByFC:  c.requestsByFC,
		ResponsesByFC: c.responsesByFC,
		ErrorsByKind:  c.errorsByKind,
		Dropped:       c.dropped,
		Total:         c.total,
	}
}

// MarshalLogObject lets a host log a snapshot directly: logger.Info("diagnostics", zap.Object("snapshot", snap)).
func (s Snapshot) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint64("total", s.Total)
	return enc.AddArray("requestsByFunction", zapcore.ArrayMarshalerFunc(func(ae zapcore.ArrayEncoder) error {
		for fc, n := range s.RequestsByFC {
			if n == 0 {
				continue
			}
			if err := ae.AppendObject(fcCount{fc: pdu.FunctionCode(fc), count: n}); err != nil {
				return err
			}
		}
		return nil
	}))
}

type fcCount struct {
	fc    pdu.FunctionCode
	count uint64
}

func (f fcCount) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("function", f.fc.String())
	enc.AddUint64("count", f.count)
	return nil
}
