// Package serialcap adapts a github.com/tarm/serial port into a
// transport.Capability: Recv never blocks longer than the port's configured
// read timeout, so the client/server engines stay non-blocking end to end.
package serialcap

import (
	"time"

	"github.com/tarm/serial"

	"github.com/kestrel-automation/modbuscore/pool"
)

// pollTimeout bounds how long a single Recv can wait for bytes. tarm/serial
// has no per-call non-blocking read, so the port itself is opened with this
// as its ReadTimeout and a single Read call stands in for one poll tick.
const pollTimeout = 2 * time.Millisecond

// Adapter wraps an open serial port. Bytes read past what the caller's
// buffer can hold in one Recv are held in a ring so no byte is dropped
// waiting for the next Poll.
type Adapter struct {
	port    *serial.Port
	start   time.Time
	ring    *pool.Ring
	scratch [256]byte
}

// Open configures and opens a serial port at name/baud for use as a
// Capability. 8N1 framing, consistent with the wire formats in transport/rtu
// and transport/ascii.
func Open(name string, baud int) (*Adapter, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: pollTimeout}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, err
	}
	return &Adapter{port: port, start: time.Now(), ring: pool.NewRing(1024)}, nil
}

// Send writes buf to the port.
func (a *Adapter) Send(buf []byte) (int, error) {
	return a.port.Write(buf)
}

// Recv drains any buffered bytes into buf, then attempts one bounded read
// from the port. A timeout with no bytes is reported as (0, nil), matching
// the Capability contract that Recv never blocks the caller.
func (a *Adapter) Recv(buf []byte) (int, error) {
	if a.ring.Len() > 0 {
		return a.ring.Read(buf), nil
	}
	n, err := a.port.Read(a.scratch[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	a.ring.Write(a.scratch[:n])
	return a.ring.Read(buf), nil
}

// NowMs returns milliseconds elapsed since the adapter was opened.
func (a *Adapter) NowMs() uint32 {
	return uint32(time.Since(a.start) / time.Millisecond)
}

// Yield gives the OS scheduler a slice between poll ticks.
func (a *Adapter) Yield() {
	time.Sleep(time.Millisecond)
}

// Close releases the underlying port.
func (a *Adapter) Close() error {
	return a.port.Close()
}
