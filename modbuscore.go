// Package modbuscore is the top-level convenience façade: constructors that
// wire a reference adapter (adapter/serialcap, adapter/tcpcap) to a client
// or server engine and hand back the synchronous client wrapper or the
// server engine, mirroring the
// ergonomics of the teacher's client.NewModbusRTUClient /
// client.NewModbusTCPClient constructors but returning the poll-driven
// engine underneath instead of a goroutine-owning blocking client.
package modbuscore

import (
	"net"

	"github.com/kestrel-automation/modbuscore/adapter/serialcap"
	"github.com/kestrel-automation/modbuscore/adapter/tcpcap"
	"github.com/kestrel-automation/modbuscore/client"
	"github.com/kestrel-automation/modbuscore/server"
	"github.com/kestrel-automation/modbuscore/transport/framing"
)

const defaultSyncDeadlineMs = 2000

// DialRTU opens a serial port and returns a synchronous Modbus RTU client.
func DialRTU(portName string, baud int, opts ...client.Option) (*client.Sync, error) {
	a, err := serialcap.Open(portName, baud)
	if err != nil {
		return nil, err
	}
	c := client.New(a, framing.NewRTU(baud), 8, opts...)
	return client.NewSync(c, defaultSyncDeadlineMs), nil
}

// DialASCII opens a serial port and returns a synchronous Modbus ASCII
// client.
func DialASCII(portName string, baud int, opts ...client.Option) (*client.Sync, error) {
	a, err := serialcap.Open(portName, baud)
	if err != nil {
		return nil, err
	}
	c := client.New(a, framing.NewASCII(), 8, opts...)
	return client.NewSync(c, defaultSyncDeadlineMs), nil
}

// DialTCP connects to a Modbus TCP server and returns a synchronous client.
func DialTCP(addr string, opts ...client.Option) (*client.Sync, error) {
	a, err := tcpcap.Dial(addr)
	if err != nil {
		return nil, err
	}
	c := client.New(a, framing.NewTCP(), 16, opts...)
	return client.NewSync(c, defaultSyncDeadlineMs), nil
}

// ListenTCP listens on addr, accepts a single TCP connection, and returns a
// Server bound to it together with the listener, which is not accepted on
// again. Each call opens a new listener on addr. The engine itself owns no
// goroutine.
func ListenTCP(addr string, unitID byte, opts ...server.Option) (*server.Server, net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	conn, err := ln.Accept()
	if err != nil {
		ln.Close()
		return nil, nil, err
	}
	a := tcpcap.New(conn)
	s := server.New(unitID, a, framing.NewTCP(), opts...)
	return s, ln, nil
}

// ServeRTU opens a serial port and returns a Server bound to it.
func ServeRTU(portName string, baud int, unitID byte, opts ...server.Option) (*server.Server, error) {
	a, err := serialcap.Open(portName, baud)
	if err != nil {
		return nil, err
	}
	return server.New(unitID, a, framing.NewRTU(baud), opts...), nil
}
