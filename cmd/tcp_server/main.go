// Command tcp_server is a minimal host binary demonstrating modbuscore as a
// Modbus TCP server: accepts one connection, serves 1000 holding registers
// and 1000 coils.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/kestrel-automation/modbuscore"
	"github.com/kestrel-automation/modbuscore/server"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:502", "listen address")
	unit := flag.Uint("unit", 1, "unit id")
	flag.Parse()

	s, ln, err := modbuscore.ListenTCP(*addr, byte(*unit))
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	if res := s.AddRegisterRegion(server.KindHoldingRegisters, 0, 1000, server.NewMemoryRegisterStore(1000), false); res != server.AddOK {
		log.Fatalf("add holding registers: %v", res)
	}
	if res := s.AddBoolRegion(server.KindCoils, 0, 1000, server.NewMemoryBoolStore(1000), false); res != server.AddOK {
		log.Fatalf("add coils: %v", res)
	}

	for {
		if !s.Poll() {
			time.Sleep(time.Millisecond)
		}
	}
}
