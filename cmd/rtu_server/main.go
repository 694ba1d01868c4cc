// Command rtu_server is a minimal host binary demonstrating modbuscore as a
// Modbus RTU server: serves 1000 holding registers and 1000 coils over a
// serial port.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/kestrel-automation/modbuscore"
	"github.com/kestrel-automation/modbuscore/server"
)

func main() {
	port := flag.String("port", "/dev/ttyUSB0", "serial port")
	baud := flag.Int("baud", 19200, "baud rate")
	unit := flag.Uint("unit", 1, "unit id")
	flag.Parse()

	s, err := modbuscore.ServeRTU(*port, *baud, byte(*unit))
	if err != nil {
		log.Fatalf("serve: %v", err)
	}

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
