// Command rtu_client is a minimal host binary demonstrating modbuscore
// against a Modbus RTU device: dial a serial port, read ten holding
// registers, and print them.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/kestrel-automation/modbuscore"
)

func main() {
	port := flag.String("port", "/dev/ttyUSB0", "serial port")
	baud := flag.Int("baud", 19200, "baud rate")
	unit := flag.Uint("unit", 1, "unit id")
	offset := flag.Uint("offset", 0, "starting register offset")
	count := flag.Uint("count", 10, "register count")
	flag.Parse()

	c, err := modbuscore.DialRTU(*port, *baud)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}

	values, err := c.ReadHoldingRegisters(byte(*unit), uint16(*offset), uint16(*count))
	if err != nil {
		log.Fatalf("read holding registers: %v", err)
	}
	fmt.Println(values)
}
