// Command tcp_client is a minimal host binary demonstrating modbuscore
// against a Modbus TCP server: connect, read ten holding registers, print.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/kestrel-automation/modbuscore"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:502", "server address")
	unit := flag.Uint("unit", 1, "unit id")
	offset := flag.Uint("offset", 0, "starting register offset")
	count := flag.Uint("count", 10, "register count")
	flag.Parse()

	c, err := modbuscore.DialTCP(*addr)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}

	values, err := c.ReadHoldingRegisters(byte(*unit), uint16(*offset), uint16(*count))
	if err != nil {
		log.Fatalf("read holding registers: %v", err)
	}
	fmt.Println(values)
}
