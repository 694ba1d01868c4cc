package rtu

import "time"

// SilenceTimeout returns the T3.5 inter-frame silence interval for baud, the
// gap a receiver must see before treating an in-progress frame as complete.
// At 19200 baud and above the line is fast enough that the Modbus-over-
// serial-line spec fixes T3.5 at 1750us regardless of baud; below that, T3.5
// is 3.5 character times, and a character is 11 bit times (1 start + 8 data
// + parity/stop).
func SilenceTimeout(baud int) time.Duration {
	if baud >= 19200 {
		return 1750 * time.Microsecond
	}
	charTime := time.Duration(11*1_000_000_000/baud) * time.Nanosecond
	return charTime * 35 / 10
}

// InterCharTimeout returns the T1.5 interval, the maximum gap allowed
// between two bytes of the same frame before it is considered broken.
func InterCharTimeout(baud int) time.Duration {
	if baud >= 19200 {
		return 750 * time.Microsecond
	}
	charTime := time.Duration(11*1_000_000_000/baud) * time.Nanosecond
	return charTime * 15 / 10
}
