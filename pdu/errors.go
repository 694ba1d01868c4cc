package pdu

import "errors"

// Errors returned by the codec. The transport and engine layers translate
// these into the engine-wide error taxonomy (see transport.Kind); pdu itself
// has no notion of transport or retry.
var (
	ErrShortPacket     = errors.New("pdu: packet too short")
	ErrWrongLength     = errors.New("pdu: packet length does not match declared byte count")
	ErrOutOfRange      = errors.New("pdu: field out of range")
	ErrUnknownFunction = errors.New("pdu: unknown or unsupported function code")
	ErrBadException    = errors.New("pdu: malformed exception response")
)
