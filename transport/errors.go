package transport

import (
	"errors"
	"fmt"

	"github.com/kestrel-automation/modbuscore/pdu"
)

// Kind classifies an Error so client and server code can switch on failure
// category instead of comparing against a flat list of sentinel errors.
type Kind byte

const (
	KindOK Kind = iota
	KindInvalidArgument
	KindInvalidRequest
	KindCRC
	KindTimeout
	KindTransport
	KindCancelled
	KindNoResources
	KindException
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindInvalidRequest:
		return "InvalidRequest"
	case KindCRC:
		return "CRC"
	case KindTimeout:
		return "Timeout"
	case KindTransport:
		return "Transport"
	case KindCancelled:
		return "Cancelled"
	case KindNoResources:
		return "NoResources"
	case KindException:
		return "Exception"
	default:
		return "Other"
	}
}

// Error is the single error type returned above the pdu layer. Kind is
// always set. Exception only carries meaning when Kind is KindException.
// Err is the wrapped cause, if any.
type Error struct {
	Kind      Kind
	Exception pdu.ExceptionCode
	Err       error
}

func (e *Error) Error() string {
	if e.Kind == KindException {
		return fmt.Sprintf("modbus: exception %s", e.Exception)
	}
	if e.Err != nil {
		return fmt.Sprintf("modbus: %s: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("modbus: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind (and, for
// KindException, the same exception code), so callers can write
// errors.Is(err, transport.ErrTimeout) without inspecting Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Kind == KindException {
		return t.Exception == e.Exception
	}
	return true
}

// NewError wraps err, which may be nil, under kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// NewExceptionError builds the Error reported when a server answers with a
// Modbus exception instead of the requested data.
func NewExceptionError(code pdu.ExceptionCode) *Error {
	return &Error{Kind: KindException, Exception: code}
}

// Sentinels for errors.Is comparisons against a Kind alone.
var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrInvalidRequest  = &Error{Kind: KindInvalidRequest}
	ErrCRC             = &Error{Kind: KindCRC}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrTransport       = &Error{Kind: KindTransport}
	ErrCancelled       = &Error{Kind: KindCancelled}
	ErrNoResources     = &Error{Kind: KindNoResources}
)

// FromPDU translates a pdu codec error into the engine-wide taxonomy. Every
// pdu error reflects a malformed or out-of-range wire payload, so they all
// land on KindInvalidRequest.
func FromPDU(err error) *Error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, pdu.ErrShortPacket), errors.Is(err, pdu.ErrWrongLength),
		errors.Is(err, pdu.ErrOutOfRange), errors.Is(err, pdu.ErrBadException),
		errors.Is(err, pdu.ErrUnknownFunction):
		return NewError(KindInvalidRequest, err)
	default:
		return NewError(KindOther, err)
	}
}

// AsError normalizes err (which may be nil) into the engine-wide taxonomy.
// A framing decoder already reports its failures as *Error (CRC, LRC,
// malformed MBAP header); AsError passes those through unchanged instead of
// re-classifying them through FromPDU, which would otherwise flatten a
// retryable KindCRC into a non-retryable KindOther. Anything else is
// treated as an unclassified pdu-shaped failure.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return FromPDU(err)
}
