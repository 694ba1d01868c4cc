package client

import (
	"github.com/kestrel-automation/modbuscore/pdu"
	"github.com/kestrel-automation/modbuscore/transport"
)

// Priority selects which of the two queueing bands a Request waits in.
// HIGH always drains ahead of NORMAL; within a band, FIFO.
type Priority byte

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// Request describes one transaction to submit to a Client.
type Request struct {
	UnitID    byte
	Function  pdu.FunctionCode
	Operation pdu.Operation // the request payload, e.g. *pdu.ReadCoilsRequest

	// ValueCount sizes the response unpack for read/read-write functions;
	// zero for functions whose response shape doesn't depend on it.
	ValueCount int

	TimeoutMs      uint32
	MaxRetries     int
	RetryBackoffMs uint32
	Priority       Priority

	// RetryOnException overrides the default policy that a Modbus exception
	// response (KindException) is a final answer, not a transport fault, and
	// so is never retried. Set this when a device is known to answer
	// ServerDeviceBusy transiently.
	RetryOnException bool

	// Callback is invoked exactly once, from inside a Poll/PollWithBudget
	// call, when the transaction reaches a terminal state.
	Callback Callback
	UserCtx  any
}

// Result is delivered to a Request's Callback on completion.
type Result struct {
	Handle   Handle
	Response pdu.Operation
	Err      *transport.Error
	UserCtx  any
}

// Callback receives the terminal Result of a submitted Request.
type Callback func(Result)
