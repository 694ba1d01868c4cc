package client

// state is a transaction slot's position in the state machine described in
// the engine's component design: IDLE -> PENDING -> IN_FLIGHT ->
// {COMPLETED, TIMED_OUT, CANCELLED, FAILED}, with retryable terminal states
// looping back to PENDING until retries are exhausted.
type state byte

const (
	stateIdle state = iota
	statePending
	stateInFlight
	stateCompleted
	stateTimedOut
	stateCancelled
	stateFailed
)

// slot is the pool-resident value behind a Handle. It is zeroed by
// pool.Pool.Release, so it carries no external references once it goes
// back to the free list.
type slot struct {
	st  state
	req Request

	tid           uint16 // TCP only: the transaction id this request was sent with
	sendAnchorMs  uint32
	haveAnchor    bool
	retriesLeft   int
	cancelled     bool
	retryReadyMs  uint32
	awaitingRetry bool
}
