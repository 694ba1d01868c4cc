package client

import "github.com/kestrel-automation/modbuscore/pool"

// Handle identifies a submitted transaction. It is an index+generation pair
// (see pool.Handle) rather than a pointer, so a stale Handle from a
// transaction that has already completed and been reused is rejected
// instead of aliasing someone else's in-flight request.
type Handle = pool.Handle
