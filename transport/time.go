package transport

// elapsed returns the milliseconds between anchor and now, correct across a
// uint32 wraparound of the tick source (a host's NowMs may run for over 49
// days). Callers compare the result against a duration, never against an
// absolute deadline.
func elapsed(now, anchor uint32) uint32 {
	return now - anchor
}

// Elapsed is the exported form of elapsed, used by client and server code
// outside this package to test a deadline against a Capability's NowMs.
func Elapsed(now, anchor uint32) uint32 {
	return elapsed(now, anchor)
}

// Deadline reports whether now has reached or passed anchor+budgetMs,
// wrap-safe in the same way as Elapsed.
func Deadline(now, anchor, budgetMs uint32) bool {
	return elapsed(now, anchor) >= budgetMs
}
