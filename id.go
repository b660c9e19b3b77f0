package bchan

import "go.uber.org/atomic"

// Two process-wide monotonic counters, one for channel ids and one for
// waiter ids. Channel ids must be globally comparable so the select engine
// can sort cases into a deadlock-free lock order; waiter ids only need to
// be unique among live waiters.
var (
	nextChanID   atomic.Uint64
	nextWaiterID atomic.Uint64
)

func newChanID() uint64 {
	return nextChanID.Add(1)
}

func newWaiterID() uint64 {
	return nextWaiterID.Add(1)
}
