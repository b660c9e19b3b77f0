package bchan

import "github.com/sirupsen/logrus"

// Close marks the channel closed and wakes every parked waiter with a
// "closed" signal. It panics with a *ChanError wrapping
// ErrCloseOfClosedChannel if called twice.
//
// Both queues are drained into a local list before anyone is woken, and
// the lock is released before any wake. Waking under the lock would
// deadlock if an unparked goroutine immediately tried to reacquire it
// (e.g. a select's pass-3 relock), and this keeps the critical section to
// a pure state transition.
func (c *Chan[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		panic(newChanError(c.id, ErrCloseOfClosedChannel))
	}
	c.closed = true
	c.closedFast.Store(true)

	var drained []*waiter[T]
	for {
		w := c.recvQ.dequeue()
		if w == nil {
			break
		}
		drained = append(drained, w)
	}
	for {
		w := c.sendQ.dequeue()
		if w == nil {
			break
		}
		drained = append(drained, w)
	}
	c.recvWaitFast.Store(0)
	c.sendWaitFast.Store(0)
	c.mu.Unlock()

	trace(c.logger, "chan.close", logrus.Fields{"chan_id": c.id, "woken": len(drained)})
	for _, w := range drained {
		w.wake(false)
	}
}
