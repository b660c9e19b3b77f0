package bchan

import "container/list"

// waiterQueue is a doubly linked FIFO of parked operations for one
// direction (send or recv) of one channel. It is backed by container/list
// rather than hand-rolled prev/next pointers: list.Element already tracks
// which list it belongs to and makes Remove idempotent (removing an
// already-removed or never-linked element is a no-op). That lets a
// select's pass-3 cleanup call remove on a waiter that a counterparty
// already dequeued, without special-casing that race.
type waiterQueue[T any] struct {
	l list.List
}

func (q *waiterQueue[T]) empty() bool {
	return q.l.Len() == 0
}

func (q *waiterQueue[T]) len() int {
	return q.l.Len()
}

func (q *waiterQueue[T]) enqueue(w *waiter[T]) {
	w.queued = true
	el := q.l.PushBack(w)
	w.elemRef = el
}

// dequeue pops the oldest claimable waiter, transparently skipping any
// select waiter that another goroutine already claimed (a "ghost" left
// behind after that select committed to a different case). Returns nil
// when the queue holds no claimable waiter.
func (q *waiterQueue[T]) dequeue() *waiter[T] {
	for {
		el := q.l.Front()
		if el == nil {
			return nil
		}
		w := el.Value.(*waiter[T])
		q.l.Remove(el)
		w.queued = false
		w.elemRef = nil

		if w.selectDone != nil {
			if !w.selectDone.CompareAndSwap(false, true) {
				// Lost the race: some other dequeuer (on another channel
				// in this same select, or close) already claimed this
				// select. Discard the ghost and try the next waiter.
				continue
			}
		}
		return w
	}
}

// remove unlinks w if it is still linked; a no-op otherwise. Used by
// select's pass-3 cleanup, which does not know whether a counterparty
// already dequeued w.
func (q *waiterQueue[T]) remove(w *waiter[T]) {
	if w.elemRef == nil {
		return
	}
	q.l.Remove(w.elemRef)
	w.queued = false
	w.elemRef = nil
}
