package bchan

import (
	"container/list"

	"go.uber.org/atomic"
)

type waiterKind uint8

const (
	waiterSend waiterKind = iota
	waiterRecv
)

// waiter represents one parked operation on a channel. It is allocated by
// the parking goroutine and handed to the channel's waiter queue for the
// duration of the park; it is discarded once woken.
//
// Exactly one of the two wake paths is populated:
//   - done is set for a plain (non-select) Send/Recv: the counterparty
//     posts true (delivered) or false (channel closed) into it.
//   - selectDone/selPark/caseRef are set when the waiter was enqueued by
//     Select: the first goroutine to CAS selectDone false->true owns the
//     right to post the winning Case (or nil, for "some channel closed")
//     into selPark.
type waiter[T any] struct {
	sid  uint64
	kind waiterKind

	// elem is the value being offered (send) or the slot to receive into
	// (recv). It is always non-nil: a handoff writes or reads through it
	// unconditionally, and there is no discard-the-value form of receive.
	elem *T

	done chan bool

	selectDone *atomic.Bool
	selPark    chan Case
	caseRef    Case

	queued  bool          // true while linked into a waiterQueue[T]; for assertions.
	elemRef *list.Element // this waiter's node in whichever waiterQueue currently holds it.
}

func newSingleWaiter[T any](kind waiterKind, elem *T) *waiter[T] {
	return &waiter[T]{
		sid:  newWaiterID(),
		kind: kind,
		elem: elem,
		done: make(chan bool, 1),
	}
}

func newSelectWaiter[T any](kind waiterKind, elem *T, selectDone *atomic.Bool, selPark chan Case, caseRef Case) *waiter[T] {
	return &waiter[T]{
		sid:        newWaiterID(),
		kind:       kind,
		elem:       elem,
		selectDone: selectDone,
		selPark:    selPark,
		caseRef:    caseRef,
	}
}

// wake delivers this waiter's outcome to whatever is parked on it: a
// single-op waiter gets a plain delivered/closed bool, a select waiter
// gets the winning Case (or nil for closed). Callers must already have
// won the selectDone claim (done by waiterQueue.dequeue) before calling
// wake with delivered=true in the select case; close's drain claims for every
// waiter it pulls off a queue regardless of kind.
func (w *waiter[T]) wake(delivered bool) {
	if w.selectDone != nil {
		if delivered {
			w.selPark <- w.caseRef
		} else {
			w.selPark <- nil
		}
		return
	}
	w.done <- delivered
}
