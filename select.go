package bchan

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// tryOutcome is the pass-1 verdict for a single case.
type tryOutcome uint8

const (
	notReady tryOutcome = iota
	completed
	closedForSend
)

// Case is one arm of a Select call: either a Recv or a Send on some
// channel. Its methods are unexported: callers only ever obtain a Case
// from the Recv/Send constructors and hand it straight to Select. That is
// how the engine stays generic over heterogeneous element types without
// leaking a type parameter into the waiter queue itself: each concrete
// case type closes over its own *Chan[T], and the engine only ever
// touches it through this interface.
type Case interface {
	chanID() uint64
	mutex() *sync.Mutex
	logger() Logger
	tryComplete() tryOutcome
	enqueuePark(selectDone *atomic.Bool, park chan Case)
	cleanup()
	notifyWonAfterPark()
	invoke() any
}

type recvCase[T any] struct {
	c       *Chan[T]
	handler func(v T, ok bool) any

	result   T
	resultOK bool
	w        *waiter[T]
}

// Recv builds a select case that receives from c. handler is invoked with
// the received value and true, or the zero value and false if c is
// closed and drained.
func Recv[T any](c *Chan[T], handler func(v T, ok bool) any) Case {
	return &recvCase[T]{c: c, handler: handler}
}

func (rc *recvCase[T]) chanID() uint64     { return rc.c.id }
func (rc *recvCase[T]) mutex() *sync.Mutex { return &rc.c.mu }
func (rc *recvCase[T]) logger() Logger     { return rc.c.logger }

func (rc *recvCase[T]) tryComplete() tryOutcome {
	c := rc.c
	if send := c.sendQ.dequeue(); send != nil {
		v := c.completeDirectRecv(send)
		c.sendWaitFast.Store(int64(c.sendQ.len()))
		rc.result, rc.resultOK = v, true
		send.wake(true)
		return completed
	}
	if c.qcount > 0 {
		rc.result, rc.resultOK = c.bufferTake(), true
		return completed
	}
	if c.closed {
		var zero T
		rc.result, rc.resultOK = zero, false
		return completed
	}
	return notReady
}

func (rc *recvCase[T]) enqueuePark(selectDone *atomic.Bool, park chan Case) {
	w := newSelectWaiter(waiterRecv, &rc.result, selectDone, park, rc)
	rc.c.recvQ.enqueue(w)
	rc.c.recvWaitFast.Store(int64(rc.c.recvQ.len()))
	rc.w = w
}

func (rc *recvCase[T]) cleanup() {
	if rc.w == nil {
		return
	}
	rc.c.recvQ.remove(rc.w)
	rc.c.recvWaitFast.Store(int64(rc.c.recvQ.len()))
}

func (rc *recvCase[T]) notifyWonAfterPark() {
	rc.resultOK = true
}

func (rc *recvCase[T]) invoke() any {
	return rc.handler(rc.result, rc.resultOK)
}

type sendCase[T any] struct {
	c       *Chan[T]
	v       T
	handler func() any
	w       *waiter[T]
}

// Send builds a select case that sends v on c. handler is invoked with no
// arguments once v has been delivered.
func Send[T any](c *Chan[T], v T, handler func() any) Case {
	return &sendCase[T]{c: c, v: v, handler: handler}
}

func (sc *sendCase[T]) chanID() uint64     { return sc.c.id }
func (sc *sendCase[T]) mutex() *sync.Mutex { return &sc.c.mu }
func (sc *sendCase[T]) logger() Logger     { return sc.c.logger }

func (sc *sendCase[T]) tryComplete() tryOutcome {
	c := sc.c
	if c.closed {
		return closedForSend
	}
	if recv := c.recvQ.dequeue(); recv != nil {
		*recv.elem = sc.v
		c.recvWaitFast.Store(int64(c.recvQ.len()))
		recv.wake(true)
		return completed
	}
	if c.qcount < c.capacity {
		c.bufferPut(sc.v)
		return completed
	}
	return notReady
}

func (sc *sendCase[T]) enqueuePark(selectDone *atomic.Bool, park chan Case) {
	w := newSelectWaiter(waiterSend, &sc.v, selectDone, park, sc)
	sc.c.sendQ.enqueue(w)
	sc.c.sendWaitFast.Store(int64(sc.c.sendQ.len()))
	sc.w = w
}

func (sc *sendCase[T]) cleanup() {
	if sc.w == nil {
		return
	}
	sc.c.sendQ.remove(sc.w)
	sc.c.sendWaitFast.Store(int64(sc.c.sendQ.len()))
}

func (sc *sendCase[T]) notifyWonAfterPark() {}

func (sc *sendCase[T]) invoke() any {
	return sc.handler()
}

// lockOrder returns the indices of cases sorted by ascending channel id,
// the order every Select call acquires locks in so that two concurrent
// selects over overlapping channel sets (or a select racing a plain
// Send/Recv, which only ever locks one channel) can never deadlock
// against each other.
func lockOrder(cases []Case) []int {
	order := make([]int, len(cases))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return cases[order[i]].chanID() < cases[order[j]].chanID()
	})
	return order
}

// pollOrder returns a random permutation of case indices, so that among
// several simultaneously ready cases none is favored by its position in
// the case list.
func pollOrder(n int) []int {
	order := rand.Perm(n)
	return order
}

// selLock acquires every distinct channel's mutex in lock order, locking
// a channel referenced by more than one case only once.
func selLock(cases []Case, order []int) {
	var last *sync.Mutex
	for _, idx := range order {
		m := cases[idx].mutex()
		if m != last {
			m.Lock()
			last = m
		}
	}
}

// selUnlock releases the locks selLock took, in reverse order.
func selUnlock(cases []Case, order []int) {
	var last *sync.Mutex
	for i := len(order) - 1; i >= 0; i-- {
		m := cases[order[i]].mutex()
		if m != last {
			m.Unlock()
			last = m
		}
	}
}

// Select evaluates cases, committing to exactly one: if several are
// immediately ready, one is chosen uniformly at random; otherwise it
// blocks until exactly one becomes ready. The chosen case's handler runs
// after all locks are released, and Select returns its result.
func Select(cases ...Case) any {
	return selectImpl(cases, nil)
}

// SelectDefault is Select with a non-blocking default: if no case is
// immediately ready, def runs instead of blocking.
func SelectDefault(def func() any, cases ...Case) any {
	return selectImpl(cases, def)
}

func selectImpl(cases []Case, def func() any) any {
	if len(cases) == 0 {
		if def != nil {
			return def()
		}
		panic("bchan: Select called with no cases and no default")
	}

	order := lockOrder(cases)

	for {
		poll := pollOrder(len(cases))

		selLock(cases, order)

		var winner Case
		var sendClosedID uint64
		sendClosedSeen := false
		for _, idx := range poll {
			cas := cases[idx]
			switch cas.tryComplete() {
			case completed:
				winner = cas
			case closedForSend:
				sendClosedSeen = true
				sendClosedID = cas.chanID()
			}
			if winner != nil {
				break
			}
			if sendClosedSeen {
				break
			}
		}

		if winner != nil {
			selUnlock(cases, order)
			trace(winner.logger(), "select.commit", logrus.Fields{"chan_id": winner.chanID(), "phase": "immediate"})
			return winner.invoke()
		}
		if sendClosedSeen {
			selUnlock(cases, order)
			panic(newChanError(sendClosedID, ErrSendOnClosedChannel))
		}

		if def != nil {
			selUnlock(cases, order)
			return def()
		}

		selectDone := atomic.NewBool(false)
		park := make(chan Case, 1)
		for _, idx := range order {
			cases[idx].enqueuePark(selectDone, park)
		}
		selUnlock(cases, order)

		won := <-park

		selLock(cases, order)
		for _, idx := range order {
			cases[idx].cleanup()
		}
		selUnlock(cases, order)

		if won == nil {
			// Some channel in the set closed while we were parked. Loop
			// back to pass 1: the closed channel's own case will now
			// resolve deterministically (a ready Recv, or a panic for a
			// Send), and fairness among whatever else is ready still
			// applies.
			trace(cases[order[0]].logger(), "select.closed-recurse", logrus.Fields{})
			continue
		}

		won.notifyWonAfterPark()
		trace(won.logger(), "select.commit", logrus.Fields{"chan_id": won.chanID(), "phase": "parked"})
		return won.invoke()
	}
}
