// Package bchan implements bounded, multi-producer/multi-consumer message
// channels with multi-way selection, reimplementing the mechanism Go's
// own chan/select give you: direct handoff between a blocked sender and
// receiver, a FIFO ring buffer for the buffered case, and a select that
// atomically commits to exactly one of several pending operations. It is
// an ordinary library built from sync.Mutex, a one-shot handoff channel
// and container/list, rather than relying on the compiler/runtime's
// built-in chan type.
package bchan

import (
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Chan is a bounded FIFO of T with optional zero capacity for synchronous
// rendezvous. qcount, sendx and recvx track the ring buffer; sendQ/recvQ
// hold parked operations; closed is monotonic (false -> true, never back).
type Chan[T any] struct {
	id     uint64
	logger Logger

	mu       sync.Mutex
	capacity int
	buf      []T
	qcount   int
	sendx    int
	recvx    int
	sendQ    waiterQueue[T]
	recvQ    waiterQueue[T]
	closed   bool

	// Shadow atomics mirroring qcount/closed/queue occupancy, updated only
	// while mu is held, so the unlocked fast path at the top of send/recv
	// can make an advisory would-block decision without taking the lock.
	// A raw unsynchronized word read of the real fields isn't safe here
	// the way it is for the compiler's own chan, since the authoritative
	// state lives behind a container/list-backed queue; a dedicated atomic
	// counter per read stands in for it instead.
	closedFast   atomic.Bool
	qcountFast   atomic.Int64
	sendWaitFast atomic.Int64
	recvWaitFast atomic.Int64
}

// New creates a channel with the given capacity (capacity 0 means
// unbuffered: Send blocks until a Recv is ready to take the value, and
// vice versa).
func New[T any](capacity int, opts ...Option) *Chan[T] {
	if capacity < 0 {
		panic("bchan: New: capacity must be non-negative")
	}
	cfg := chanConfig{logger: discardLogger()}
	for _, o := range opts {
		o(&cfg)
	}
	c := &Chan[T]{
		id:       newChanID(),
		logger:   cfg.logger,
		capacity: capacity,
		buf:      make([]T, capacity),
	}
	trace(c.logger, "chan.new", logrus.Fields{"chan_id": c.id, "capacity": capacity})
	return c
}

// ID returns the channel's stable, globally-comparable identifier. It
// exists solely to give the select engine a total order to lock channels
// in; callers otherwise have no use for it.
func (c *Chan[T]) ID() uint64 { return c.id }

// Cap returns the channel's fixed capacity.
func (c *Chan[T]) Cap() int { return c.capacity }

// Len returns the number of buffered elements currently queued.
func (c *Chan[T]) Len() int {
	return int(c.qcountFast.Load())
}

// completeDirectRecv implements the receiving half of a direct handoff
// from a parked sender, mirroring the runtime's own recv() buffer
// rotation. Shared by the blocking Recv path and the select engine's recv
// case so the buffer-rotation branch exists in exactly one place. Must be
// called with c.mu held and send already dequeued from c.sendQ.
func (c *Chan[T]) completeDirectRecv(send *waiter[T]) T {
	if c.capacity == 0 {
		return *send.elem
	}
	// Buffer must be full here (qcount < capacity implies sendQ empty),
	// so rotate: hand the caller the head of the buffer and enqueue the
	// waiting sender's value in its place.
	v := c.buf[c.recvx]
	c.buf[c.recvx] = *send.elem
	c.recvx = (c.recvx + 1) % c.capacity
	c.sendx = c.recvx // still full: the tail slot is the one just refilled
	return v
}

// bufferTake pops the head of the ring buffer. Must be called with c.mu
// held and c.qcount > 0.
func (c *Chan[T]) bufferTake() T {
	v := c.buf[c.recvx]
	var zero T
	c.buf[c.recvx] = zero
	c.recvx = (c.recvx + 1) % c.capacity
	c.qcount--
	c.qcountFast.Store(int64(c.qcount))
	return v
}

// bufferPut pushes v onto the ring buffer. Must be called with c.mu held
// and c.qcount < c.capacity.
func (c *Chan[T]) bufferPut(v T) {
	c.buf[c.sendx] = v
	c.sendx = (c.sendx + 1) % c.capacity
	c.qcount++
	c.qcountFast.Store(int64(c.qcount))
}

// Send blocks until v is delivered to a receiver (directly or via the
// buffer). It panics with a *ChanError wrapping ErrSendOnClosedChannel if
// the channel is or becomes closed.
func (c *Chan[T]) Send(v T) {
	c.send(v, true)
}

// TrySend attempts a non-blocking send, returning whether it delivered.
// It still panics on a closed channel, mirroring the builtin chan <- v.
func (c *Chan[T]) TrySend(v T) bool {
	return c.send(v, false)
}

func (c *Chan[T]) send(v T, block bool) bool {
	// Fast path: mirrors chansend's unlocked pre-check. Read order matters:
	// recvWaitFast before qcountFast, so that a channel which becomes ready
	// for sending between the two reads is never mistaken for staying
	// not-ready.
	if !block && !c.closedFast.Load() &&
		((c.capacity == 0 && c.recvWaitFast.Load() == 0) ||
			(c.capacity > 0 && c.qcountFast.Load() == int64(c.capacity))) {
		return false
	}

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		panic(newChanError(c.id, ErrSendOnClosedChannel))
	}

	if recv := c.recvQ.dequeue(); recv != nil {
		*recv.elem = v
		c.recvWaitFast.Store(int64(c.recvQ.len()))
		c.mu.Unlock()
		trace(c.logger, "chan.direct-handoff", logrus.Fields{"chan_id": c.id, "waiter_id": recv.sid})
		recv.wake(true)
		return true
	}

	if c.qcount < c.capacity {
		c.bufferPut(v)
		c.mu.Unlock()
		trace(c.logger, "chan.buffer-send", logrus.Fields{"chan_id": c.id, "qcount": c.qcount})
		return true
	}

	if !block {
		c.mu.Unlock()
		return false
	}

	w := newSingleWaiter(waiterSend, &v)
	c.sendQ.enqueue(w)
	c.sendWaitFast.Store(int64(c.sendQ.len()))
	c.mu.Unlock()

	trace(c.logger, "chan.park", logrus.Fields{"chan_id": c.id, "waiter_id": w.sid, "kind": "send"})
	delivered, chOpen := <-w.done
	if !chOpen {
		panic(ErrSpuriousWakeup)
	}
	if !delivered {
		if !c.closedFast.Load() {
			panic(ErrSpuriousWakeup)
		}
		panic(newChanError(c.id, ErrSendOnClosedChannel))
	}
	return true
}

// Recv blocks until a value is available or the channel is closed. ok is
// false exactly when the channel is closed and drained (the Closed result
// variant); it is never an error.
func (c *Chan[T]) Recv() (v T, ok bool) {
	v, ok, _ = c.recv(true)
	return
}

// TryRecv attempts a non-blocking receive. blocked is true when neither a
// value nor a closed channel was immediately observable.
func (c *Chan[T]) TryRecv() (v T, ok bool, blocked bool) {
	v, ok, blocked = c.recv(false)
	return
}

func (c *Chan[T]) recv(block bool) (v T, ok bool, blocked bool) {
	if !block &&
		((c.capacity == 0 && c.sendWaitFast.Load() == 0) ||
			(c.capacity > 0 && c.qcountFast.Load() == 0)) &&
		!c.closedFast.Load() {
		return v, false, true
	}

	c.mu.Lock()

	if c.closed && c.qcount == 0 {
		c.mu.Unlock()
		return v, false, false
	}

	if send := c.sendQ.dequeue(); send != nil {
		v = c.completeDirectRecv(send)
		c.sendWaitFast.Store(int64(c.sendQ.len()))
		c.mu.Unlock()
		trace(c.logger, "chan.direct-handoff", logrus.Fields{"chan_id": c.id, "waiter_id": send.sid})
		send.wake(true)
		return v, true, false
	}

	if c.qcount > 0 {
		v = c.bufferTake()
		c.mu.Unlock()
		trace(c.logger, "chan.buffer-recv", logrus.Fields{"chan_id": c.id, "qcount": c.qcount})
		return v, true, false
	}

	if !block {
		c.mu.Unlock()
		return v, false, true
	}

	w := newSingleWaiter(waiterRecv, &v)
	c.recvQ.enqueue(w)
	c.recvWaitFast.Store(int64(c.recvQ.len()))
	c.mu.Unlock()

	trace(c.logger, "chan.park", logrus.Fields{"chan_id": c.id, "waiter_id": w.sid, "kind": "recv"})
	delivered, chOpen := <-w.done
	if !chOpen {
		panic(ErrSpuriousWakeup)
	}
	return v, delivered, false
}
