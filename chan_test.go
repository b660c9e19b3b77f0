package bchan

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// Unbuffered rendezvous: Send and Recv pair up directly with no buffer.
func TestUnbufferedRendezvous(t *testing.T) {
	c := New[int](0)
	var wg sync.WaitGroup
	wg.Add(2)

	var got int
	var ok bool
	go func() {
		defer wg.Done()
		c.Send(42)
	}()
	go func() {
		defer wg.Done()
		got, ok = c.Recv()
	}()
	wg.Wait()

	if !ok || got != 42 {
		t.Fatalf("Recv() = (%v, %v), want (42, true)", got, ok)
	}
}

// Buffered FIFO: sends queue up and receives drain them in order.
func TestBufferedFIFO(t *testing.T) {
	c := New[int](2)
	c.Send(1)
	c.Send(2)

	v1, ok1 := c.Recv()
	v2, ok2 := c.Recv()
	if !ok1 || !ok2 || v1 != 1 || v2 != 2 {
		t.Fatalf("got (%v,%v) (%v,%v), want (1,true) (2,true)", v1, ok1, v2, ok2)
	}
}

// Close does not discard already-buffered values; they still drain out.
func TestCloseDrainsBuffer(t *testing.T) {
	c := New[int](2)
	c.Send(10)
	c.Send(20)
	c.Close()

	want := []int{10, 20}
	for _, w := range want {
		v, ok := c.Recv()
		if !ok || v != w {
			t.Fatalf("Recv() = (%v, %v), want (%v, true)", v, ok, w)
		}
	}
	for i := 0; i < 2; i++ {
		v, ok := c.Recv()
		if ok {
			t.Fatalf("Recv() after drain = (%v, true), want ok=false", v)
		}
	}
}

// Close wakes a blocked recv with ok=false rather than leaving it parked.
func TestCloseWakesBlockedRecv(t *testing.T) {
	c := New[int](0)
	done := make(chan bool, 1)
	go func() {
		_, ok := c.Recv()
		done <- ok
	}()

	c.Close()
	if ok := <-done; ok {
		t.Fatalf("Recv() after close woke with ok=true, want false")
	}
}

func TestCloseWakesBlockedSendWithPanic(t *testing.T) {
	c := New[int](0)
	panicked := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err, _ := r.(error)
				panicked <- err
				return
			}
			panicked <- nil
		}()
		close(started)
		c.Send(1)
	}()

	<-started
	c.Close()

	err := <-panicked
	if !errors.Is(err, ErrSendOnClosedChannel) {
		t.Fatalf("Send panic = %v, want ErrSendOnClosedChannel", err)
	}
}

func TestSendOnClosedPanics(t *testing.T) {
	c := New[int](1)
	c.Close()

	defer func() {
		r := recover()
		err, _ := r.(error)
		if !errors.Is(err, ErrSendOnClosedChannel) {
			t.Fatalf("recover() = %v, want ErrSendOnClosedChannel", r)
		}
	}()
	c.Send(1)
}

func TestTrySendOnClosedPanics(t *testing.T) {
	c := New[int](1)
	c.Close()

	defer func() {
		r := recover()
		err, _ := r.(error)
		if !errors.Is(err, ErrSendOnClosedChannel) {
			t.Fatalf("recover() = %v, want ErrSendOnClosedChannel", r)
		}
	}()
	c.TrySend(1)
}

func TestDoubleCloseFails(t *testing.T) {
	c := New[int](0)
	c.Close()

	defer func() {
		r := recover()
		err, _ := r.(error)
		if !errors.Is(err, ErrCloseOfClosedChannel) {
			t.Fatalf("recover() = %v, want ErrCloseOfClosedChannel", r)
		}
	}()
	c.Close()
}

// Round-trip / idempotence: TryRecv on an empty, non-closed channel
// reports "would block" and mutates nothing observable.
func TestTryRecvWouldBlock(t *testing.T) {
	c := New[int](3)
	v, ok, blocked := c.TryRecv()
	if ok || !blocked || v != 0 {
		t.Fatalf("TryRecv() = (%v,%v,%v), want (0,false,true)", v, ok, blocked)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
}

func TestTrySendWouldBlockUnbuffered(t *testing.T) {
	c := New[int](0)
	if c.TrySend(1) {
		t.Fatal("TrySend on unbuffered channel with no receiver returned true")
	}
}

func TestTrySendFillsBuffer(t *testing.T) {
	c := New[int](1)
	if !c.TrySend(7) {
		t.Fatal("TrySend into empty buffer returned false")
	}
	if c.TrySend(8) {
		t.Fatal("TrySend into full buffer returned true")
	}
	v, ok := c.Recv()
	if !ok || v != 7 {
		t.Fatalf("Recv() = (%v,%v), want (7,true)", v, ok)
	}
}

// Under concurrent send/recv interleaving, received values still come out
// in send order.
func TestFIFOOrderingUnderInterleaving(t *testing.T) {
	c := New[int](4)
	const n = 1000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			c.Send(i)
		}
		c.Close()
	}()

	next := 0
	for {
		v, ok := c.Recv()
		if !ok {
			break
		}
		if v != next {
			t.Fatalf("Recv() = %d, want %d", v, next)
		}
		next++
	}
	if next != n {
		t.Fatalf("received %d values, want %d", next, n)
	}
	wg.Wait()
}

// Len never exceeds capacity or drops below zero under concurrent sends.
func TestCapacityInvariant(t *testing.T) {
	c := New[int](5)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			c.Send(v)
		}(i)
	}
	for i := 0; i < 20; i++ {
		_, ok := c.Recv()
		if !ok {
			t.Fatal("unexpected Closed during drain")
		}
		if l := c.Len(); l < 0 || l > c.Cap() {
			t.Fatalf("Len() = %d out of [0,%d]", l, c.Cap())
		}
	}
	wg.Wait()
}

// Once a Recv observes the channel closed, it stays observed that way.
func TestClosedMonotonic(t *testing.T) {
	c := New[int](0)
	c.Close()
	for i := 0; i < 5; i++ {
		if _, ok := c.Recv(); ok {
			t.Fatalf("Recv() #%d returned ok=true after close", i)
		}
	}
}

func TestBufferRotationOnFullBufferHandoff(t *testing.T) {
	c := New[int](1)
	c.Send(1) // fills the buffer

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Send(2) // buffer full: parks on sendQ
	}()

	// Give the sender a moment to park; not required for correctness,
	// just makes the interleaving under test more likely to exercise the
	// buffer-rotation branch rather than the direct sender-arrives-first path.
	time.Sleep(10 * time.Millisecond)
	v1, ok1 := c.Recv()
	v2, ok2 := c.Recv()
	wg.Wait()

	if !ok1 || !ok2 || v1 != 1 || v2 != 2 {
		t.Fatalf("got (%v,%v) (%v,%v), want (1,true) (2,true)", v1, ok1, v2, ok2)
	}
}
