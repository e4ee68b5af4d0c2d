package room

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// seatTimer is a cancellable one-shot countdown bound to a single seat's
// current pick (or to a seat's disconnect grace window). Expiry is never
// executed as a direct mutation: the fire callback enqueues a command on the
// owning room's queue, so timer-driven auto-picks serialize with human picks.
type seatTimer struct {
	clock    clockwork.Clock
	timer    clockwork.Timer
	deadline time.Time

	mu     sync.Mutex
	done   bool
	stopCh chan struct{}
}

// newSeatTimer arms a one-shot countdown. fire runs on its own goroutine
// when the countdown elapses; it must only enqueue, never mutate.
func newSeatTimer(clock clockwork.Clock, d time.Duration, fire func()) *seatTimer {
	st := &seatTimer{
		clock:    clock,
		timer:    clock.NewTimer(d),
		deadline: clock.Now().Add(d),
		stopCh:   make(chan struct{}),
	}

	go func() {
		select {
		case <-st.timer.Chan():
			st.mu.Lock()
			fired := !st.done
			st.done = true
			st.mu.Unlock()
			if fired {
				fire()
			}
		case <-st.stopCh:
		}
	}()

	return st
}

// cancel disarms the timer. It is a no-op if the timer already fired or was
// cancelled before.
func (st *seatTimer) cancel() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.done {
		return
	}
	st.done = true
	close(st.stopCh)
	stopAndDrainTimer(st.timer)
}

// remaining returns the time left for display. Zero once expired.
func (st *seatTimer) remaining() time.Duration {
	left := st.deadline.Sub(st.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// stopAndDrainTimer stops a timer and drains its channel so the waiting
// goroutine cannot observe a late fire.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
