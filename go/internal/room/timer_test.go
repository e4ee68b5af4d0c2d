package room

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestSeatTimerFiresOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fired := make(chan struct{}, 4)

	newSeatTimer(clock, 30*time.Second, func() { fired <- struct{}{} })

	clock.Advance(30 * time.Second)
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}

	clock.Advance(time.Hour)
	select {
	case <-fired:
		t.Fatal("timer fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSeatTimerCancelSuppressesFire(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fired := make(chan struct{}, 1)

	st := newSeatTimer(clock, 30*time.Second, func() { fired <- struct{}{} })
	st.cancel()

	clock.Advance(time.Minute)
	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSeatTimerCancelIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	st := newSeatTimer(clock, time.Second, func() {})
	st.cancel()
	st.cancel()
}

func TestSeatTimerRemaining(t *testing.T) {
	clock := clockwork.NewFakeClock()
	st := newSeatTimer(clock, 30*time.Second, func() {})

	assert.Equal(t, 30*time.Second, st.remaining())

	clock.Advance(12 * time.Second)
	assert.Equal(t, 18*time.Second, st.remaining())

	clock.Advance(time.Minute)
	assert.Equal(t, time.Duration(0), st.remaining())
}
