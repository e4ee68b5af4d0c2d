package room

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinsuns/draftdeck/go/internal/cards"
	"github.com/twinsuns/draftdeck/go/internal/events"
)

// recordingBroadcaster captures everything a room emits.
type recordingBroadcaster struct {
	mu         sync.Mutex
	broadcasts []events.Event
	seatEvents map[int][]events.Event
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{seatEvents: make(map[int][]events.Event)}
}

func (b *recordingBroadcaster) Broadcast(_ uuid.UUID, ev events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcasts = append(b.broadcasts, ev)
}

func (b *recordingBroadcaster) SendToSeat(_ uuid.UUID, seat int, ev events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seatEvents[seat] = append(b.seatEvents[seat], ev)
}

func (b *recordingBroadcaster) lastDelta(t *testing.T) events.StateDeltaPayload {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.broadcasts) - 1; i >= 0; i-- {
		if b.broadcasts[i].Type == events.TypeStateDelta {
			var payload events.StateDeltaPayload
			require.NoError(t, json.Unmarshal(b.broadcasts[i].Data, &payload))
			return payload
		}
	}
	t.Fatal("no state delta broadcast")
	return events.StateDeltaPayload{}
}

// recordingSink captures archived picks.
type recordingSink struct {
	mu        sync.Mutex
	picks     []PickRecord
	completed bool
}

func (s *recordingSink) RecordPick(_ uuid.UUID, rec PickRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.picks = append(s.picks, rec)
}

func (s *recordingSink) RoomCompleted(uuid.UUID, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
}

func makePool(n int) []cards.Card {
	pool := make([]cards.Card, n)
	for i := range pool {
		pool[i] = cards.Card{ID: fmt.Sprintf("c%03d", i), Name: fmt.Sprintf("Card %d", i)}
	}
	return pool
}

type fixture struct {
	room  *Room
	clock *clockwork.FakeClock
	bc    *recordingBroadcaster
	sink  *recordingSink
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	bc := newRecordingBroadcaster()
	sink := &recordingSink{}
	pool := makePool(cfg.SeatCount*cfg.PacksPerSeat*cfg.PackSize + 10)
	return &fixture{
		room:  New(uuid.New(), cfg, pool, clock, bc, sink),
		clock: clock,
		bc:    bc,
		sink:  sink,
	}
}

func defaultConfig() Config {
	return Config{
		SetCode:      "TWI",
		SeatCount:    2,
		MinSeats:     2,
		PacksPerSeat: 2,
		PackSize:     3,
		PickTimeout:  30 * time.Second,
		GracePeriod:  45 * time.Second,
		Seed:         42,
	}
}

// join occupies the next vacant seat and returns its token.
func (f *fixture) join(t *testing.T, name string) uuid.UUID {
	t.Helper()
	var token uuid.UUID
	f.room.handle(joinCmd{Name: name, Reply: func(ev events.Event) {
		if ev.Type != events.TypeJoined {
			t.Fatalf("join rejected: %s", ev.Data)
		}
		var payload events.JoinedPayload
		require.NoError(t, json.Unmarshal(ev.Data, &payload))
		token = uuid.MustParse(payload.SeatToken)
	}})
	require.NotEqual(t, uuid.Nil, token)
	return token
}

// drain waits for n asynchronously enqueued commands (timer fires) and
// handles them.
func (f *fixture) drain(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case cmd := <-f.room.commands:
			f.room.handle(cmd)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for command %d of %d", i+1, n)
		}
	}
}

// errReply captures a single error payload.
func errReply(t *testing.T, got *events.ErrorPayload) replyFunc {
	return func(ev events.Event) {
		if ev.Type != events.TypeError {
			return
		}
		require.NoError(t, json.Unmarshal(ev.Data, got))
	}
}

// conservation sums cards everywhere they can live.
func (f *fixture) conservation() (held, stored, history int) {
	for _, s := range f.room.seats {
		if s.pack != nil {
			held += s.pack.Size()
		}
		for _, b := range s.boosters {
			if b != nil {
				stored += b.Size()
			}
		}
		history += len(s.history)
	}
	return
}

func TestRoomActivatesWhenFull(t *testing.T) {
	f := newFixture(t, defaultConfig())

	f.join(t, "alice")
	assert.Equal(t, PhaseWaiting, f.room.phase)

	f.join(t, "bob")
	assert.Equal(t, PhaseActive, f.room.phase)
	assert.Equal(t, 1, f.room.round)
	assert.Equal(t, DirectionLeft, f.room.direction)

	for _, s := range f.room.seats {
		require.NotNil(t, s.pack)
		assert.Equal(t, 3, s.pack.Size())
		assert.NotNil(t, s.pickTimer)
	}

	held, stored, history := f.conservation()
	assert.Equal(t, f.room.dealtTotal, held+stored+history)
}

func TestValidPickMovesCardToHistory(t *testing.T) {
	f := newFixture(t, defaultConfig())
	tokenA := f.join(t, "alice")
	f.join(t, "bob")

	seat := f.room.seats[0]
	cardID := seat.pack.Cards[1].ID

	f.room.handle(pickCmd{Token: tokenA, CardID: cardID, Seq: f.room.seq})

	assert.Len(t, seat.history, 1)
	assert.Equal(t, cardID, seat.history[0].ID)
	assert.True(t, seat.resolved)
	assert.Nil(t, seat.pickTimer)

	held, stored, history := f.conservation()
	assert.Equal(t, f.room.dealtTotal, held+stored+history)
}

func TestStalePickRejected(t *testing.T) {
	f := newFixture(t, defaultConfig())
	tokenA := f.join(t, "alice")
	f.join(t, "bob")

	seat := f.room.seats[0]
	cardID := seat.pack.Cards[0].ID
	before := seat.pack.Size()

	var got events.ErrorPayload
	f.room.handle(pickCmd{Token: tokenA, CardID: cardID, Seq: f.room.seq - 1, Reply: errReply(t, &got)})

	assert.Equal(t, "stale_action", got.Code)
	assert.Equal(t, before, seat.pack.Size())
	assert.Empty(t, seat.history)
}

func TestPickAfterResolutionRejected(t *testing.T) {
	f := newFixture(t, defaultConfig())
	tokenA := f.join(t, "alice")
	f.join(t, "bob")

	seat := f.room.seats[0]
	f.room.handle(pickCmd{Token: tokenA, CardID: seat.pack.Cards[0].ID, Seq: f.room.seq})

	var got events.ErrorPayload
	f.room.handle(pickCmd{Token: tokenA, CardID: seat.pack.Cards[0].ID, Seq: f.room.seq, Reply: errReply(t, &got)})
	assert.Equal(t, "stale_action", got.Code)
}

func TestWrongSeatCannotPickAnotherPack(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.join(t, "alice")
	tokenB := f.join(t, "bob")

	// Bob submits a card id that only exists in Alice's pack.
	aliceCard := f.room.seats[0].pack.Cards[0].ID
	inBoth := false
	for _, c := range f.room.seats[1].pack.Cards {
		if c.ID == aliceCard {
			inBoth = true
		}
	}
	require.False(t, inBoth)

	var got events.ErrorPayload
	f.room.handle(pickCmd{Token: tokenB, CardID: aliceCard, Seq: f.room.seq, Reply: errReply(t, &got)})
	assert.Equal(t, "stale_action", got.Code)
	assert.Empty(t, f.room.seats[0].history)
}

func TestTimeoutAutoPicksFirstCardInDealOrder(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.join(t, "alice")
	tokenB := f.join(t, "bob")

	seat := f.room.seats[0]
	want := []string{seat.pack.Cards[0].ID, seat.pack.Cards[1].ID, seat.pack.Cards[2].ID}

	// Resolve seat 1 by hand so rotation waits only on seat 0.
	f.room.handle(pickCmd{Token: tokenB, CardID: f.room.seats[1].pack.Cards[0].ID, Seq: f.room.seq})

	f.clock.Advance(f.room.cfg.PickTimeout)
	f.drain(t, 1) // seat 0's expiry

	assert.Equal(t, want[0], seat.history[0].ID)
	// Seat 0's auto-pick completed the step, so its shrunken pack rotated
	// to seat 1; the remaining cards keep their deal order.
	incoming := f.room.seats[1].pack
	require.NotNil(t, incoming)
	assert.Equal(t, []string{want[1], want[2]}, []string{incoming.Cards[0].ID, incoming.Cards[1].ID})
}

func TestLatePickAfterTimeoutRejected(t *testing.T) {
	f := newFixture(t, defaultConfig())
	tokenA := f.join(t, "alice")
	f.join(t, "bob")

	seat := f.room.seats[0]
	secondCard := seat.pack.Cards[1].ID
	seq := f.room.seq

	f.clock.Advance(f.room.cfg.PickTimeout)
	f.drain(t, 2) // both seats time out and the step rotates

	var got events.ErrorPayload
	f.room.handle(pickCmd{Token: tokenA, CardID: secondCard, Seq: seq, Reply: errReply(t, &got)})
	assert.Equal(t, "stale_action", got.Code)
}

func TestRotationAlternatesDirectionByRound(t *testing.T) {
	cfg := defaultConfig()
	cfg.SeatCount = 3
	cfg.MinSeats = 3
	f := newFixture(t, cfg)
	tokens := []uuid.UUID{f.join(t, "a"), f.join(t, "b"), f.join(t, "c")}

	assert.Equal(t, DirectionLeft, f.room.direction)

	// Track each seat's pack by its first card id, then resolve one step.
	firstCards := make([]string, 3)
	for i, s := range f.room.seats {
		firstCards[i] = s.pack.Cards[0].ID
	}
	for i, tok := range tokens {
		// Everyone picks their pack's last card so the first card stays put.
		last := f.room.seats[i].pack.Cards[f.room.seats[i].pack.Size()-1]
		f.room.handle(pickCmd{Token: tok, CardID: last.ID, Seq: f.room.seq})
	}

	// Round 1 rotates left: seat i's pack moves to seat i+1 mod N.
	for i := range f.room.seats {
		to := (i + 1) % 3
		assert.Equal(t, firstCards[i], f.room.seats[to].pack.Cards[0].ID,
			"seat %d pack should be at seat %d", i, to)
	}

	// Exhaust round 1 (two cards left per pack), entering round 2.
	for step := 0; step < 2; step++ {
		f.clock.Advance(f.room.cfg.PickTimeout)
		f.drain(t, 3)
	}
	require.Equal(t, 2, f.room.round)
	assert.Equal(t, DirectionRight, f.room.direction)

	// Timeouts auto-pick each pack's first card, so track the second one.
	for i, s := range f.room.seats {
		firstCards[i] = s.pack.Cards[1].ID
	}
	f.clock.Advance(f.room.cfg.PickTimeout)
	f.drain(t, 3)

	// Round 2 rotates right: seat i's pack moves to seat i-1 mod N.
	for i := range f.room.seats {
		to := (i + 2) % 3
		assert.Equal(t, firstCards[i], f.room.seats[to].pack.Cards[0].ID,
			"seat %d pack should be at seat %d", i, to)
	}
}

func TestDraftRunsToCompletionOnTimeouts(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.join(t, "alice")
	f.join(t, "bob")

	totalSteps := f.room.cfg.PacksPerSeat * f.room.cfg.PackSize
	for step := 0; step < totalSteps; step++ {
		f.clock.Advance(f.room.cfg.PickTimeout)
		f.drain(t, 2)
	}

	assert.Equal(t, PhaseComplete, f.room.phase)
	assert.True(t, f.sink.completed)

	held, stored, history := f.conservation()
	assert.Zero(t, held)
	assert.Zero(t, stored)
	assert.Equal(t, f.room.dealtTotal, history)
	assert.Len(t, f.sink.picks, f.room.dealtTotal)
}

func TestExactlyOneTimerPerPackHolder(t *testing.T) {
	f := newFixture(t, defaultConfig())
	tokenA := f.join(t, "alice")
	f.join(t, "bob")

	for _, s := range f.room.seats {
		assert.NotNil(t, s.pickTimer, "holder must have an armed timer")
	}

	f.room.handle(pickCmd{Token: tokenA, CardID: f.room.seats[0].pack.Cards[0].ID, Seq: f.room.seq})
	assert.Nil(t, f.room.seats[0].pickTimer, "resolved seat's timer is cancelled")
	assert.NotNil(t, f.room.seats[1].pickTimer)
}

func TestReconnectWithinGraceIsTransparent(t *testing.T) {
	f := newFixture(t, defaultConfig())
	tokenA := f.join(t, "alice")
	f.join(t, "bob")

	seat := f.room.seats[0]
	packBefore := seat.pack
	historyBefore := len(seat.history)

	f.room.handle(disconnectCmd{Token: tokenA})
	assert.False(t, seat.connected)
	require.NotNil(t, seat.pickTimer, "pick clock keeps running through disconnect")

	f.clock.Advance(10 * time.Second)

	rejoined := false
	f.room.handle(joinCmd{Token: tokenA, Reply: func(ev events.Event) {
		if ev.Type == events.TypeJoined {
			var payload events.JoinedPayload
			require.NoError(t, json.Unmarshal(ev.Data, &payload))
			rejoined = payload.Rejoined
		}
	}})

	assert.True(t, rejoined)
	assert.True(t, seat.connected)
	assert.Same(t, packBefore, seat.pack)
	assert.Len(t, seat.history, historyBefore)
	assert.Equal(t, 20*time.Second, seat.pickTimer.remaining())
}

func TestSingleDisconnectDoesNotAbort(t *testing.T) {
	f := newFixture(t, defaultConfig())
	tokenA := f.join(t, "alice")
	f.join(t, "bob")

	f.room.handle(disconnectCmd{Token: tokenA})
	f.clock.Advance(f.room.cfg.GracePeriod)
	// Grace expiry plus both pick timeouts land on the queue.
	f.drain(t, 3)

	assert.NotEqual(t, PhaseAborted, f.room.phase)
}

func TestUniversalDisconnectAborts(t *testing.T) {
	cfg := defaultConfig()
	cfg.PickTimeout = 10 * time.Minute // keep pick timers out of the way
	f := newFixture(t, cfg)
	tokenA := f.join(t, "alice")
	tokenB := f.join(t, "bob")

	f.room.handle(disconnectCmd{Token: tokenA})
	f.room.handle(disconnectCmd{Token: tokenB})

	f.clock.Advance(cfg.GracePeriod)
	f.drain(t, 2)

	assert.Equal(t, PhaseAborted, f.room.phase)

	var aborted bool
	f.bc.mu.Lock()
	for _, ev := range f.bc.broadcasts {
		if ev.Type == events.TypeRoomAborted {
			aborted = true
		}
	}
	f.bc.mu.Unlock()
	assert.True(t, aborted, "abort must be broadcast to remaining subscribers")
}

func TestManualStartCompactsSeats(t *testing.T) {
	cfg := defaultConfig()
	cfg.SeatCount = 4
	cfg.MinSeats = 2
	f := newFixture(t, cfg)
	hostToken := f.join(t, "alice")
	f.join(t, "bob")

	f.room.handle(startCmd{Token: hostToken})

	assert.Equal(t, PhaseActive, f.room.phase)
	assert.Len(t, f.room.seats, 2, "vacant seats dropped on force-start")
	for _, s := range f.room.seats {
		assert.True(t, s.occupied)
		assert.NotNil(t, s.pack)
	}
}

func TestNonHostCannotForceStart(t *testing.T) {
	cfg := defaultConfig()
	cfg.SeatCount = 4
	cfg.MinSeats = 2
	f := newFixture(t, cfg)
	f.join(t, "alice")
	guestToken := f.join(t, "bob")

	var got events.ErrorPayload
	f.room.handle(startCmd{Token: guestToken, Reply: errReply(t, &got)})
	assert.Equal(t, "stale_action", got.Code)
	assert.Equal(t, PhaseWaiting, f.room.phase)
}

func TestJoinAfterStartRejected(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.join(t, "alice")
	f.join(t, "bob")

	var got events.ErrorPayload
	f.room.handle(joinCmd{Name: "late", Reply: errReply(t, &got)})
	assert.Equal(t, "stale_action", got.Code)
}

func TestDeltaHidesPackContents(t *testing.T) {
	f := newFixture(t, defaultConfig())
	f.join(t, "alice")
	f.join(t, "bob")

	delta := f.bc.lastDelta(t)
	assert.Equal(t, string(PhaseActive), delta.Phase)
	assert.Equal(t, "left", delta.Direction)
	for _, st := range delta.Seats {
		assert.True(t, st.HoldsPack)
		assert.Equal(t, 3, st.PackSize)
	}

	// Pack contents only travel on seat-directed events.
	raw, err := json.Marshal(delta)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "c0", "delta must not leak card ids")
}

func TestSnapshotRevealsHistoriesOnlyWhenComplete(t *testing.T) {
	f := newFixture(t, defaultConfig())
	tokenA := f.join(t, "alice")
	f.join(t, "bob")

	var snap events.StateSnapshotPayload
	capture := func(ev events.Event) {
		require.Equal(t, events.TypeStateSnapshot, ev.Type)
		snap = events.StateSnapshotPayload{}
		require.NoError(t, json.Unmarshal(ev.Data, &snap))
	}

	f.room.handle(snapshotCmd{Token: tokenA, Reply: capture})
	assert.Nil(t, snap.Histories, "mediator view hidden while active")
	require.NotNil(t, snap.Pack, "occupant sees own pack")
	assert.Equal(t, 3, len(snap.Pack.Cards))

	// Spectator snapshot carries no pack at all.
	f.room.handle(snapshotCmd{Reply: capture})
	assert.Nil(t, snap.Pack)

	totalSteps := f.room.cfg.PacksPerSeat * f.room.cfg.PackSize
	for step := 0; step < totalSteps; step++ {
		f.clock.Advance(f.room.cfg.PickTimeout)
		f.drain(t, 2)
	}
	require.Equal(t, PhaseComplete, f.room.phase)

	f.room.handle(snapshotCmd{Reply: capture})
	require.Len(t, snap.Histories, 2)
	assert.Len(t, snap.Histories[0], f.room.cfg.PacksPerSeat*f.room.cfg.PackSize)
}

func TestSequenceAdvancesPerStep(t *testing.T) {
	f := newFixture(t, defaultConfig())
	tokenA := f.join(t, "alice")
	tokenB := f.join(t, "bob")

	start := f.room.seq
	require.NotZero(t, start)

	// Both picks in one step share the sequence number.
	f.room.handle(pickCmd{Token: tokenA, CardID: f.room.seats[0].pack.Cards[0].ID, Seq: start})
	f.room.handle(pickCmd{Token: tokenB, CardID: f.room.seats[1].pack.Cards[0].ID, Seq: start})

	assert.Equal(t, start+1, f.room.seq, "rotation begins a new step")
}
