package room

import (
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftdeck/go/internal/cards"
	"github.com/twinsuns/draftdeck/go/internal/events"
)

// activate deals every booster and starts round 1. Caller has already
// verified the room may leave WAITING.
func (r *Room) activate() {
	shape := cards.DealShape{
		SeatCount:    len(r.seats),
		PacksPerSeat: r.cfg.PacksPerSeat,
		PackSize:     r.cfg.PackSize,
	}
	dealt, err := cards.DealPacks(r.pool, shape, r.cfg.Seed)
	if err != nil {
		// Deal shape was validated at creation, so this only happens if the
		// catalog shrank underneath us. Fatal to the room.
		log.Error().Err(err).Str("room_id", r.ID.String()).Msg("deal failed on activation")
		r.abort("deal failed: " + err.Error())
		return
	}

	r.dealtTotal = shape.SeatCount * shape.PacksPerSeat * shape.PackSize
	for i, s := range r.seats {
		s.boosters = dealt[i]
	}

	log.Info().
		Str("room_id", r.ID.String()).
		Int("seats", len(r.seats)).
		Int("packs_per_seat", r.cfg.PacksPerSeat).
		Int("pack_size", r.cfg.PackSize).
		Int64("seed", r.cfg.Seed).
		Msg("draft activated")

	r.round = 0
	r.startRound()
}

// startRound opens the next booster for every seat and begins the first
// pick step. Direction alternates by round: left in odd rounds, right in
// even.
func (r *Room) startRound() {
	r.round++
	if r.round%2 == 1 {
		r.direction = DirectionLeft
	} else {
		r.direction = DirectionRight
	}
	r.phase = PhaseActive

	for _, s := range r.seats {
		s.pack = s.boosters[r.round-1]
		s.boosters[r.round-1] = nil
		s.resolved = false
		s.doneForRound = false
	}

	log.Info().
		Str("room_id", r.ID.String()).
		Int("round", r.round).
		Str("direction", r.direction.String()).
		Msg("round started")

	r.beginPickStep()
}

// beginPickStep bumps the sequence number, broadcasts the new state and
// arms one timer per seat holding a pack.
func (r *Room) beginPickStep() {
	r.seq++
	r.broadcastDelta()
	for _, s := range r.seats {
		if s.pack == nil {
			continue
		}
		r.sendPackContents(s)
		r.armPickTimer(s)
	}
}

func (r *Room) armPickTimer(s *seat) {
	if s.pickTimer != nil {
		s.pickTimer.cancel()
	}
	s.timerGen++
	gen := s.timerGen
	idx := s.index
	s.pickTimer = newSeatTimer(r.clock, r.cfg.PickTimeout, func() {
		if err := r.Enqueue(timerExpiredCmd{Seat: idx, Gen: gen}); err != nil {
			log.Warn().Err(err).Str("room_id", r.ID.String()).Int("seat", idx).
				Msg("dropped timer expiry")
		}
	})
}

func (r *Room) handlePick(c pickCmd) {
	s := r.seatByToken(c.Token)
	if s == nil {
		r.replyError(c.Reply, ErrNotFound, "seat token does not match any seat")
		return
	}
	if r.phase != PhaseActive {
		r.replyError(c.Reply, ErrBadPhase, "no pick in progress")
		return
	}
	if c.Seq != r.seq {
		r.replyError(c.Reply, ErrStaleAction,
			"sequence "+strconv.FormatUint(c.Seq, 10)+" does not match room sequence "+strconv.FormatUint(r.seq, 10))
		return
	}
	if s.resolved || s.pack == nil {
		r.replyError(c.Reply, ErrStaleAction, "seat already resolved for this step")
		return
	}

	card, ok := s.pack.Remove(c.CardID)
	if !ok {
		r.replyError(c.Reply, ErrStaleAction, "card is not in the seat's pack")
		return
	}

	r.resolvePick(s, card, false)
}

// handleTimerExpired applies the timeout policy: auto-pick the first card in
// deal order so the draft never stalls on an idle seat. A pick that raced
// ahead of the expiry already bumped the generation, making the fire stale.
func (r *Room) handleTimerExpired(c timerExpiredCmd) {
	if c.Seat >= len(r.seats) {
		return
	}
	s := r.seats[c.Seat]
	if s.timerGen != c.Gen || r.phase != PhaseActive || s.resolved || s.pack == nil {
		return
	}

	card, ok := s.pack.First()
	if !ok {
		return
	}
	s.pack.Remove(card.ID)

	log.Info().
		Str("room_id", r.ID.String()).
		Int("seat", s.index).
		Str("card_id", card.ID).
		Msg("pick timer expired, auto-picking first card")

	r.resolvePick(s, card, true)
}

// resolvePick relocates the card from pack to history; picks never create or
// destroy cards. Human and auto picks share this path exactly.
func (r *Room) resolvePick(s *seat, card cards.Card, auto bool) {
	s.history = append(s.history, card)
	s.resolved = true
	if s.pack != nil && s.pack.Empty() {
		// A seat never holds an empty pack; it is dropped here and the seat
		// either receives the next rotated pack or the round ends.
		s.pack = nil
	}
	if s.pickTimer != nil {
		s.pickTimer.cancel()
		s.pickTimer = nil
	}
	s.timerGen++

	now := r.clock.Now()
	r.archive.RecordPick(r.ID, PickRecord{
		Seat:     s.index,
		CardID:   card.ID,
		CardName: card.Name,
		Round:    r.round,
		AutoPick: auto,
		PickedAt: now,
	})

	r.broadcaster.SendToSeat(r.ID, s.index, events.New(r.ID, events.TypePickRecorded, now, events.PickRecordedPayload{
		Seat:     s.index,
		Card:     cardView(card),
		AutoPick: auto,
		Sequence: r.seq,
	}))
	r.broadcastDelta()

	r.maybeRotate()
}

// maybeRotate advances the draft once every seat holding a pack has
// resolved its pick for this step.
func (r *Room) maybeRotate() {
	for _, s := range r.seats {
		if s.pack != nil && !s.resolved {
			return
		}
	}
	r.rotate()
}

// rotate hands each resolved pack to the rotation-direction neighbour.
// Emptied packs are dropped; a seat with no inbound pack is done for the
// round.
func (r *Room) rotate() {
	n := len(r.seats)
	incoming := make([]*cards.Pack, n)
	for _, s := range r.seats {
		if s.pack == nil || s.pack.Empty() {
			s.pack = nil
			continue
		}
		s.pack.Generation++
		incoming[r.direction.next(s.index, n)] = s.pack
		s.pack = nil
	}

	holders := 0
	for i, s := range r.seats {
		s.pack = incoming[i]
		s.resolved = false
		if s.pack != nil {
			holders++
		} else {
			s.doneForRound = true
		}
	}

	if holders > 0 {
		r.beginPickStep()
		return
	}

	if r.round < r.cfg.PacksPerSeat {
		r.enterRoundBreak()
		return
	}
	r.complete()
}

func (r *Room) enterRoundBreak() {
	if r.cfg.RoundBreak <= 0 {
		r.startRound()
		return
	}

	r.phase = PhaseRoundBreak
	r.seq++
	r.broadcastDelta()

	log.Info().
		Str("room_id", r.ID.String()).
		Int("round", r.round).
		Dur("break", r.cfg.RoundBreak).
		Msg("round complete, pausing before next round")

	round := r.round
	breakTimer := newSeatTimer(r.clock, r.cfg.RoundBreak, func() {
		if err := r.Enqueue(breakOverCmd{Round: round}); err != nil {
			log.Warn().Err(err).Str("room_id", r.ID.String()).Msg("dropped break expiry")
		}
	})
	_ = breakTimer // one-shot; fires or dies with the room
}

func (r *Room) handleBreakOver(c breakOverCmd) {
	if r.phase != PhaseRoundBreak || c.Round != r.round {
		return
	}
	r.startRound()
}

func (r *Room) complete() {
	r.phase = PhaseComplete
	r.seq++
	r.cancelAllTimers()
	r.broadcastDelta()
	r.archive.RoomCompleted(r.ID, r.clock.Now())

	log.Info().
		Str("room_id", r.ID.String()).
		Int("rounds", r.round).
		Uint64("sequence", r.seq).
		Msg("draft complete")
}

func (r *Room) abort(reason string) {
	if r.phase == PhaseAborted || r.phase == PhaseComplete {
		return
	}
	r.phase = PhaseAborted
	r.seq++
	r.cancelAllTimers()

	now := r.clock.Now()
	r.broadcaster.Broadcast(r.ID, events.New(r.ID, events.TypeRoomAborted, now, events.RoomAbortedPayload{
		Reason:    reason,
		AbortedAt: now,
	}))
	r.broadcastDelta()

	log.Warn().
		Str("room_id", r.ID.String()).
		Str("reason", reason).
		Msg("room aborted")
}

func (r *Room) cancelAllTimers() {
	for _, s := range r.seats {
		if s.pickTimer != nil {
			s.pickTimer.cancel()
			s.pickTimer = nil
		}
		s.timerGen++
		if s.graceTimer != nil {
			s.graceTimer.cancel()
			s.graceTimer = nil
		}
		s.graceGen++
	}
}

// handleTick broadcasts display-only countdown updates while picks are live.
func (r *Room) handleTick() {
	if r.phase != PhaseActive {
		return
	}
	remaining := make(map[string]int)
	for _, s := range r.seats {
		if s.pickTimer == nil {
			continue
		}
		remaining[strconv.Itoa(s.index)] = int(s.pickTimer.remaining().Seconds())
	}
	if len(remaining) == 0 {
		return
	}
	r.broadcaster.Broadcast(r.ID, events.New(r.ID, events.TypeTimerTick, r.clock.Now(), events.TimerTickPayload{
		Sequence:     r.seq,
		RemainingSec: remaining,
	}))
	r.updateSummary()
}
