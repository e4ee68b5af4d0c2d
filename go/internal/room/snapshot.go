package room

import (
	"github.com/twinsuns/draftdeck/go/internal/cards"
	"github.com/twinsuns/draftdeck/go/internal/events"
)

func cardView(c cards.Card) events.CardView {
	return events.CardView{
		ID:       c.ID,
		Name:     c.Name,
		IsLeader: c.IsLeader,
		IsBase:   c.IsBase,
	}
}

func cardViews(cs []cards.Card) []events.CardView {
	out := make([]events.CardView, len(cs))
	for i, c := range cs {
		out[i] = cardView(c)
	}
	return out
}

func packView(p *cards.Pack) events.PackView {
	return events.PackView{
		Origin:     p.Origin,
		Generation: p.Generation,
		Cards:      cardViews(p.Cards),
	}
}

// seatStatuses is the public per-seat view: holding status and counts only,
// never pack contents.
func (r *Room) seatStatuses() []events.SeatStatus {
	out := make([]events.SeatStatus, len(r.seats))
	for i, s := range r.seats {
		st := events.SeatStatus{
			Seat:         s.index,
			Occupied:     s.occupied,
			Connected:    s.connected,
			Resolved:     s.resolved,
			DoneForRound: s.doneForRound,
			PicksMade:    len(s.history),
		}
		if s.occupied {
			st.Name = s.name
		}
		if s.pack != nil {
			st.HoldsPack = true
			st.PackSize = s.pack.Size()
		}
		out[i] = st
	}
	return out
}

// broadcastDelta emits the transition payload every subscriber receives:
// phase, per-seat pack-holding status, rotation direction and the room
// sequence number.
func (r *Room) broadcastDelta() {
	r.broadcaster.Broadcast(r.ID, events.New(r.ID, events.TypeStateDelta, r.clock.Now(), events.StateDeltaPayload{
		Phase:     string(r.phase),
		Round:     r.round,
		Direction: r.direction.String(),
		Sequence:  r.seq,
		Seats:     r.seatStatuses(),
	}))
}

// sendPackContents reveals a pack privately to its holding seat.
func (r *Room) sendPackContents(s *seat) {
	timerSec := int(r.cfg.PickTimeout.Seconds())
	r.broadcaster.SendToSeat(r.ID, s.index, events.New(r.ID, events.TypePackContents, r.clock.Now(), events.PackContentsPayload{
		Seat:     s.index,
		Sequence: r.seq,
		TimerSec: timerSec,
		Pack:     packView(s.pack),
	}))
}

// snapshotFor builds a full state snapshot redacted to what the requesting
// seat may see. A nil seat gets the spectator view. Unrevealed pack contents
// stay hidden from everyone but the occupant; full histories open up to the
// mediator view only once the room completes.
func (r *Room) snapshotFor(s *seat) events.Event {
	payload := events.StateSnapshotPayload{
		Phase:     string(r.phase),
		Round:     r.round,
		Rounds:    r.cfg.PacksPerSeat,
		Direction: r.direction.String(),
		Sequence:  r.seq,
		Seats:     r.seatStatuses(),
	}

	if s != nil {
		payload.PickHistory = cardViews(s.history)
		if s.pack != nil {
			pv := packView(s.pack)
			payload.Pack = &pv
		}
		if s.pickTimer != nil {
			payload.TimerSec = int(s.pickTimer.remaining().Seconds())
		}
	}

	if r.phase == PhaseComplete {
		payload.Histories = make([][]events.CardView, len(r.seats))
		for i, other := range r.seats {
			payload.Histories[i] = cardViews(other.history)
		}
	}

	return events.New(r.ID, events.TypeStateSnapshot, r.clock.Now(), payload)
}
