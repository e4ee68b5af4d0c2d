package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope for every outbound room event. Data holds the
// type-specific payload.
type Event struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Type identifies the kind of an outbound event.
type Type string

const (
	TypeJoined        Type = "Joined"
	TypeStateSnapshot Type = "StateSnapshot"
	TypeStateDelta    Type = "StateDelta"
	TypePackContents  Type = "PackContents"
	TypePickRecorded  Type = "PickRecorded"
	TypeTimerTick     Type = "TimerTick"
	TypeChat          Type = "Chat"
	TypeError         Type = "Error"
	TypeRoomAborted   Type = "RoomAborted"
)

// New builds an event envelope with a marshalled payload. Marshal failures
// are programming errors (all payloads are plain structs), so New panics the
// same way json.Marshal on a known-good struct would never fail in practice.
func New(roomID uuid.UUID, t Type, now time.Time, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		panic("events: unmarshalable payload: " + err.Error())
	}
	return Event{
		ID:        uuid.New().String(),
		RoomID:    roomID.String(),
		Type:      t,
		Timestamp: now,
		Data:      data,
	}
}

// JoinedPayload is sent privately to a connection once its seat is bound.
// SeatToken is the opaque credential for every later action on the seat.
type JoinedPayload struct {
	Seat      int    `json:"seat"`
	SeatToken string `json:"seat_token"`
	Name      string `json:"name"`
	Rejoined  bool   `json:"rejoined"`
}

// SeatStatus is the public view of one seat inside a delta or snapshot.
// Pack contents are deliberately absent: only the occupant sees them.
type SeatStatus struct {
	Seat         int    `json:"seat"`
	Name         string `json:"name,omitempty"`
	Occupied     bool   `json:"occupied"`
	Connected    bool   `json:"connected"`
	HoldsPack    bool   `json:"holds_pack"`
	PackSize     int    `json:"pack_size"`
	Resolved     bool   `json:"resolved"`
	DoneForRound bool   `json:"done_for_round"`
	PicksMade    int    `json:"picks_made"`
}

// StateDeltaPayload is broadcast to every subscriber on each transition.
type StateDeltaPayload struct {
	Phase     string       `json:"phase"`
	Round     int          `json:"round"`
	Direction string       `json:"direction"`
	Sequence  uint64       `json:"sequence"`
	Seats     []SeatStatus `json:"seats"`
}

// StateSnapshotPayload carries the full public room state, used for resync
// after a detected sequence gap. PickHistory is filled only for the
// requesting occupant's own seat until the room completes.
type StateSnapshotPayload struct {
	Phase       string       `json:"phase"`
	Round       int          `json:"round"`
	Rounds      int          `json:"rounds"`
	Direction   string       `json:"direction"`
	Sequence    uint64       `json:"sequence"`
	Seats       []SeatStatus `json:"seats"`
	Pack        *PackView    `json:"pack,omitempty"`
	PickHistory []CardView   `json:"pick_history,omitempty"`
	TimerSec    int          `json:"timer_remaining_sec"`
	// Histories is the mediator view of every seat's picks, present only
	// once the room is COMPLETE.
	Histories [][]CardView `json:"histories,omitempty"`
}

// PackView is the occupant-only view of a held pack.
type PackView struct {
	Origin     int        `json:"origin"`
	Generation int        `json:"generation"`
	Cards      []CardView `json:"cards"`
}

// CardView is the wire shape of a card.
type CardView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsLeader bool   `json:"is_leader,omitempty"`
	IsBase   bool   `json:"is_base,omitempty"`
}

// PackContentsPayload is sent privately to a seat's occupant whenever the
// seat receives a pack.
type PackContentsPayload struct {
	Seat     int      `json:"seat"`
	Sequence uint64   `json:"sequence"`
	TimerSec int      `json:"timer_sec"`
	Pack     PackView `json:"pack"`
}

// PickRecordedPayload confirms a resolved pick to the picking seat. AutoPick
// marks timeouts resolved by the room on the seat's behalf.
type PickRecordedPayload struct {
	Seat     int      `json:"seat"`
	Card     CardView `json:"card"`
	AutoPick bool     `json:"auto_pick"`
	Sequence uint64   `json:"sequence"`
}

// TimerTickPayload carries display-only countdown updates. The server timer
// stays authoritative; clients only render this.
type TimerTickPayload struct {
	Sequence     uint64         `json:"sequence"`
	RemainingSec map[string]int `json:"remaining_sec"`
}

// ChatPayload relays a chat line room-wide.
type ChatPayload struct {
	Seat int    `json:"seat"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// ErrorPayload reports a rejected inbound event to its submitter only.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RoomAbortedPayload is broadcast once before an aborted room is evicted.
type RoomAbortedPayload struct {
	Reason    string    `json:"reason"`
	AbortedAt time.Time `json:"aborted_at"`
}
