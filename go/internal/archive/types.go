package archive

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is one outbox row: an opaque ordered pick (or completion) record
// handed off to the external storage collaborator.
type Record struct {
	ID        uuid.UUID       `json:"id"`
	RoomID    uuid.UUID       `json:"room_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}

const (
	KindPick      = "PickRecorded"
	KindCompleted = "RoomCompleted"
)
