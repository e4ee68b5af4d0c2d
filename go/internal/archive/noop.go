package archive

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftdeck/go/internal/room"
)

// Noop discards records. Used when the deployment has no archive storage
// configured; picks still broadcast normally, they just are not retained.
type Noop struct{}

func (Noop) RecordPick(roomID uuid.UUID, rec room.PickRecord) {
	log.Debug().
		Str("room_id", roomID.String()).
		Int("seat", rec.Seat).
		Str("card_id", rec.CardID).
		Msg("archive disabled, pick not retained")
}

func (Noop) RoomCompleted(uuid.UUID, time.Time) {}
