package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftdeck/go/internal/room"
)

// Outbox implements room.ArchiveSink by staging records in a Postgres
// outbox table. Inserts run on a dedicated goroutine so the room worker
// never blocks on the database; a relay worker later drains unsent rows to
// the message bus.
type Outbox struct {
	db      *sql.DB
	pending chan Record
}

const outboxQueueSize = 1024

func NewOutbox(db *sql.DB) *Outbox {
	return &Outbox{
		db:      db,
		pending: make(chan Record, outboxQueueSize),
	}
}

// Run drains the insert queue until ctx is cancelled.
func (o *Outbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-o.pending:
			if err := o.insert(ctx, rec); err != nil {
				log.Error().Err(err).
					Str("room_id", rec.RoomID.String()).
					Str("kind", rec.Kind).
					Msg("failed to stage archive record")
			}
		}
	}
}

func (o *Outbox) insert(ctx context.Context, rec Record) error {
	const q = `
INSERT INTO draft_archive_outbox (id, room_id, kind, payload, created_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := o.db.ExecContext(ctx, q, rec.ID, rec.RoomID, rec.Kind, rec.Payload, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}
	return nil
}

func (o *Outbox) enqueue(roomID uuid.UUID, kind string, payload any, at time.Time) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("failed to marshal archive payload")
		return
	}
	rec := Record{
		ID:        uuid.New(),
		RoomID:    roomID,
		Kind:      kind,
		Payload:   data,
		CreatedAt: at,
	}
	select {
	case o.pending <- rec:
	default:
		log.Warn().Str("room_id", roomID.String()).Msg("archive queue full, dropping record")
	}
}

// RecordPick implements room.ArchiveSink.
func (o *Outbox) RecordPick(roomID uuid.UUID, rec room.PickRecord) {
	o.enqueue(roomID, KindPick, rec, rec.PickedAt)
}

// RoomCompleted implements room.ArchiveSink.
func (o *Outbox) RoomCompleted(roomID uuid.UUID, completedAt time.Time) {
	o.enqueue(roomID, KindCompleted, map[string]any{"completed_at": completedAt}, completedAt)
}

// FetchUnsent returns the oldest unsent rows for the relay worker.
func (o *Outbox) FetchUnsent(ctx context.Context, limit int) ([]Record, error) {
	const q = `
SELECT id, room_id, kind, payload, created_at
FROM draft_archive_outbox
WHERE sent_at IS NULL
ORDER BY created_at
LIMIT $1`
	rows, err := o.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unsent records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.RoomID, &rec.Kind, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkSent stamps a record after the bus accepted it.
func (o *Outbox) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE draft_archive_outbox SET sent_at = $2 WHERE id = $1`
	if _, err := o.db.ExecContext(ctx, q, id, at); err != nil {
		return fmt.Errorf("mark record sent: %w", err)
	}
	return nil
}

// PendingCount reports unsent rows for health checks.
func (o *Outbox) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM draft_archive_outbox WHERE sent_at IS NULL`).Scan(&count)
	return count, err
}
