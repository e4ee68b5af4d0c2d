package archive

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// WorkerConfig bounds the relay worker's polling.
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
	}
}

// Worker relays staged outbox records to the publisher. Delivery is
// at-least-once: a record is only marked sent after the bus accepted it.
type Worker struct {
	outbox    *Outbox
	publisher Publisher
	config    WorkerConfig
	clock     clockwork.Clock
}

func NewWorker(outbox *Outbox, publisher Publisher, cfg WorkerConfig, clock clockwork.Clock) *Worker {
	return &Worker{
		outbox:    outbox,
		publisher: publisher,
		config:    cfg,
		clock:     clock,
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	log.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int("batch_size", w.config.BatchSize).
		Msg("archive relay worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("archive relay worker stopped")
			return
		case <-ticker.Chan():
			w.relayBatch(ctx)
		}
	}
}

func (w *Worker) relayBatch(ctx context.Context) {
	records, err := w.outbox.FetchUnsent(ctx, w.config.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch unsent archive records")
		return
	}

	for _, rec := range records {
		if err := w.publisher.Publish(ctx, rec); err != nil {
			// Leave the record unsent; the next poll retries it.
			log.Error().Err(err).
				Str("record_id", rec.ID.String()).
				Str("room_id", rec.RoomID.String()).
				Msg("failed to publish archive record")
			return
		}
		if err := w.outbox.MarkSent(ctx, rec.ID, w.clock.Now()); err != nil {
			log.Error().Err(err).
				Str("record_id", rec.ID.String()).
				Msg("failed to mark archive record sent")
			return
		}
	}

	if len(records) > 0 {
		log.Debug().Int("relayed", len(records)).Msg("archive batch relayed")
	}
}
