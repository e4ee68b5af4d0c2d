package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftdeck/go/internal/cards"
	"github.com/twinsuns/draftdeck/go/internal/room"
)

var (
	// ErrCapacity reports the process-wide concurrent-room ceiling was hit.
	// Callers retry with backoff; the registry never retries.
	ErrCapacity = errors.New("room capacity exceeded")

	// ErrNotFound reports an unknown (or already aborted) room id.
	ErrNotFound = errors.New("room not found")
)

// Config bounds the registry's room table and its eviction sweep.
type Config struct {
	MaxRooms      int
	SweepInterval time.Duration
	Retention     time.Duration // COMPLETE/ABORTED rooms linger this long
	FillTimeout   time.Duration // WAITING rooms that never filled
}

func DefaultConfig() Config {
	return Config{
		MaxRooms:      200,
		SweepInterval: 30 * time.Second,
		Retention:     5 * time.Minute,
		FillTimeout:   30 * time.Minute,
	}
}

type entry struct {
	room   *room.Room
	cancel context.CancelFunc
}

// Registry is the process-wide table of live rooms: the one structure
// touched by multiple goroutines, guarded by a narrow mutex. Room internals
// never need cross-worker locking; each room has its own single consumer.
type Registry struct {
	cfg         Config
	clock       clockwork.Clock
	catalog     cards.Catalog
	broadcaster room.Broadcaster
	archive     room.ArchiveSink

	mu    sync.RWMutex
	rooms map[uuid.UUID]*entry
}

func New(cfg Config, catalog cards.Catalog, b room.Broadcaster, sink room.ArchiveSink, clock clockwork.Clock) *Registry {
	return &Registry{
		cfg:         cfg,
		clock:       clock,
		catalog:     catalog,
		broadcaster: b,
		archive:     sink,
		rooms:       make(map[uuid.UUID]*entry),
	}
}

// CreateRoom validates the deal shape against the set's pool, creates a
// WAITING room and starts its worker. Fails with ErrCapacity at the ceiling
// and wraps cards.ErrConfiguration for impossible shapes; both are surfaced
// to the creator only.
func (reg *Registry) CreateRoom(ctx context.Context, cfg room.Config) (uuid.UUID, error) {
	pool, err := reg.catalog.Pool(ctx, cfg.SetCode)
	if err != nil {
		return uuid.Nil, fmt.Errorf("load card pool: %w", err)
	}

	// Dealing is deterministic and side-effect free, so a dry run is the
	// exact shape validation the room will later rely on.
	shape := cards.DealShape{
		SeatCount:    cfg.SeatCount,
		PacksPerSeat: cfg.PacksPerSeat,
		PackSize:     cfg.PackSize,
	}
	if _, err := cards.DealPacks(pool, shape, cfg.Seed); err != nil {
		return uuid.Nil, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if len(reg.rooms) >= reg.cfg.MaxRooms {
		return uuid.Nil, fmt.Errorf("%w: %d rooms live", ErrCapacity, len(reg.rooms))
	}

	id := uuid.New()
	rm := room.New(id, cfg, pool, reg.clock, reg.broadcaster, reg.archive)
	runCtx, cancel := context.WithCancel(context.Background())
	reg.rooms[id] = &entry{room: rm, cancel: cancel}
	go rm.Run(runCtx)

	log.Info().
		Str("room_id", id.String()).
		Str("set_code", cfg.SetCode).
		Int("seats", cfg.SeatCount).
		Int("rooms_live", len(reg.rooms)).
		Msg("room created")

	return id, nil
}

// GetRoom resolves a live room for routing. Aborted rooms are invisible
// here even while retained for the sweep, so submits to them fail with
// ErrNotFound.
func (reg *Registry) GetRoom(id uuid.UUID) (*room.Room, error) {
	reg.mu.RLock()
	e, ok := reg.rooms[id]
	reg.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if e.room.Summary().Phase == room.PhaseAborted {
		return nil, ErrNotFound
	}
	return e.room, nil
}

// ListActive returns read-only summaries for health reporting.
func (reg *Registry) ListActive() []room.Summary {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]room.Summary, 0, len(reg.rooms))
	for _, e := range reg.rooms {
		out = append(out, e.room.Summary())
	}
	return out
}

// RunSweeper evicts finished rooms past retention and WAITING rooms that
// never filled. Runs until ctx is cancelled.
func (reg *Registry) RunSweeper(ctx context.Context) {
	ticker := reg.clock.NewTicker(reg.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			reg.Sweep()
		}
	}
}

// Sweep runs one eviction pass. Exposed for tests and shutdown.
func (reg *Registry) Sweep() {
	now := reg.clock.Now()

	reg.mu.Lock()
	var evict []*entry
	for id, e := range reg.rooms {
		sum := e.room.Summary()
		gone := false
		switch sum.Phase {
		case room.PhaseComplete, room.PhaseAborted:
			gone = now.Sub(sum.LastActivity) >= reg.cfg.Retention
		case room.PhaseWaiting:
			gone = now.Sub(sum.CreatedAt) >= reg.cfg.FillTimeout
		}
		if gone {
			delete(reg.rooms, id)
			evict = append(evict, e)
			log.Info().
				Str("room_id", id.String()).
				Str("phase", string(sum.Phase)).
				Msg("room evicted")
		}
	}
	reg.mu.Unlock()

	for _, e := range evict {
		e.room.Close()
		e.cancel()
	}
}

// Shutdown aborts and stops every live room. Part of process teardown; the
// registry is unusable afterwards.
func (reg *Registry) Shutdown() {
	reg.mu.Lock()
	entries := make([]*entry, 0, len(reg.rooms))
	for id, e := range reg.rooms {
		entries = append(entries, e)
		delete(reg.rooms, id)
	}
	reg.mu.Unlock()

	// The abort queues behind any commands already in flight, so subscribers
	// see the broadcast before the worker stops.
	for _, e := range entries {
		_ = e.room.SubmitAbort("server shutting down")
	}
	time.Sleep(100 * time.Millisecond)
	for _, e := range entries {
		e.room.Close()
		e.cancel()
	}
	log.Info().Int("rooms", len(entries)).Msg("registry shut down")
}
