package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftdeck/go/clients"
	"github.com/twinsuns/draftdeck/go/internal/archive"
	"github.com/twinsuns/draftdeck/go/internal/cards"
	"github.com/twinsuns/draftdeck/go/internal/gateway"
	"github.com/twinsuns/draftdeck/go/internal/registry"
	"github.com/twinsuns/draftdeck/go/internal/room"
)

// Services holds every wired component plus the background loops main runs.
type Services struct {
	Registry *registry.Registry
	Gateway  *gateway.Service
	Manager  *gateway.ConnectionManager

	catalogPool *pgxpool.Pool
	archiveDB   *sql.DB
	outbox      *archive.Outbox
	publisher   *archive.JetStreamPublisher
	worker      *archive.Worker
	background  []func(context.Context)
}

func setupServices(ctx context.Context, config *Config) (*Services, error) {
	clock := clockwork.NewRealClock()
	services := &Services{}

	// The catalog reads the companion app's card tables directly unless a
	// card API endpoint is configured, in which case it goes over HTTP.
	var catalog cards.Catalog
	if apiURL := getEnv("CARDS_API_URL", ""); apiURL != "" {
		catalog = clients.NewCatalogClient(apiURL)
		log.Info().Str("url", apiURL).Msg("using HTTP card catalog")
	} else {
		pool, err := setupCatalogPool(ctx)
		if err != nil {
			return nil, fmt.Errorf("setup catalog: %w", err)
		}
		services.catalogPool = pool
		catalog = cards.NewPostgresCatalog(pool)
	}

	// Archive: picks staged in the outbox table, relayed to JetStream. An
	// unconfigured archive degrades to discard, not to failure.
	var sink room.ArchiveSink = archive.Noop{}
	var archiveHealth gateway.ArchiveHealth
	if config.Archive.Enabled {
		archiveDB, err := setupArchiveDB(ctx)
		if err != nil {
			return nil, fmt.Errorf("setup archive db: %w", err)
		}
		services.archiveDB = archiveDB
		services.outbox = archive.NewOutbox(archiveDB)

		jsConfig := archive.DefaultJetStreamConfig()
		if config.Archive.NATSURL != "" {
			jsConfig.URL = config.Archive.NATSURL
		}
		jsConfig.URL = getEnv("NATS_URL", jsConfig.URL)
		publisher, err := archive.NewJetStreamPublisher(jsConfig)
		if err != nil {
			return nil, fmt.Errorf("setup archive publisher: %w", err)
		}
		services.publisher = publisher
		services.worker = archive.NewWorker(services.outbox, services.publisher, archive.DefaultWorkerConfig(), clock)

		sink = services.outbox
		archiveHealth = services.publisher
		services.background = append(services.background, services.outbox.Run, services.worker.Run)
	} else {
		log.Warn().Msg("archive disabled, pick history will not be retained")
	}

	manager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())

	regConfig := registry.Config{
		MaxRooms:      config.Rooms.MaxRooms,
		SweepInterval: time.Duration(config.Rooms.SweepSec) * time.Second,
		Retention:     time.Duration(config.Rooms.RetentionSec) * time.Second,
		FillTimeout:   time.Duration(config.Rooms.FillTimeoutSec) * time.Second,
	}
	reg := registry.New(regConfig, catalog, manager, sink, clock)

	gwConfig := gateway.Config{
		ConnectionConfig: gateway.DefaultConnectionConfig(),
		RoomDefaults: gateway.RoomDefaults{
			SeatCount:    config.Rooms.SeatCount,
			MinSeats:     config.Rooms.MinSeats,
			PacksPerSeat: config.Rooms.PacksPerSeat,
			PackSize:     config.Rooms.PackSize,
			PickTimeout:  config.pickTimeout(),
			GracePeriod:  config.gracePeriod(),
			RoundBreak:   config.roundBreak(),
		},
	}

	services.Registry = reg
	services.Manager = manager
	services.Gateway = gateway.NewService(gwConfig, reg, manager, archiveHealth)
	services.background = append(services.background, manager.Start, reg.RunSweeper)

	return services, nil
}

// StartBackground launches every background loop.
func (s *Services) StartBackground(ctx context.Context) {
	for _, run := range s.background {
		go run(ctx)
	}
}

// Shutdown aborts live rooms and releases collaborator connections.
func (s *Services) Shutdown() {
	s.Registry.Shutdown()
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.archiveDB != nil {
		s.archiveDB.Close()
	}
	if s.catalogPool != nil {
		s.catalogPool.Close()
	}
}
