package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftdeck/go/internal/dbconfig"
)

// setupCatalogPool opens the pgx pool the card catalog reads from.
func setupCatalogPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping catalog database: %w", err)
	}
	log.Info().Str("db", cfg.Database).Msg("catalog database connected")
	return pool, nil
}

// setupArchiveDB opens the database/sql handle the archive outbox writes
// through.
func setupArchiveDB(ctx context.Context) (*sql.DB, error) {
	database, err := sql.Open("postgres", dbconfig.NewConfigFromEnv().DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}
	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping archive database: %w", err)
	}
	log.Info().Msg("archive database connected")
	return database, nil
}
