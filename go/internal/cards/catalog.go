package cards

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Catalog is the read-only card data source the coordinator consumes. The
// catalog is owned and refreshed by the companion app's ingestion layer;
// rooms only ever read from it.
type Catalog interface {
	// Pool returns every card printed in the given set, in catalog order.
	Pool(ctx context.Context, setCode string) ([]Card, error)
}

// PostgresCatalog reads card pools from the companion app's card tables.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

const poolQuery = `
SELECT id, name, is_leader, is_base
FROM cards
WHERE set_code = $1
ORDER BY id`

func (c *PostgresCatalog) Pool(ctx context.Context, setCode string) ([]Card, error) {
	rows, err := c.pool.Query(ctx, poolQuery, setCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query card pool: %w", err)
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		var card Card
		if err := rows.Scan(&card.ID, &card.Name, &card.IsLeader, &card.IsBase); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read card pool: %w", err)
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSetNotFound, setCode)
	}

	log.Debug().Str("set_code", setCode).Int("cards", len(cards)).Msg("loaded card pool")
	return cards, nil
}

// StaticCatalog serves card pools from memory. Used in tests and for
// fixture-backed local runs without a database.
type StaticCatalog struct {
	sets map[string][]Card
}

func NewStaticCatalog(sets map[string][]Card) *StaticCatalog {
	return &StaticCatalog{sets: sets}
}

func (c *StaticCatalog) Pool(_ context.Context, setCode string) ([]Card, error) {
	pool, ok := c.sets[setCode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSetNotFound, setCode)
	}
	out := make([]Card, len(pool))
	copy(out, pool)
	return out, nil
}
