package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/twinsuns/draftdeck/go/internal/cards"
)

// CatalogClient reads card pools from the companion app's HTTP API instead
// of its database. Used when the coordinator runs without direct table
// access; it satisfies cards.Catalog the same way the Postgres catalog does.
type CatalogClient struct {
	*BaseClient
}

func NewCatalogClient(baseURL string) *CatalogClient {
	return &CatalogClient{BaseClient: NewBaseClient(baseURL)}
}

type catalogCard struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsLeader bool   `json:"is_leader"`
	IsBase   bool   `json:"is_base"`
}

// Pool fetches every card in the set. A 404 maps to cards.ErrSetNotFound so
// the registry reports unknown sets to room creators the same way regardless
// of which catalog backs it.
func (c *CatalogClient) Pool(ctx context.Context, setCode string) ([]cards.Card, error) {
	endpoint := "/api/card-sets/" + url.PathEscape(setCode) + "/cards"
	status, body, err := c.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch card pool: %w", err)
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", cards.ErrSetNotFound, setCode)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("card API returned status %d: %s", status, string(body))
	}

	var raw []catalogCard
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode card pool: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s", cards.ErrSetNotFound, setCode)
	}

	pool := make([]cards.Card, len(raw))
	for i, c := range raw {
		pool[i] = cards.Card{ID: c.ID, Name: c.Name, IsLeader: c.IsLeader, IsBase: c.IsBase}
	}
	return pool, nil
}
