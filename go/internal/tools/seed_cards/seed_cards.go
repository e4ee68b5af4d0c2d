package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/twinsuns/draftdeck/go/internal/dbconfig"
)

// SeedCard mirrors the card set JSON exported from the companion app.
type SeedCard struct {
	ID       string `json:"id"`
	SetCode  string `json:"set_code"`
	Name     string `json:"name"`
	IsLeader bool   `json:"is_leader"`
	IsBase   bool   `json:"is_base"`
}

func main() {
	path := "go/internal/assets/cards.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var seedCards []SeedCard
	if err := json.Unmarshal(data, &seedCards); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	var (
		total    = len(seedCards)
		inserted int
		skipped  int
		errs     int
	)

	for _, c := range seedCards {
		cmdTag, err := pool.Exec(context.Background(), `
            INSERT INTO cards (id, set_code, name, is_leader, is_base)
            VALUES ($1,$2,$3,$4,$5)
            ON CONFLICT (id) DO NOTHING
        `,
			c.ID, c.SetCode, c.Name, c.IsLeader, c.IsBase,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting card %s: %v\n", c.ID, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	fmt.Printf(
		"Cards seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}
