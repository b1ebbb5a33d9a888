// Command migrate_snapshots creates the room snapshot table and can load
// snapshots exported as a JSON array of documents.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/mcdev12/gamemate/go/internal/config"
	"github.com/mcdev12/gamemate/go/internal/remote"
)

func main() {
	seed := flag.String("seed", "", "JSON file of snapshot documents to insert")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	for i, stmt := range remote.PostgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			fmt.Fprintf(os.Stderr, "schema statement %d: %v\n", i+1, err)
			os.Exit(1)
		}
	}
	fmt.Printf("schema ready (%d statements)\n", len(remote.PostgresSchema))

	if *seed == "" {
		return
	}
	if err := seedSnapshots(ctx, pool, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func seedSnapshots(ctx context.Context, pool *pgxpool.Pool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read JSON: %w", err)
	}
	var docs []remote.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("unmarshal JSON: %w", err)
	}

	var inserted, errs int
	for _, d := range docs {
		createdAt, err := time.Parse(remote.CreatedAtLayout, d.CreatedAt)
		if err != nil {
			createdAt = time.UnixMilli(d.Timestamp).UTC()
		}
		_, err = pool.Exec(ctx, `
			INSERT INTO room_snapshots (
				id, game_id, players, player_ids, scores, max_score,
				total_rounds, player_totals, created_at, timestamp_ms
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, uuid.New(), d.GameID, d.Players, d.PlayerIDs, d.Scores, d.MaxScore,
			d.TotalRounds, d.PlayerTotals, createdAt, d.Timestamp)
		if err != nil {
			fmt.Fprintf(os.Stderr, "insert %s@%d: %v\n", d.GameID, d.Timestamp, err)
			errs++
			continue
		}
		inserted++
	}

	fmt.Printf("snapshots: total=%d inserted=%d errors=%d\n", len(docs), inserted, errs)
	return nil
}
