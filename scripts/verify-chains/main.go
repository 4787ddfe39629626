// Command verify-chains audits the event hash chains of every prompt in the
// database. It re-derives each prompt's chain from the stored events and
// reports the first broken sequence per prompt, if any.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run ./scripts/verify-chains
//
// Read-only and safe to run against a live database. Exits non-zero when any
// chain is broken so it can gate deploys or run from cron.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/reprise-ai/reprise/internal/integrity"
	"github.com/reprise-ai/reprise/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	db, err := storage.New(ctx, dbURL, logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	prompts, err := db.ListPrompts(ctx, 1_000_000)
	if err != nil {
		return fmt.Errorf("list prompts: %w", err)
	}

	var checked, broken int
	for _, p := range prompts {
		events, err := db.ListEvents(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("list events for %s: %w", p.ID, err)
		}
		checked++

		brokenSeq, headHash := integrity.VerifyChain(events)
		if brokenSeq != nil {
			broken++
			fmt.Printf("BROKEN  %s  %q  first bad seq %d of %d events\n",
				p.ID, p.Name, *brokenSeq, len(events))
			continue
		}
		fmt.Printf("ok      %s  %q  %d events  head %.12s\n", p.ID, p.Name, len(events), headHash)
	}

	fmt.Printf("checked %d prompts, %d broken chains\n", checked, broken)
	if broken > 0 {
		os.Exit(1)
	}
	return nil
}
