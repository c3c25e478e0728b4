// Command backfill imports leads from the legacy database into the CRM.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/estate-crm/internal/config"
	"github.com/wolfman30/estate-crm/internal/events"
	"github.com/wolfman30/estate-crm/internal/leads"
	"github.com/wolfman30/estate-crm/internal/legacy"
	"github.com/wolfman30/estate-crm/internal/store"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

func main() {
	table := flag.String("table", "", "legacy table to read (default leads)")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall run timeout")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.DatabaseURL == "" || cfg.LegacyDatabaseURL == "" {
		logger.Error("backfill requires DATABASE_URL and LEGACY_DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	legacyDB, err := legacy.Open(ctx, cfg.LegacyDatabaseURL)
	if err != nil {
		logger.Error("failed to open legacy database", "error", err)
		os.Exit(1)
	}
	defer legacyDB.Close()

	reader := legacy.NewReader(legacyDB, logger)
	if *table != "" {
		reader.WithTable(*table)
	}

	registry := store.NewPostgres(pool)
	backfiller := leads.NewBackfiller(registry.Leads, registry.Pipelines, reader, logger).
		WithPublisher(events.NewOutboxStore(pool))

	report, err := backfiller.Run(ctx)
	if err != nil {
		logger.Error("backfill failed", "error", err)
		os.Exit(1)
	}
	logger.Info("backfill complete",
		"total", report.Total,
		"created", report.Created,
		"updated", report.Updated,
		"matched", report.Matched,
		"skipped", report.Skipped,
	)
	_ = json.NewEncoder(os.Stdout).Encode(report)
}
