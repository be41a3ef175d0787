package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/kirillkom/pdf-qa/internal/config"
	"github.com/kirillkom/pdf-qa/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/pdf-qa/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.New(os.Stdout, "sweep", cfg.LogLevel, cfg.LogFormat))

	maxAge := flag.Duration("max-age", time.Duration(cfg.SweepMaxAgeHours)*time.Hour, "remove sessions not modified within this window")
	dryRun := flag.Bool("dry-run", false, "list sessions that would be removed without deleting them")
	storagePath := flag.String("storage", cfg.StoragePath, "session storage root")
	flag.Parse()

	if *maxAge <= 0 {
		slog.Error("sweep_invalid_max_age", "max_age", maxAge.String())
		os.Exit(2)
	}

	storage, err := localfs.New(*storagePath)
	if err != nil {
		slog.Error("sweep_storage_failed", "error", err)
		os.Exit(1)
	}

	removed, err := storage.Sweep(context.Background(), *maxAge, *dryRun)
	for _, id := range removed {
		slog.Info("session_swept", "upload_id", id, "dry_run", *dryRun)
	}
	if err != nil {
		slog.Error("sweep_failed", "error", err, "swept", len(removed))
		os.Exit(1)
	}
	slog.Info("sweep_completed", "swept", len(removed), "max_age", maxAge.String(), "dry_run", *dryRun)
}
