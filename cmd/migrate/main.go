package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/cellsia/S-Show-Region-Stats/internal/adapters/postgres"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/config"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/logging"
)

var upFiles = []string{
	"migrations/001_analysis_runs.sql",
	"migrations/002_annotation_stats.sql",
}

const downFile = "migrations/down.sql"

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}

	cfg, err := config.Load("regionstats-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN(), 1)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		err = apply(ctx, db, upFiles)
	case "down":
		err = apply(ctx, db, []string{downFile})
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
	if err != nil {
		db.Close()
		log.Fatal(err)
	}
	slog.Info("migrations applied", "direction", os.Args[1])
}

func apply(ctx context.Context, db *postgres.DB, files []string) error {
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		if _, err := db.Pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec %s: %w", f, err)
		}
		slog.Info("migration ok", "file", f)
	}
	return nil
}
