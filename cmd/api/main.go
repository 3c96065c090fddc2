package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/cellsia/S-Show-Region-Stats/internal/adapters/cytomine"
	"github.com/cellsia/S-Show-Region-Stats/internal/adapters/http"
	natsadapter "github.com/cellsia/S-Show-Region-Stats/internal/adapters/nats"
	"github.com/cellsia/S-Show-Region-Stats/internal/adapters/postgres"
	"github.com/cellsia/S-Show-Region-Stats/internal/adapters/valkey"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/ports"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/usecases"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/config"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/logging"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/metrics"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("regionstats-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go reportPoolStats(ctx, db)

	// Cache
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	// NATS
	var publisher ports.EventPublisher
	nc, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, analyses cannot be queued", "error", err)
	} else {
		defer nc.Close()
		publisher = nc
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
	}

	// Platform
	client, err := cytomine.NewClient(cfg.Cytomine.Host, cfg.Cytomine.PublicKey, cfg.Cytomine.PrivateKey, cfg.Cytomine.RequestTimeout())
	if err != nil {
		log.Fatalf("cytomine: %v", err)
	}
	annotationRepo := cytomine.NewAnnotationRepo(client)
	jobRepo := cytomine.NewJobRepo(client)

	// Use cases
	classification, err := usecases.NewClassificationService(cfg.Analysis.ClassifierRule)
	if err != nil {
		log.Fatalf("classifier: %v", err)
	}
	annotationSvc := usecases.NewAnnotationService(annotationRepo)
	analysisSvc := usecases.NewAnalysisService(
		annotationSvc,
		usecases.NewResultService(jobRepo, cacheSvc, cfg.Analysis.CacheTTL),
		usecases.NewTermService(cytomine.NewTermRepo(client)),
		usecases.NewPropertyService(cytomine.NewPropertyRepo(client)),
		classification,
		jobRepo,
		postgres.NewAnalysisRepo(db),
		publisher,
	)

	deps := &http.Dependencies{
		Classification: classification,
		Annotations:    annotationSvc,
		Analyses:       analysisSvc,
		Defaults:       cfg.Analysis,
		NATS:           natsConn,
		DB:             db,
		Cache:          cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    8 * 1024 * 1024, // detection files can be large
		AppName:      "Region Stats API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, If-None-Match",
		ExposeHeaders:    "ETag, Link, Location, X-Request-ID",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "rule", classification.Rule())
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// reportPoolStats refreshes the db pool gauges until ctx ends.
func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		metrics.UpdateDBPoolMetrics(db.Stat())
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
