package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"github.com/cellsia/S-Show-Region-Stats/internal/adapters/cytomine"
	natsadapter "github.com/cellsia/S-Show-Region-Stats/internal/adapters/nats"
	"github.com/cellsia/S-Show-Region-Stats/internal/adapters/postgres"
	"github.com/cellsia/S-Show-Region-Stats/internal/adapters/valkey"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/ports"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/usecases"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/config"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/logging"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/telemetry"
	"github.com/cellsia/S-Show-Region-Stats/internal/workflows"
)

func main() {
	cfg, err := config.Load("regionstats-analyzer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var cacheSvc ports.CacheService
	if cache, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable, detection files are not cached", "error", err)
	} else {
		defer cache.Close()
		cacheSvc = cache
	}

	var publisher ports.EventPublisher
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable, progress is not broadcast", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	platform, err := cytomine.NewClient(cfg.Cytomine.Host, cfg.Cytomine.PublicKey, cfg.Cytomine.PrivateKey, cfg.Cytomine.RequestTimeout())
	if err != nil {
		log.Fatalf("cytomine: %v", err)
	}
	jobRepo := cytomine.NewJobRepo(platform)

	classification, err := usecases.NewClassificationService(cfg.Analysis.ClassifierRule)
	if err != nil {
		log.Fatalf("classifier: %v", err)
	}
	annotationSvc := usecases.NewAnnotationService(cytomine.NewAnnotationRepo(platform))
	termSvc := usecases.NewTermService(cytomine.NewTermRepo(platform))
	analysisSvc := usecases.NewAnalysisService(
		annotationSvc,
		usecases.NewResultService(jobRepo, cacheSvc, cfg.Analysis.CacheTTL),
		termSvc,
		usecases.NewPropertyService(cytomine.NewPropertyRepo(platform)),
		classification,
		jobRepo,
		postgres.NewAnalysisRepo(db),
		publisher,
	)

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	w.RegisterWorkflow(workflows.AnalysisWorkflow)
	w.RegisterActivity(&workflows.AnalysisActivities{
		Analyses:    analysisSvc,
		Terms:       termSvc,
		Annotations: annotationSvc,
	})

	slog.Info("analyzer worker started", "queue", cfg.Temporal.TaskQueue, "rule", classification.Rule())
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
