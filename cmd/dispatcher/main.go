package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	natsadapter "github.com/cellsia/S-Show-Region-Stats/internal/adapters/nats"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/domain"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/config"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/logging"
	"github.com/cellsia/S-Show-Region-Stats/internal/workflows"
)

// The dispatcher turns queued analysis requests into workflow executions.
func main() {
	cfg, err := config.Load("regionstats-dispatcher")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer sub.Close()

	start := func(ctx context.Context, req *domain.AnalysisRequest) error {
		opts := client.StartWorkflowOptions{
			ID:        workflows.WorkflowID(req.RunID),
			TaskQueue: cfg.Temporal.TaskQueue,
		}
		run, err := c.ExecuteWorkflow(ctx, opts, workflows.AnalysisWorkflowName, workflows.AnalysisInput{Request: *req})
		if err != nil {
			var started *serviceerror.WorkflowExecutionAlreadyStarted
			if errors.As(err, &started) {
				slog.Info("analysis already started", "run", req.RunID)
				return nil
			}
			return fmt.Errorf("start workflow: %w", err)
		}
		slog.Info("analysis started", "run", req.RunID, "workflow", run.GetID(), "execution", run.GetRunID())
		return nil
	}

	if err := sub.SubscribeAnalysisRequests(ctx, start); err != nil {
		log.Fatalf("subscribe: %v", err)
	}
	slog.Info("dispatcher started", "subject", natsadapter.SubjectRequests, "queue", cfg.Temporal.TaskQueue)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("received signal, shutting down dispatcher", "signal", sig.String())
}
