package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/winstonk6/case-study-bike-share/internal/adapters/nats"
	"github.com/winstonk6/case-study-bike-share/internal/adapters/postgres"
	"github.com/winstonk6/case-study-bike-share/internal/adapters/valkey"
	"github.com/winstonk6/case-study-bike-share/internal/core/domain"
	"github.com/winstonk6/case-study-bike-share/internal/core/ports"
	"github.com/winstonk6/case-study-bike-share/internal/core/usecases"
	"github.com/winstonk6/case-study-bike-share/internal/export"
	"github.com/winstonk6/case-study-bike-share/internal/pkg/config"
	"github.com/winstonk6/case-study-bike-share/internal/pkg/logging"
	"github.com/winstonk6/case-study-bike-share/internal/workflows"
)

func main() {
	cfg, err := config.Load("bikeshare-worker")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache is optional; without it the services read straight from Postgres.
	var cacheSvc ports.CacheService
	if cache, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable, refresh runs uncached", "error", err)
	} else {
		cacheSvc = cache
		defer cache.Close()
	}

	// Publisher is optional; without it completed refreshes are not announced.
	var publisher ports.EventPublisher
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable, refresh announcements disabled", "error", err)
	} else {
		publisher = pub
		defer pub.Close()
	}

	// Repos & services
	stationRepo := postgres.NewStationRepo(db)
	rideRepo := postgres.NewRideRepo(db)
	statsRepo := postgres.NewStatsRepo(db)

	stationSvc := usecases.NewStationService(stationRepo, rideRepo, cacheSvc)
	analyticsSvc := usecases.NewAnalyticsService(statsRepo, cacheSvc)
	exporter := export.NewWriter(cfg.Analytics.ArtifactDir)

	// Connect to Temporal
	tc, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer tc.Close()

	w := worker.New(tc, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.RefreshWorkflow)
	w.RegisterActivity(&workflows.RefreshActivities{
		Stations:  stationSvc,
		Analytics: analyticsSvc,
		Exporter:  exporter,
		Publisher: publisher,
	})

	// Each completed ingest run triggers one refresh workflow.
	if sub, err := natsadapter.NewSubscriber(cfg.NATS.URL); err != nil {
		slog.Warn("nats subscribe unavailable, ingest-triggered refresh disabled", "error", err)
	} else {
		defer sub.Close()
		if err := sub.SubscribeIngestCompleted(ctx, startRefresh(tc, cfg.Temporal.TaskQueue)); err != nil {
			slog.Warn("subscribe ingest events", "error", err)
		}
	}

	// Prometheus scrape endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("metrics listener starting", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Warn("metrics listener", "error", err)
		}
	}()

	slog.Info("refresh worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

// startRefresh returns the ingest-completed handler. The workflow ID is
// derived from the ingest run ID, so a redelivered event attaches to the
// refresh that is already running instead of starting a second one.
func startRefresh(tc client.Client, taskQueue string) func(ctx context.Context, run *domain.IngestRun) error {
	return func(ctx context.Context, run *domain.IngestRun) error {
		opts := client.StartWorkflowOptions{
			ID:        fmt.Sprintf("refresh-%s", run.ID),
			TaskQueue: taskQueue,
		}
		we, err := tc.ExecuteWorkflow(ctx, opts, workflows.RefreshWorkflow, workflows.RefreshInput{Source: run.Source})
		if err != nil {
			var started *serviceerror.WorkflowExecutionAlreadyStarted
			if errors.As(err, &started) {
				slog.Info("refresh already running", "ingest_run", run.ID)
				return nil
			}
			return fmt.Errorf("start refresh workflow: %w", err)
		}
		slog.Info("refresh workflow started",
			"workflow_id", we.GetID(),
			"ingest_run", run.ID,
			"source", run.Source,
		)
		return nil
	}
}
