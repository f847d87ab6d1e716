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

	"github.com/winstonk6/case-study-bike-share/internal/adapters/http"
	natsadapter "github.com/winstonk6/case-study-bike-share/internal/adapters/nats"
	"github.com/winstonk6/case-study-bike-share/internal/adapters/postgres"
	"github.com/winstonk6/case-study-bike-share/internal/adapters/valkey"
	"github.com/winstonk6/case-study-bike-share/internal/core/ports"
	"github.com/winstonk6/case-study-bike-share/internal/core/usecases"
	"github.com/winstonk6/case-study-bike-share/internal/pkg/config"
	"github.com/winstonk6/case-study-bike-share/internal/pkg/logging"
	"github.com/winstonk6/case-study-bike-share/internal/pkg/metrics"
	"github.com/winstonk6/case-study-bike-share/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("bikeshare-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json")

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
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache. The interface variable stays nil when valkey is down so the
	// services skip caching instead of calling through a typed-nil pointer.
	var cacheSvc ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, responses will not be cached", "error", err)
	} else {
		cacheSvc = cache
		defer cache.Close()
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Repos
	stationRepo := postgres.NewStationRepo(db)
	rideRepo := postgres.NewRideRepo(db)
	statsRepo := postgres.NewStatsRepo(db)
	runRepo := postgres.NewIngestRunRepo(db)

	// Use cases
	stationSvc := usecases.NewStationService(stationRepo, rideRepo, cacheSvc)
	analyticsSvc := usecases.NewAnalyticsService(statsRepo, cacheSvc)

	deps := &http.Dependencies{
		Stations:  stationSvc,
		Analytics: analyticsSvc,
		Rides:     rideRepo,
		Runs:      runRepo,
		NATS:      natsConn,
		DB:        db,
		Cache:     cache,
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Bike Share Analytics API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Export pool stats alongside the request metrics
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.UpdateDBPoolMetrics(db.Pool.Stat())
			case <-ctx.Done():
				return
			}
		}
	}()

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
