package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/winstonk6/case-study-bike-share/internal/core/domain"
	"github.com/winstonk6/case-study-bike-share/internal/core/ports"
	"github.com/winstonk6/case-study-bike-share/internal/core/usecases"
	"github.com/winstonk6/case-study-bike-share/internal/export"
	"github.com/winstonk6/case-study-bike-share/internal/pkg/metrics"
)

// catalogPageSize is how many stations ExportArtifacts loads per query.
const catalogPageSize = 200

// RefreshActivities holds the activity implementations for the refresh workflow.
type RefreshActivities struct {
	Stations  *usecases.StationService
	Analytics *usecases.AnalyticsService
	Exporter  *export.Writer
	Publisher ports.EventPublisher
}

// ResolveStations rebuilds the canonical station catalog and returns its size.
func (a *RefreshActivities) ResolveStations(ctx context.Context) (int, error) {
	n, err := a.Stations.ResolveAndStore(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolve stations: %w", err)
	}
	metrics.ResolverRuns.Inc()
	metrics.StationsResolved.Set(float64(n))
	return n, nil
}

// RefreshAggregates rebuilds the materialized views and invalidates the stats cache.
func (a *RefreshActivities) RefreshAggregates(ctx context.Context) error {
	if err := a.Analytics.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh aggregates: %w", err)
	}
	return nil
}

// ExportArtifacts writes the CSV extracts and manifest, returning the directory.
func (a *RefreshActivities) ExportArtifacts(ctx context.Context) (string, error) {
	arts := &export.Artifacts{}

	// Page through the full catalog.
	offset := 0
	for {
		page, total, err := a.Stations.List(ctx, offset, catalogPageSize)
		if err != nil {
			return "", fmt.Errorf("load station catalog: %w", err)
		}
		arts.Stations = append(arts.Stations, page...)
		offset += len(page)
		if len(page) == 0 || int64(offset) >= total {
			break
		}
	}

	var err error
	if arts.Popularity, err = a.Stations.Popularity(ctx, 100); err != nil {
		return "", fmt.Errorf("load popularity: %w", err)
	}
	if arts.Summary, err = a.Analytics.Summary(ctx); err != nil {
		return "", fmt.Errorf("load rider summary: %w", err)
	}
	if arts.Weekday, err = a.Analytics.Weekday(ctx); err != nil {
		return "", fmt.Errorf("load weekday stats: %w", err)
	}
	if arts.Monthly, err = a.Analytics.Monthly(ctx); err != nil {
		return "", fmt.Errorf("load monthly stats: %w", err)
	}
	if arts.Hourly, err = a.Analytics.Hourly(ctx); err != nil {
		return "", fmt.Errorf("load hourly stats: %w", err)
	}

	dir, err := a.Exporter.Write(arts)
	if err != nil {
		return "", fmt.Errorf("write artifacts: %w", err)
	}
	return dir, nil
}

// PublishRefreshed announces the refreshed dataset on the event bus.
func (a *RefreshActivities) PublishRefreshed(ctx context.Context, res RefreshResult) error {
	metrics.RefreshDuration.Observe(res.ElapsedSeconds)

	if a.Publisher == nil {
		slog.Warn("no event publisher configured, skipping refresh announcement")
		return nil
	}

	event := &domain.RefreshEvent{
		WorkflowID:  res.WorkflowID,
		Stations:    res.Stations,
		ArtifactDir: res.ArtifactDir,
		CompletedAt: time.Now().UTC(),
	}
	if err := a.Publisher.PublishRefreshCompleted(ctx, event); err != nil {
		return fmt.Errorf("publish refresh event: %w", err)
	}
	return nil
}

// CleanupArtifacts removes an artifact directory (saga compensation / rollback).
func (a *RefreshActivities) CleanupArtifacts(ctx context.Context, dir string) error {
	if err := a.Exporter.Cleanup(dir); err != nil {
		return fmt.Errorf("cleanup artifacts %s: %w", dir, err)
	}
	slog.Info("artifacts removed", "dir", dir)
	return nil
}
