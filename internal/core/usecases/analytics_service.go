package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/winstonk6/case-study-bike-share/internal/core/domain"
	"github.com/winstonk6/case-study-bike-share/internal/core/ports"
)

// Cache keys for the fixed aggregate endpoints. Refresh invalidates them
// so the API serves new numbers immediately instead of waiting out a TTL.
var statsCacheKeys = []string{
	"stats:summary",
	"stats:weekday",
	"stats:monthly",
	"stats:hourly",
}

// AnalyticsService serves the descriptive ride aggregates.
type AnalyticsService struct {
	stats ports.StatsRepository
	cache ports.CacheService
}

// NewAnalyticsService creates a new AnalyticsService.
func NewAnalyticsService(stats ports.StatsRepository, cache ports.CacheService) *AnalyticsService {
	return &AnalyticsService{stats: stats, cache: cache}
}

// Summary returns ride counts and durations per rider type.
func (s *AnalyticsService) Summary(ctx context.Context) ([]domain.RiderSummary, error) {
	return cached(ctx, s.cache, "stats:summary", 300, func() ([]domain.RiderSummary, error) {
		return s.stats.RiderSummary(ctx)
	})
}

// Weekday returns ride volume per day of week and rider type.
func (s *AnalyticsService) Weekday(ctx context.Context) ([]domain.WeekdayStat, error) {
	return cached(ctx, s.cache, "stats:weekday", 300, func() ([]domain.WeekdayStat, error) {
		return s.stats.RidesByWeekday(ctx)
	})
}

// Monthly returns ride volume per calendar month and rider type.
func (s *AnalyticsService) Monthly(ctx context.Context) ([]domain.MonthlyStat, error) {
	return cached(ctx, s.cache, "stats:monthly", 300, func() ([]domain.MonthlyStat, error) {
		return s.stats.RidesByMonth(ctx)
	})
}

// Hourly returns ride volume per hour of day and rider type.
func (s *AnalyticsService) Hourly(ctx context.Context) ([]domain.HourlyStat, error) {
	return cached(ctx, s.cache, "stats:hourly", 300, func() ([]domain.HourlyStat, error) {
		return s.stats.RidesByHour(ctx)
	})
}

// Refresh rebuilds the aggregates and drops their cached copies.
func (s *AnalyticsService) Refresh(ctx context.Context) error {
	if err := s.stats.RefreshAggregates(ctx); err != nil {
		return fmt.Errorf("refresh aggregates: %w", err)
	}
	if s.cache != nil {
		for _, key := range statsCacheKeys {
			_ = s.cache.Delete(ctx, key)
		}
	}
	return nil
}

// cached wraps a repository read with the usual read-through pattern.
func cached[T any](ctx context.Context, cache ports.CacheService, key string, ttlSeconds int, load func() ([]T, error)) ([]T, error) {
	if cache != nil {
		if data, err := cache.Get(ctx, key); err == nil {
			var out []T
			if err := json.Unmarshal(data, &out); err == nil {
				return out, nil
			}
		}
	}

	out, err := load()
	if err != nil {
		return nil, err
	}

	if cache != nil {
		if data, err := json.Marshal(out); err == nil {
			_ = cache.Set(ctx, key, data, ttlSeconds)
		}
	}

	return out, nil
}
