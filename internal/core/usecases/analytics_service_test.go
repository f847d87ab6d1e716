package usecases_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/winstonk6/case-study-bike-share/internal/core/domain"
	"github.com/winstonk6/case-study-bike-share/internal/core/usecases"
)

type mockStatsRepo struct {
	riderSummaryFn      func(ctx context.Context) ([]domain.RiderSummary, error)
	ridesByWeekdayFn    func(ctx context.Context) ([]domain.WeekdayStat, error)
	ridesByMonthFn      func(ctx context.Context) ([]domain.MonthlyStat, error)
	ridesByHourFn       func(ctx context.Context) ([]domain.HourlyStat, error)
	refreshAggregatesFn func(ctx context.Context) error
}

func (m *mockStatsRepo) RiderSummary(ctx context.Context) ([]domain.RiderSummary, error) {
	if m.riderSummaryFn != nil {
		return m.riderSummaryFn(ctx)
	}
	return nil, nil
}

func (m *mockStatsRepo) RidesByWeekday(ctx context.Context) ([]domain.WeekdayStat, error) {
	if m.ridesByWeekdayFn != nil {
		return m.ridesByWeekdayFn(ctx)
	}
	return nil, nil
}

func (m *mockStatsRepo) RidesByMonth(ctx context.Context) ([]domain.MonthlyStat, error) {
	if m.ridesByMonthFn != nil {
		return m.ridesByMonthFn(ctx)
	}
	return nil, nil
}

func (m *mockStatsRepo) RidesByHour(ctx context.Context) ([]domain.HourlyStat, error) {
	if m.ridesByHourFn != nil {
		return m.ridesByHourFn(ctx)
	}
	return nil, nil
}

func (m *mockStatsRepo) RefreshAggregates(ctx context.Context) error {
	if m.refreshAggregatesFn != nil {
		return m.refreshAggregatesFn(ctx)
	}
	return nil
}

func TestAnalyticsService_Summary(t *testing.T) {
	stats := &mockStatsRepo{
		riderSummaryFn: func(ctx context.Context) ([]domain.RiderSummary, error) {
			return []domain.RiderSummary{
				{MemberCasual: "member", Rides: 2400, MeanDurationSecs: 720, MedianDurationSecs: 540},
				{MemberCasual: "casual", Rides: 1100, MeanDurationSecs: 1500, MedianDurationSecs: 960},
			}, nil
		},
	}

	svc := usecases.NewAnalyticsService(stats, nil)
	got, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].MemberCasual != "member" || got[0].Rides != 2400 {
		t.Errorf("unexpected first row: %+v", got[0])
	}
}

func TestAnalyticsService_Summary_CachesResult(t *testing.T) {
	cache := newMockCache()
	calls := 0
	stats := &mockStatsRepo{
		riderSummaryFn: func(ctx context.Context) ([]domain.RiderSummary, error) {
			calls++
			return []domain.RiderSummary{{MemberCasual: "member", Rides: 10}}, nil
		},
	}

	svc := usecases.NewAnalyticsService(stats, cache)
	for i := 0; i < 3; i++ {
		got, err := svc.Summary(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].Rides != 10 {
			t.Fatalf("unexpected rows on call %d: %+v", i, got)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 repo call with warm cache, got %d", calls)
	}
}

func TestAnalyticsService_Weekday_PropagatesError(t *testing.T) {
	stats := &mockStatsRepo{
		ridesByWeekdayFn: func(ctx context.Context) ([]domain.WeekdayStat, error) {
			return nil, fmt.Errorf("connection refused")
		},
	}

	svc := usecases.NewAnalyticsService(stats, nil)
	if _, err := svc.Weekday(context.Background()); err == nil {
		t.Error("expected error to propagate")
	}
}

func TestAnalyticsService_Refresh_InvalidatesCache(t *testing.T) {
	cache := newMockCache()
	cache.store["stats:summary"] = []byte(`[]`)
	cache.store["stats:weekday"] = []byte(`[]`)

	refreshed := false
	stats := &mockStatsRepo{
		refreshAggregatesFn: func(ctx context.Context) error {
			refreshed = true
			return nil
		},
	}

	svc := usecases.NewAnalyticsService(stats, cache)
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !refreshed {
		t.Error("aggregates were not refreshed")
	}
	if len(cache.store) != 0 {
		t.Errorf("stale stats keys left in cache: %v", cache.store)
	}
	want := map[string]bool{
		"stats:summary": true, "stats:weekday": true,
		"stats:monthly": true, "stats:hourly": true,
	}
	for _, key := range cache.deleted {
		delete(want, key)
	}
	if len(want) != 0 {
		t.Errorf("keys never invalidated: %v", want)
	}
}

func TestAnalyticsService_Refresh_Error(t *testing.T) {
	stats := &mockStatsRepo{
		refreshAggregatesFn: func(ctx context.Context) error {
			return fmt.Errorf("deadlock detected")
		},
	}

	svc := usecases.NewAnalyticsService(stats, newMockCache())
	if err := svc.Refresh(context.Background()); err == nil {
		t.Error("expected refresh error to propagate")
	}
}
