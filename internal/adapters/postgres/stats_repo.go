package postgres

import (
	"context"
	"fmt"

	"github.com/winstonk6/case-study-bike-share/internal/core/domain"
)

// StatsRepo implements ports.StatsRepository on top of the materialized
// views built by the migrations.
type StatsRepo struct {
	db *DB
}

func NewStatsRepo(db *DB) *StatsRepo {
	return &StatsRepo{db: db}
}

func (r *StatsRepo) RiderSummary(ctx context.Context) ([]domain.RiderSummary, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT member_casual, rides, mean_duration_secs, median_duration_secs
		FROM mv_rider_summary
		ORDER BY member_casual
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RiderSummary
	for rows.Next() {
		var s domain.RiderSummary
		if err := rows.Scan(&s.MemberCasual, &s.Rides, &s.MeanDurationSecs, &s.MedianDurationSecs); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *StatsRepo) RidesByWeekday(ctx context.Context) ([]domain.WeekdayStat, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT weekday, member_casual, rides, mean_duration_secs
		FROM mv_rides_by_weekday
		ORDER BY weekday, member_casual
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.WeekdayStat
	for rows.Next() {
		var s domain.WeekdayStat
		if err := rows.Scan(&s.Weekday, &s.MemberCasual, &s.Rides, &s.MeanDurationSecs); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *StatsRepo) RidesByMonth(ctx context.Context) ([]domain.MonthlyStat, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT month, member_casual, rides, mean_duration_secs
		FROM mv_rides_by_month
		ORDER BY month, member_casual
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MonthlyStat
	for rows.Next() {
		var s domain.MonthlyStat
		if err := rows.Scan(&s.Month, &s.MemberCasual, &s.Rides, &s.MeanDurationSecs); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *StatsRepo) RidesByHour(ctx context.Context) ([]domain.HourlyStat, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT hour, member_casual, rides
		FROM mv_rides_by_hour
		ORDER BY hour, member_casual
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HourlyStat
	for rows.Next() {
		var s domain.HourlyStat
		if err := rows.Scan(&s.Hour, &s.MemberCasual, &s.Rides); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RefreshAggregates rebuilds every materialized view. CONCURRENTLY keeps
// the API readable during a refresh; it requires the unique indexes the
// migrations create.
func (r *StatsRepo) RefreshAggregates(ctx context.Context) error {
	views := []string{
		"mv_rider_summary",
		"mv_rides_by_weekday",
		"mv_rides_by_month",
		"mv_rides_by_hour",
		"mv_station_popularity",
	}
	for _, v := range views {
		if _, err := r.db.Pool.Exec(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY "+v); err != nil {
			return fmt.Errorf("refresh %s: %w", v, err)
		}
	}
	return nil
}
