package ports

import (
	"context"

	"github.com/winstonk6/case-study-bike-share/internal/core/canonical"
	"github.com/winstonk6/case-study-bike-share/internal/core/domain"
)

// RideRepository persists rides.
type RideRepository interface {
	// InsertBatch loads rides and returns how many were actually inserted.
	// Rows whose ride_id already exists are skipped, so re-running an
	// ingest over the same files is safe.
	InsertBatch(ctx context.Context, rides []domain.Ride) (int64, error)
	GetByRideID(ctx context.Context, rideID string) (*domain.Ride, error)
	Count(ctx context.Context) (int64, error)
	// EndStationObservations streams the pre-grouped end-station sightings
	// of every ride, calling fn once per distinct (id, name, lat, lng)
	// combination with its occurrence count.
	EndStationObservations(ctx context.Context, fn func(obs canonical.Observation, n int64) error) error
}

// StationRepository persists resolved stations.
type StationRepository interface {
	UpsertBatch(ctx context.Context, stations []domain.Station) error
	GetByStationID(ctx context.Context, stationID string) (*domain.Station, error)
	List(ctx context.Context, offset, limit int) ([]domain.Station, error)
	Count(ctx context.Context) (int64, error)
	FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.Station, error)
	Search(ctx context.Context, query string, near *domain.GeoPoint, limit int) ([]domain.Station, error)
	Popularity(ctx context.Context, limit int) ([]domain.StationPopularity, error)
}

// StatsRepository reads the precomputed ride aggregates.
type StatsRepository interface {
	RiderSummary(ctx context.Context) ([]domain.RiderSummary, error)
	RidesByWeekday(ctx context.Context) ([]domain.WeekdayStat, error)
	RidesByMonth(ctx context.Context) ([]domain.MonthlyStat, error)
	RidesByHour(ctx context.Context) ([]domain.HourlyStat, error)
	// RefreshAggregates rebuilds the materialized views after an ingest.
	RefreshAggregates(ctx context.Context) error
}

// IngestRunRepository persists ingest bookkeeping.
type IngestRunRepository interface {
	Create(ctx context.Context, run *domain.IngestRun) error
	Finish(ctx context.Context, run *domain.IngestRun) error
	Latest(ctx context.Context, limit int) ([]domain.IngestRun, error)
}
