package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/winstonk6/case-study-bike-share/internal/core/canonical"
	"github.com/winstonk6/case-study-bike-share/internal/core/domain"
)

// RideRepo implements ports.RideRepository.
type RideRepo struct {
	db *DB
}

func NewRideRepo(db *DB) *RideRepo {
	return &RideRepo{db: db}
}

// InsertBatch loads rides with pgx.Batch. ON CONFLICT DO NOTHING makes the
// load idempotent across overlapping source files; the return value counts
// rows that were actually new.
func (r *RideRepo) InsertBatch(ctx context.Context, rides []domain.Ride) (int64, error) {
	batch := &pgx.Batch{}
	for _, ride := range rides {
		var endLon, endLat any
		if ride.EndLocation != nil {
			endLon, endLat = ride.EndLocation.Lon, ride.EndLocation.Lat
		}
		batch.Queue(`
			INSERT INTO rides (ride_id, rideable_type, started_at, ended_at,
			                   start_station_id, start_station_name,
			                   end_station_id, end_station_name,
			                   start_location, end_location, member_casual)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
			        ST_SetSRID(ST_MakePoint($9, $10), 4326)::geography,
			        CASE WHEN $11::float8 IS NULL THEN NULL
			             ELSE ST_SetSRID(ST_MakePoint($11, $12), 4326)::geography END,
			        $13)
			ON CONFLICT (ride_id) DO NOTHING
		`, ride.RideID, ride.RideableType, ride.StartedAt, ride.EndedAt,
			nilIfEmpty(ride.StartStationID), nilIfEmpty(ride.StartStationName),
			nilIfEmpty(ride.EndStationID), nilIfEmpty(ride.EndStationName),
			ride.StartLocation.Lon, ride.StartLocation.Lat,
			endLon, endLat, ride.MemberCasual)
	}

	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for range rides {
		ct, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("batch exec: %w", err)
		}
		inserted += ct.RowsAffected()
	}
	return inserted, nil
}

// GetByRideID returns one ride by its source system id.
func (r *RideRepo) GetByRideID(ctx context.Context, rideID string) (*domain.Ride, error) {
	ride := &domain.Ride{}
	var endLat, endLon *float64
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, ride_id, rideable_type, started_at, ended_at,
		       COALESCE(start_station_id, ''), COALESCE(start_station_name, ''),
		       COALESCE(end_station_id, ''), COALESCE(end_station_name, ''),
		       ST_Y(start_location::geometry), ST_X(start_location::geometry),
		       ST_Y(end_location::geometry), ST_X(end_location::geometry),
		       member_casual, duration_secs, created_at
		FROM rides WHERE ride_id = $1
	`, rideID).Scan(
		&ride.ID, &ride.RideID, &ride.RideableType, &ride.StartedAt, &ride.EndedAt,
		&ride.StartStationID, &ride.StartStationName,
		&ride.EndStationID, &ride.EndStationName,
		&ride.StartLocation.Lat, &ride.StartLocation.Lon,
		&endLat, &endLon,
		&ride.MemberCasual, &ride.DurationSeconds, &ride.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if endLat != nil && endLon != nil {
		ride.EndLocation = &domain.GeoPoint{Lat: *endLat, Lon: *endLon}
	}
	return ride, nil
}

// Count returns the total number of loaded rides.
func (r *RideRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM rides`).Scan(&n)
	return n, err
}

// EndStationObservations streams the grouped end-station sightings. The
// GROUP BY runs in Postgres so only one row per distinct combination
// crosses the wire, which is what lets a year of rides resolve in memory.
func (r *RideRepo) EndStationObservations(ctx context.Context, fn func(obs canonical.Observation, n int64) error) error {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT end_station_id,
		       COALESCE(end_station_name, ''),
		       ST_Y(end_location::geometry) as lat,
		       ST_X(end_location::geometry) as lng,
		       COUNT(*) as n
		FROM rides
		WHERE end_station_id IS NOT NULL
		  AND end_location IS NOT NULL
		GROUP BY 1, 2, 3, 4
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var obs canonical.Observation
		var n int64
		if err := rows.Scan(&obs.StationID, &obs.Name, &obs.Lat, &obs.Lng, &n); err != nil {
			return err
		}
		if err := fn(obs, n); err != nil {
			return err
		}
	}
	return rows.Err()
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
