package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/winstonk6/case-study-bike-share/internal/core/domain"
	"github.com/winstonk6/case-study-bike-share/internal/pkg/geospatial"
)

// StationRepo implements ports.StationRepository with pgx.
type StationRepo struct {
	db *DB
}

// NewStationRepo creates a new StationRepo.
func NewStationRepo(db *DB) *StationRepo {
	return &StationRepo{db: db}
}

// UpsertBatch writes the resolved catalog using pgx.Batch. Existing rows
// are fully replaced: a new resolution supersedes the previous one.
func (r *StationRepo) UpsertBatch(ctx context.Context, stations []domain.Station) error {
	batch := &pgx.Batch{}
	for _, s := range stations {
		batch.Queue(`
			INSERT INTO stations (station_id, name, location, observations, variants, dispersion_meters, resolved_at)
			VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5, $6, $7, $8)
			ON CONFLICT (station_id) DO UPDATE
			SET name = EXCLUDED.name, location = EXCLUDED.location,
			    observations = EXCLUDED.observations,
			    variants = EXCLUDED.variants,
			    dispersion_meters = EXCLUDED.dispersion_meters,
			    resolved_at = EXCLUDED.resolved_at
		`, s.StationID, s.Name, s.Location.Lon, s.Location.Lat,
			s.Observations, s.Variants, s.DispersionMeters, s.ResolvedAt)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range stations {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// GetByStationID returns one station by its source system id.
func (r *StationRepo) GetByStationID(ctx context.Context, stationID string) (*domain.Station, error) {
	var s domain.Station
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, station_id, name,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon,
		       observations, variants, dispersion_meters, resolved_at, created_at
		FROM stations WHERE station_id = $1
	`, stationID).Scan(
		&s.ID, &s.StationID, &s.Name,
		&s.Location.Lat, &s.Location.Lon,
		&s.Observations, &s.Variants, &s.DispersionMeters, &s.ResolvedAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns a page of the catalog ordered by name.
func (r *StationRepo) List(ctx context.Context, offset, limit int) ([]domain.Station, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, station_id, name,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon,
		       observations, variants, dispersion_meters, resolved_at, created_at
		FROM stations
		ORDER BY name, station_id
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStations(rows, false)
}

// Count returns how many stations are in the catalog.
func (r *StationRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM stations`).Scan(&n)
	return n, err
}

// FindNearby returns stations within radiusMeters using PostGIS ST_DWithin.
func (r *StationRepo) FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.Station, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, station_id, name,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon,
		       observations, variants, dispersion_meters, resolved_at, created_at,
		       ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) as distance
		FROM stations
		WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY distance
		LIMIT $4
	`, lon, lat, radiusMeters, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStations(rows, true)
}

// Search performs fuzzy + full-text search on station names. When near is
// set, results are restricted to a box roughly 10km around it.
func (r *StationRepo) Search(ctx context.Context, query string, near *domain.GeoPoint, limit int) ([]domain.Station, error) {
	sql := `
		SELECT id, station_id, name,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon,
		       observations, variants, dispersion_meters, resolved_at, created_at,
		       similarity(name, $1) as sim
		FROM stations
		WHERE (name_vector @@ plainto_tsquery('english', $1) OR name %> $1)`
	args := []any{query, limit}

	if near != nil {
		minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(near.Lat, near.Lon, 10000)
		sql += `
		  AND location && ST_MakeEnvelope($3, $4, $5, $6, 4326)::geography`
		args = append(args, minLon, minLat, maxLon, maxLat)
	}
	sql += `
		ORDER BY sim DESC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []domain.Station
	for rows.Next() {
		var s domain.Station
		var sim float64
		if err := rows.Scan(
			&s.ID, &s.StationID, &s.Name,
			&s.Location.Lat, &s.Location.Lon,
			&s.Observations, &s.Variants, &s.DispersionMeters, &s.ResolvedAt, &s.CreatedAt,
			&sim,
		); err != nil {
			return nil, err
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}

// Popularity reads the precomputed station ranking.
func (r *StationRepo) Popularity(ctx context.Context, limit int) ([]domain.StationPopularity, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT station_id, name,
		       ST_Y(location::geometry) as lat,
		       ST_X(location::geometry) as lon,
		       rides_started, rides_ended
		FROM mv_station_popularity
		ORDER BY rides_started + rides_ended DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StationPopularity
	for rows.Next() {
		var p domain.StationPopularity
		if err := rows.Scan(
			&p.StationID, &p.Name,
			&p.Location.Lat, &p.Location.Lon,
			&p.RidesStarted, &p.RidesEnded,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanStations(rows pgx.Rows, withDistance bool) ([]domain.Station, error) {
	var stations []domain.Station
	for rows.Next() {
		var s domain.Station
		dest := []any{
			&s.ID, &s.StationID, &s.Name,
			&s.Location.Lat, &s.Location.Lon,
			&s.Observations, &s.Variants, &s.DispersionMeters, &s.ResolvedAt, &s.CreatedAt,
		}
		var dist float64
		if withDistance {
			dest = append(dest, &dist)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if withDistance {
			d := dist
			s.Distance = &d
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}
