//go:build integration
// +build integration

package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/winstonk6/case-study-bike-share/internal/adapters/http"
	"github.com/winstonk6/case-study-bike-share/internal/adapters/postgres"
	"github.com/winstonk6/case-study-bike-share/internal/core/domain"
	"github.com/winstonk6/case-study-bike-share/internal/core/usecases"
	"github.com/winstonk6/case-study-bike-share/internal/pkg/config"
)

// setupTestDB connects to the test database and returns a clean DB instance.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("bikeshare-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	dsn := cfg.Database.DSN()
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}

	db := &postgres.DB{Pool: pool}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping db: %v", err)
	}

	return db
}

// setupTestDeps creates dependencies with real DB and repos, no cache.
func setupTestDeps(t *testing.T, db *postgres.DB) *http.Dependencies {
	stationRepo := postgres.NewStationRepo(db)
	rideRepo := postgres.NewRideRepo(db)
	statsRepo := postgres.NewStatsRepo(db)
	runRepo := postgres.NewIngestRunRepo(db)

	return &http.Dependencies{
		Stations:  usecases.NewStationService(stationRepo, rideRepo, nil),
		Analytics: usecases.NewAnalyticsService(statsRepo, nil),
		Rides:     rideRepo,
		Runs:      runRepo,
		DB:        db,
	}
}

// seedTestStation inserts a canonical station row and returns its station id.
func seedTestStation(t *testing.T, db *postgres.DB, stationID, name string, lat, lon float64) string {
	ctx := context.Background()
	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO stations (station_id, name, location, observations, variants, dispersion_meters, resolved_at)
		VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, 10, 1, 0, now())
		ON CONFLICT (station_id) DO UPDATE SET name = EXCLUDED.name, location = EXCLUDED.location
	`, stationID, name, lon, lat); err != nil {
		t.Fatalf("seed station: %v", err)
	}
	return stationID
}

// seedTestRide inserts one ride row and returns its ride id.
func seedTestRide(t *testing.T, db *postgres.DB, rideID, stationID, stationName string) string {
	ctx := context.Background()
	started := time.Now().Add(-30 * time.Minute).UTC()
	ended := started.Add(12 * time.Minute)
	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO rides (ride_id, rideable_type, started_at, ended_at,
			start_station_id, start_station_name, end_station_id, end_station_name,
			start_location, end_location, member_casual)
		VALUES ($1, 'classic_bike', $2, $3, $4, $5, $4, $5,
			ST_SetSRID(ST_MakePoint(-87.612043, 41.892278), 4326)::geography,
			ST_SetSRID(ST_MakePoint(-87.625689, 41.879472), 4326)::geography,
			'member')
		ON CONFLICT (ride_id) DO NOTHING
	`, rideID, started, ended, stationID, stationName); err != nil {
		t.Fatalf("seed ride: %v", err)
	}
	return rideID
}

// TestListStations_Integration_WithRealDB tests catalog listing against real database.
func TestListStations_Integration_WithRealDB(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	// Seed test data
	seedTestStation(t, db, "ti-13022", "Streeter Dr & Grand Ave", 41.892278, -87.612043)
	seedTestStation(t, db, "ti-639", "Wabash Ave & Adams St", 41.879472, -87.625689)

	// Create app with real repos
	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/stations", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.Station    `json:"data"`
		Pagination struct{ Total int } `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if result.Pagination.Total < 2 {
		t.Errorf("expected at least 2 stations, got %d", result.Pagination.Total)
	}
}

// TestGetStation_Integration tests station lookup against real database.
func TestGetStation_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	stationID := "ti-" + time.Now().Format("20060102150405")
	seedTestStation(t, db, stationID, "Integration Test Station", 41.9, -87.63)

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/stations/"+stationID, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var station domain.Station
	if err := json.NewDecoder(resp.Body).Decode(&station); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if station.StationID != stationID {
		t.Errorf("expected station id %s, got %s", stationID, station.StationID)
	}
}

// TestNearbyStations_Integration tests the geospatial query against real database.
func TestNearbyStations_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	// Navy Pier area: 41.892278, -87.612043
	seedTestStation(t, db, "ti-spatial", "Streeter Dr & Grand Ave", 41.892278, -87.612043)

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/stations/nearby?lat=41.892&lon=-87.612&radius=5000", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var stations []domain.Station
	if err := json.NewDecoder(resp.Body).Decode(&stations); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(stations) == 0 {
		t.Error("expected at least 1 nearby station, got 0")
	}
}

// TestGetRide_Integration tests ride lookup against real database.
func TestGetRide_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Pool.Close()

	rideID := fmt.Sprintf("TI%s", time.Now().Format("20060102150405"))
	seedTestRide(t, db, rideID, "ti-13022", "Streeter Dr & Grand Ave")

	deps := setupTestDeps(t, db)
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/rides/"+rideID, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var ride domain.Ride
	if err := json.NewDecoder(resp.Body).Decode(&ride); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if ride.RideID != rideID {
		t.Errorf("expected ride id %s, got %s", rideID, ride.RideID)
	}
}
