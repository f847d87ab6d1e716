package domain

import (
	"time"
)

// Ride is one recorded trip from the monthly system exports.
type Ride struct {
	ID               string    `json:"id"`
	RideID           string    `json:"ride_id"`
	RideableType     string    `json:"rideable_type"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	StartStationID   string    `json:"start_station_id,omitempty"`
	StartStationName string    `json:"start_station_name,omitempty"`
	EndStationID     string    `json:"end_station_id,omitempty"`
	EndStationName   string    `json:"end_station_name,omitempty"`
	StartLocation    GeoPoint  `json:"start_location"`
	EndLocation      *GeoPoint `json:"end_location,omitempty"`
	MemberCasual     string    `json:"member_casual"`
	DurationSeconds  int       `json:"duration_seconds"`
	CreatedAt        time.Time `json:"created_at"`
}

// Station is the canonical record for one station id, resolved from the
// coordinate observations carried by ride rows.
type Station struct {
	ID               string    `json:"id"`
	StationID        string    `json:"station_id"`
	Name             string    `json:"name"`
	Location         GeoPoint  `json:"location"`
	Observations     int64     `json:"observations"`
	Variants         int       `json:"variants"`
	DispersionMeters float64   `json:"dispersion_meters"`
	Distance         *float64  `json:"distance,omitempty"` // computed field
	ResolvedAt       time.Time `json:"resolved_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// Ingest run statuses.
const (
	IngestRunning   = "running"
	IngestCompleted = "completed"
	IngestFailed    = "failed"
)

// IngestRun records the outcome of loading one source file.
type IngestRun struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	RowsRead    int64      `json:"rows_read"`
	RowsLoaded  int64      `json:"rows_loaded"`
	RowsSkipped int64      `json:"rows_skipped"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// RefreshEvent announces a completed analytics refresh.
type RefreshEvent struct {
	WorkflowID  string    `json:"workflow_id"`
	Stations    int       `json:"stations"`
	ArtifactDir string    `json:"artifact_dir,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// RiderSummary aggregates ride volume and duration for one rider type.
type RiderSummary struct {
	MemberCasual       string  `json:"member_casual"`
	Rides              int64   `json:"rides"`
	MeanDurationSecs   float64 `json:"mean_duration_secs"`
	MedianDurationSecs float64 `json:"median_duration_secs"`
}

// WeekdayStat is ride volume for one day of week and rider type.
// Weekday follows Postgres EXTRACT(DOW ...): 0=Sunday through 6=Saturday.
type WeekdayStat struct {
	Weekday          int     `json:"weekday"`
	MemberCasual     string  `json:"member_casual"`
	Rides            int64   `json:"rides"`
	MeanDurationSecs float64 `json:"mean_duration_secs"`
}

// MonthlyStat is ride volume for one calendar month and rider type.
type MonthlyStat struct {
	Month            time.Time `json:"month"`
	MemberCasual     string    `json:"member_casual"`
	Rides            int64     `json:"rides"`
	MeanDurationSecs float64   `json:"mean_duration_secs"`
}

// HourlyStat is ride volume for one hour of day and rider type.
type HourlyStat struct {
	Hour         int    `json:"hour"`
	MemberCasual string `json:"member_casual"`
	Rides        int64  `json:"rides"`
}

// StationPopularity ranks a station by the rides that start and end there.
type StationPopularity struct {
	StationID    string   `json:"station_id"`
	Name         string   `json:"name"`
	Location     GeoPoint `json:"location"`
	RidesStarted int64    `json:"rides_started"`
	RidesEnded   int64    `json:"rides_ended"`
}
