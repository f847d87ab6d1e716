// Package export writes refresh artifacts (CSV extracts plus a JSON
// manifest) for downstream notebooks and dashboards. Artifacts land in
// a timestamped directory that is renamed into place only once every
// file has been written.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/winstonk6/case-study-bike-share/internal/core/domain"
)

// Artifacts is everything one refresh run exports.
type Artifacts struct {
	Stations   []domain.Station
	Popularity []domain.StationPopularity
	Summary    []domain.RiderSummary
	Weekday    []domain.WeekdayStat
	Monthly    []domain.MonthlyStat
	Hourly     []domain.HourlyStat
}

// CSV row shapes. Kept separate from the domain types so the column
// layout stays stable even when the API responses change.

type stationRow struct {
	StationID        string  `csv:"station_id"`
	Name             string  `csv:"name"`
	Lat              float64 `csv:"lat"`
	Lng              float64 `csv:"lng"`
	Observations     int64   `csv:"observations"`
	Variants         int     `csv:"variants"`
	DispersionMeters float64 `csv:"dispersion_meters"`
}

type popularityRow struct {
	StationID    string `csv:"station_id"`
	Name         string `csv:"name"`
	RidesStarted int64  `csv:"rides_started"`
	RidesEnded   int64  `csv:"rides_ended"`
}

type summaryRow struct {
	MemberCasual       string  `csv:"member_casual"`
	Rides              int64   `csv:"rides"`
	MeanDurationSecs   float64 `csv:"mean_duration_secs"`
	MedianDurationSecs float64 `csv:"median_duration_secs"`
}

type weekdayRow struct {
	Weekday          int     `csv:"weekday"`
	MemberCasual     string  `csv:"member_casual"`
	Rides            int64   `csv:"rides"`
	MeanDurationSecs float64 `csv:"mean_duration_secs"`
}

type monthlyRow struct {
	Month            string  `csv:"month"`
	MemberCasual     string  `csv:"member_casual"`
	Rides            int64   `csv:"rides"`
	MeanDurationSecs float64 `csv:"mean_duration_secs"`
}

type hourlyRow struct {
	Hour         int    `csv:"hour"`
	MemberCasual string `csv:"member_casual"`
	Rides        int64  `csv:"rides"`
}

// manifest is the summary.json written alongside the CSV files.
type manifest struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Stations    int            `json:"stations"`
	Viewport    *domain.Bounds `json:"viewport,omitempty"`
	Files       []string       `json:"files"`
}

// Writer publishes artifact directories under a base directory.
type Writer struct {
	baseDir string
}

func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

// Write renders all artifacts into a new timestamped directory and
// returns its path. The directory appears atomically: files are first
// written to a ".tmp" sibling which is renamed when complete.
func (w *Writer) Write(arts *Artifacts) (string, error) {
	stamp := time.Now().UTC().Format("20060102T150405Z")
	finalDir := filepath.Join(w.baseDir, stamp)
	tmpDir := finalDir + ".tmp"

	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	files := []string{
		"canonical_stations.csv",
		"station_popularity.csv",
		"rider_summary.csv",
		"rides_by_weekday.csv",
		"rides_by_month.csv",
		"rides_by_hour.csv",
		"summary.json",
	}

	if err := writeCSV(tmpDir, "canonical_stations.csv", stationRows(arts.Stations)); err != nil {
		return "", err
	}
	if err := writeCSV(tmpDir, "station_popularity.csv", popularityRows(arts.Popularity)); err != nil {
		return "", err
	}
	if err := writeCSV(tmpDir, "rider_summary.csv", summaryRows(arts.Summary)); err != nil {
		return "", err
	}
	if err := writeCSV(tmpDir, "rides_by_weekday.csv", weekdayRows(arts.Weekday)); err != nil {
		return "", err
	}
	if err := writeCSV(tmpDir, "rides_by_month.csv", monthlyRows(arts.Monthly)); err != nil {
		return "", err
	}
	if err := writeCSV(tmpDir, "rides_by_hour.csv", hourlyRows(arts.Hourly)); err != nil {
		return "", err
	}

	m := manifest{
		GeneratedAt: time.Now().UTC(),
		Stations:    len(arts.Stations),
		Viewport:    viewport(arts.Stations),
		Files:       files,
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "summary.json"), data, 0o644); err != nil {
		return "", fmt.Errorf("write summary.json: %w", err)
	}

	if err := os.Rename(tmpDir, finalDir); err != nil {
		return "", fmt.Errorf("publish artifact dir: %w", err)
	}
	return finalDir, nil
}

// Cleanup removes an artifact directory, including a half-written
// ".tmp" sibling left behind by a failed run.
func (w *Writer) Cleanup(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir + ".tmp"); err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func writeCSV(dir, name string, rows interface{}) error {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer f.Close()

	if err := gocsv.Marshal(rows, f); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// viewport computes the bounding box of the station catalog.
func viewport(stations []domain.Station) *domain.Bounds {
	if len(stations) == 0 {
		return nil
	}
	b := &domain.Bounds{
		MinLat: stations[0].Location.Lat,
		MaxLat: stations[0].Location.Lat,
		MinLon: stations[0].Location.Lon,
		MaxLon: stations[0].Location.Lon,
	}
	for _, s := range stations[1:] {
		b.Extend(s.Location)
	}
	return b
}

func stationRows(stations []domain.Station) []stationRow {
	rows := make([]stationRow, 0, len(stations))
	for _, s := range stations {
		rows = append(rows, stationRow{
			StationID:        s.StationID,
			Name:             s.Name,
			Lat:              s.Location.Lat,
			Lng:              s.Location.Lon,
			Observations:     s.Observations,
			Variants:         s.Variants,
			DispersionMeters: s.DispersionMeters,
		})
	}
	return rows
}

func popularityRows(pops []domain.StationPopularity) []popularityRow {
	rows := make([]popularityRow, 0, len(pops))
	for _, p := range pops {
		rows = append(rows, popularityRow{
			StationID:    p.StationID,
			Name:         p.Name,
			RidesStarted: p.RidesStarted,
			RidesEnded:   p.RidesEnded,
		})
	}
	return rows
}

func summaryRows(stats []domain.RiderSummary) []summaryRow {
	rows := make([]summaryRow, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, summaryRow{
			MemberCasual:       s.MemberCasual,
			Rides:              s.Rides,
			MeanDurationSecs:   s.MeanDurationSecs,
			MedianDurationSecs: s.MedianDurationSecs,
		})
	}
	return rows
}

func weekdayRows(stats []domain.WeekdayStat) []weekdayRow {
	rows := make([]weekdayRow, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, weekdayRow{
			Weekday:          s.Weekday,
			MemberCasual:     s.MemberCasual,
			Rides:            s.Rides,
			MeanDurationSecs: s.MeanDurationSecs,
		})
	}
	return rows
}

func monthlyRows(stats []domain.MonthlyStat) []monthlyRow {
	rows := make([]monthlyRow, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, monthlyRow{
			Month:            s.Month.Format("2006-01"),
			MemberCasual:     s.MemberCasual,
			Rides:            s.Rides,
			MeanDurationSecs: s.MeanDurationSecs,
		})
	}
	return rows
}

func hourlyRows(stats []domain.HourlyStat) []hourlyRow {
	rows := make([]hourlyRow, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, hourlyRow{
			Hour:         s.Hour,
			MemberCasual: s.MemberCasual,
			Rides:        s.Rides,
		})
	}
	return rows
}
