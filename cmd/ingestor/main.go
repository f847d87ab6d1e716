package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	natsadapter "github.com/winstonk6/case-study-bike-share/internal/adapters/nats"
	"github.com/winstonk6/case-study-bike-share/internal/adapters/postgres"
	"github.com/winstonk6/case-study-bike-share/internal/core/domain"
	"github.com/winstonk6/case-study-bike-share/internal/pkg/config"
	"github.com/winstonk6/case-study-bike-share/internal/pkg/metrics"
)

// ---------------------------------------------------------------------------
// Manifest types
// ---------------------------------------------------------------------------

type Manifest struct {
	Source string       `json:"source"`
	Months []MonthEntry `json:"months"`
}

type MonthEntry struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
	Path string `json:"path,omitempty"`
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	cfg, err := config.Load("bikeshare-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	loc, err := cfg.Analytics.Location()
	if err != nil {
		log.Fatalf("timezone: %v", err)
	}

	// Load manifest
	manifestPath := "manifest.json"
	if len(os.Args) > 1 {
		manifestPath = os.Args[1]
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		log.Fatalf("read manifest: %v", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		log.Fatalf("parse manifest: %v", err)
	}

	log.Printf("Bike Share Ingestor — %d monthly exports from %s", len(manifest.Months), manifest.Source)

	// Filter months (optional CLI arg: name list)
	nameFilter := map[string]bool{}
	if len(os.Args) > 2 {
		for _, s := range strings.Split(os.Args[2], ",") {
			nameFilter[strings.TrimSpace(s)] = true
		}
	}

	// Without NATS the data still loads; the refresh just has to be
	// started by hand.
	var pub *natsadapter.Publisher
	if p, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		log.Printf("WARNING: nats unavailable, refresh will not be triggered: %v", err)
	} else {
		pub = p
		defer pub.Close()
	}

	l := &loader{
		rides: postgres.NewRideRepo(db),
		runs:  postgres.NewIngestRunRepo(db),
		pub:   pub,
		http:  &http.Client{Timeout: 120 * time.Second},
		loc:   loc,
		batch: cfg.Analytics.BatchSize,
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, 4) // max 4 concurrent downloads

	for _, month := range manifest.Months {
		if len(nameFilter) > 0 && !nameFilter[month.Name] {
			continue
		}

		wg.Add(1)
		go func(m MonthEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := l.ingestMonth(ctx, m); err != nil {
				log.Printf("ERROR [%s]: %v", m.Name, err)
			}
		}(month)
	}

	wg.Wait()
	log.Println("ingestion complete")
}

// ---------------------------------------------------------------------------
// Per-month ingestion
// ---------------------------------------------------------------------------

type loader struct {
	rides *postgres.RideRepo
	runs  *postgres.IngestRunRepo
	pub   *natsadapter.Publisher
	http  *http.Client
	loc   *time.Location
	batch int
}

func (l *loader) ingestMonth(ctx context.Context, m MonthEntry) error {
	started := time.Now()

	run := &domain.IngestRun{
		Source:    m.Name,
		Status:    domain.IngestRunning,
		StartedAt: started.UTC(),
	}
	if err := l.runs.Create(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	loadErr := l.loadSource(ctx, m, run)

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Status = domain.IngestCompleted
	if loadErr != nil {
		run.Status = domain.IngestFailed
		run.Error = loadErr.Error()
	}
	if err := l.runs.Finish(ctx, run); err != nil {
		log.Printf("[%s] finish run: %v", m.Name, err)
	}
	if loadErr != nil {
		return loadErr
	}

	metrics.IngestDuration.WithLabelValues(m.Name).Observe(time.Since(started).Seconds())
	log.Printf("[%s] done: %d read, %d loaded, %d skipped in %s",
		m.Name, run.RowsRead, run.RowsLoaded, run.RowsSkipped, time.Since(started).Round(time.Second))

	if l.pub != nil {
		if err := l.pub.PublishIngestCompleted(ctx, run); err != nil {
			log.Printf("[%s] publish: %v", m.Name, err)
		}
	}
	return nil
}

func (l *loader) loadSource(ctx context.Context, m MonthEntry, run *domain.IngestRun) error {
	rc, err := l.open(m)
	if err != nil {
		return err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	cols := indexColumns(header)
	for _, required := range []string{"ride_id", "started_at", "ended_at", "start_lat", "start_lng"} {
		if _, ok := cols[required]; !ok {
			return fmt.Errorf("column %q missing from %s", required, m.Name)
		}
	}

	batch := make([]domain.Ride, 0, l.batch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		inserted, err := l.rides.InsertBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		run.RowsLoaded += inserted
		metrics.RidesIngested.WithLabelValues(m.Name).Add(float64(inserted))
		batch = batch[:0]
		return nil
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			run.RowsRead++
			run.RowsSkipped++
			metrics.RowsSkipped.WithLabelValues(m.Name, "malformed_row").Inc()
			continue
		}
		run.RowsRead++

		ride, reason := parseRide(record, cols, l.loc)
		if reason != "" {
			run.RowsSkipped++
			metrics.RowsSkipped.WithLabelValues(m.Name, reason).Inc()
			continue
		}

		batch = append(batch, *ride)
		if len(batch) >= l.batch {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	return flush()
}

// ---------------------------------------------------------------------------
// Source access
// ---------------------------------------------------------------------------

func (l *loader) open(m MonthEntry) (io.ReadCloser, error) {
	switch {
	case m.URL != "":
		log.Printf("[%s] downloading %s", m.Name, m.URL)
		resp, err := l.http.Get(m.URL)
		if err != nil {
			return nil, fmt.Errorf("download: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, m.URL)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return openTripCSV(body)

	case m.Path != "":
		if strings.HasSuffix(strings.ToLower(m.Path), ".zip") {
			body, err := os.ReadFile(m.Path)
			if err != nil {
				return nil, err
			}
			return openTripCSV(body)
		}
		return os.Open(m.Path)
	}

	return nil, fmt.Errorf("source %s has neither url nor path", m.Name)
}

// openTripCSV finds the trip export inside a monthly archive. The published
// zips carry one data CSV plus __MACOSX metadata entries.
func openTripCSV(body []byte) (io.ReadCloser, error) {
	if !bytes.HasPrefix(body, []byte("PK")) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "__MACOSX") || !strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			continue
		}
		return f.Open()
	}
	return nil, fmt.Errorf("no csv found in archive")
}

// ---------------------------------------------------------------------------
// Row parsing
// ---------------------------------------------------------------------------

// timestampLayout covers every published export; time.Parse tolerates the
// fractional seconds the newer files carry.
const timestampLayout = "2006-01-02 15:04:05"

// parseRide converts one export record. A non-empty reason means the row
// was dropped by cleaning.
func parseRide(record []string, cols map[string]int, loc *time.Location) (*domain.Ride, string) {
	rideID := getField(record, cols, "ride_id")
	if rideID == "" {
		return nil, "missing_ride_id"
	}

	startedAt, err := time.ParseInLocation(timestampLayout, getField(record, cols, "started_at"), loc)
	if err != nil {
		return nil, "bad_timestamp"
	}
	endedAt, err := time.ParseInLocation(timestampLayout, getField(record, cols, "ended_at"), loc)
	if err != nil {
		return nil, "bad_timestamp"
	}
	if !endedAt.After(startedAt) {
		return nil, "non_positive_duration"
	}

	startLat, latErr := strconv.ParseFloat(getField(record, cols, "start_lat"), 64)
	startLng, lngErr := strconv.ParseFloat(getField(record, cols, "start_lng"), 64)
	if latErr != nil || lngErr != nil || !finiteCoord(startLat, startLng) || (startLat == 0 && startLng == 0) {
		return nil, "bad_start_location"
	}

	ride := &domain.Ride{
		RideID:           rideID,
		RideableType:     getField(record, cols, "rideable_type"),
		StartedAt:        startedAt,
		EndedAt:          endedAt,
		StartStationID:   getField(record, cols, "start_station_id"),
		StartStationName: getField(record, cols, "start_station_name"),
		EndStationID:     getField(record, cols, "end_station_id"),
		EndStationName:   getField(record, cols, "end_station_name"),
		StartLocation:    domain.GeoPoint{Lat: startLat, Lon: startLng},
		MemberCasual:     getField(record, cols, "member_casual"),
	}

	// Dockless trips can end without coordinates. The end point is kept
	// only when both values parse to finite numbers, so garbage here never
	// reaches station resolution.
	endLat, latErr := strconv.ParseFloat(getField(record, cols, "end_lat"), 64)
	endLng, lngErr := strconv.ParseFloat(getField(record, cols, "end_lng"), 64)
	if latErr == nil && lngErr == nil && finiteCoord(endLat, endLng) && !(endLat == 0 && endLng == 0) {
		ride.EndLocation = &domain.GeoPoint{Lat: endLat, Lon: endLng}
	}

	return ride, ""
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func indexColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		// Strip BOM from first column
		col = strings.TrimPrefix(col, "\xef\xbb\xbf")
		m[strings.TrimSpace(col)] = i
	}
	return m
}

func getField(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func finiteCoord(lat, lng float64) bool {
	return !math.IsNaN(lat) && !math.IsInf(lat, 0) && !math.IsNaN(lng) && !math.IsInf(lng, 0)
}
