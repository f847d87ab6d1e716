package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/winstonk6/case-study-bike-share/internal/core/canonical"
	"github.com/winstonk6/case-study-bike-share/internal/core/domain"
	"github.com/winstonk6/case-study-bike-share/internal/core/ports"
)

// upsertChunk bounds how many station rows go into one pgx batch.
const upsertChunk = 500

// StationService handles the canonical station catalog.
type StationService struct {
	stations ports.StationRepository
	rides    ports.RideRepository
	cache    ports.CacheService
}

// NewStationService creates a new StationService.
func NewStationService(stations ports.StationRepository, rides ports.RideRepository, cache ports.CacheService) *StationService {
	return &StationService{stations: stations, rides: rides, cache: cache}
}

// ResolveAndStore rebuilds the catalog from the loaded rides: it streams
// the grouped end-station observations through the resolver and replaces
// the stations table with the winners. It returns how many stations the
// catalog now holds.
func (s *StationService) ResolveAndStore(ctx context.Context) (int, error) {
	resolver := canonical.New()
	err := s.rides.EndStationObservations(ctx, func(obs canonical.Observation, n int64) error {
		resolver.AddN(obs, n)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("stream observations: %w", err)
	}

	resolved := resolver.ResolveSorted()
	if len(resolved) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	stations := make([]domain.Station, 0, len(resolved))
	for _, st := range resolved {
		stations = append(stations, domain.Station{
			StationID:        st.StationID,
			Name:             st.Name,
			Location:         domain.GeoPoint{Lat: st.Lat, Lon: st.Lng},
			Observations:     st.Observations,
			Variants:         st.Variants,
			DispersionMeters: st.DispersionMeters,
			ResolvedAt:       now,
		})
	}

	for start := 0; start < len(stations); start += upsertChunk {
		end := start + upsertChunk
		if end > len(stations) {
			end = len(stations)
		}
		if err := s.stations.UpsertBatch(ctx, stations[start:end]); err != nil {
			return 0, fmt.Errorf("upsert stations: %w", err)
		}
	}

	return len(stations), nil
}

// List returns one page of the catalog plus the total count.
func (s *StationService) List(ctx context.Context, offset, limit int) ([]domain.Station, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	stations, err := s.stations.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.stations.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return stations, total, nil
}

// GetByStationID returns a single station.
func (s *StationService) GetByStationID(ctx context.Context, stationID string) (*domain.Station, error) {
	cacheKey := "stations:id:" + stationID
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var station domain.Station
			if err := json.Unmarshal(data, &station); err == nil {
				return &station, nil
			}
		}
	}

	station, err := s.stations.GetByStationID(ctx, stationID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(station); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 600) // 10 min for single station
		}
	}

	return station, nil
}

// FindNearby returns stations within radiusMeters of the given point.
func (s *StationService) FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.Station, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	// Try cache
	cacheKey := fmt.Sprintf("stations:nearby:%.4f:%.4f:%.0f:%d", lat, lon, radiusMeters, limit)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var stations []domain.Station
			if err := json.Unmarshal(data, &stations); err == nil {
				return stations, nil
			}
		}
	}

	stations, err := s.stations.FindNearby(ctx, lat, lon, radiusMeters, limit)
	if err != nil {
		return nil, err
	}

	// Cache for 5 minutes (the catalog only moves on refresh)
	if s.cache != nil {
		if data, err := json.Marshal(stations); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 300)
		}
	}

	return stations, nil
}

// Search performs fuzzy + full-text search on station names.
func (s *StationService) Search(ctx context.Context, query string, near *domain.GeoPoint, limit int) ([]domain.Station, error) {
	if query == "" {
		return nil, fmt.Errorf("search query must not be empty")
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	cacheKey := fmt.Sprintf("stations:search:%s:%d", query, limit)
	if near != nil {
		cacheKey = fmt.Sprintf("%s:%.4f:%.4f", cacheKey, near.Lat, near.Lon)
	}
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var stations []domain.Station
			if err := json.Unmarshal(data, &stations); err == nil {
				return stations, nil
			}
		}
	}

	stations, err := s.stations.Search(ctx, query, near, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(stations); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 300)
		}
	}

	return stations, nil
}

// Popularity returns the busiest stations.
func (s *StationService) Popularity(ctx context.Context, limit int) ([]domain.StationPopularity, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	cacheKey := fmt.Sprintf("stations:popular:%d", limit)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var out []domain.StationPopularity
			if err := json.Unmarshal(data, &out); err == nil {
				return out, nil
			}
		}
	}

	out, err := s.stations.Popularity(ctx, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(out); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 600)
		}
	}

	return out, nil
}
