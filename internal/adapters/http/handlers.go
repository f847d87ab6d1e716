package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/winstonk6/case-study-bike-share/internal/core/domain"
)

// DatasetStatus holds row counts and freshness markers for the loaded data.
type DatasetStatus struct {
	Rides        int64             `json:"rides"`
	Stations     int64             `json:"stations"`
	LatestRide   string            `json:"latest_ride,omitempty"`
	LastResolved string            `json:"last_resolved,omitempty"`
	LastIngest   *domain.IngestRun `json:"last_ingest,omitempty"`
}

// DatasetStatusHandler returns row counts from the ride and station tables.
func DatasetStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.DB == nil {
			return errInternal(c, "database not available")
		}

		var status DatasetStatus
		row := deps.DB.Pool.QueryRow(c.Context(), `
			SELECT
				(SELECT count(*) FROM rides),
				(SELECT count(*) FROM stations),
				COALESCE((SELECT max(ended_at)::text FROM rides), ''),
				COALESCE((SELECT max(resolved_at)::text FROM stations), '')
		`)
		if err := row.Scan(&status.Rides, &status.Stations,
			&status.LatestRide, &status.LastResolved); err != nil {
			return errInternal(c, err.Error())
		}

		if deps.Runs != nil {
			if runs, err := deps.Runs.Latest(c.Context(), 1); err == nil && len(runs) > 0 {
				status.LastIngest = &runs[0]
			}
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(status)
	}
}

// ListStationsHandler returns one page of the canonical station catalog.
func ListStationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 50)

		stations, total, err := deps.Stations.List(c.Context(), offset, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: int(total)}
		SetLinkHeaders(c, pg)
		c.Set("Cache-Control", "public, max-age=300")
		return c.JSON(PaginatedResponse{Data: stations, Pagination: pg})
	}
}

// NearbyStationsHandler returns stations within a radius of a point.
func NearbyStationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat := c.QueryFloat("lat", 0)
		lon := c.QueryFloat("lon", 0)
		radius := c.QueryFloat("radius", 500)
		limit := c.QueryInt("limit", 20)

		if lat == 0 || lon == 0 {
			return errBadRequest(c, "lat and lon are required")
		}
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return errBadRequest(c, "lat/lon out of range")
		}
		if radius <= 0 || radius > 10000 {
			return errBadRequest(c, "radius must be between 1 and 10000 meters")
		}

		stations, err := deps.Stations.FindNearby(c.Context(), lat, lon, radius, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=300")
		return c.JSON(stations)
	}
}

// SearchStationsHandler performs fuzzy search on station names.
func SearchStationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := c.Query("q")
		if query == "" {
			return errBadRequest(c, "q query parameter is required")
		}
		if len(query) > 200 {
			return errBadRequest(c, "query too long (max 200 characters)")
		}
		limit := c.QueryInt("limit", 20)

		// An optional lat/lon pair restricts matches to roughly 10 km around it.
		var near *domain.GeoPoint
		lat := c.QueryFloat("lat", 0)
		lon := c.QueryFloat("lon", 0)
		if lat != 0 || lon != 0 {
			if lat == 0 || lon == 0 {
				return errBadRequest(c, "lat and lon must be given together")
			}
			near = &domain.GeoPoint{Lat: lat, Lon: lon}
		}

		stations, err := deps.Stations.Search(c.Context(), query, near, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}

		return c.JSON(stations)
	}
}

// PopularStationsHandler ranks stations by combined ride traffic.
func PopularStationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 20)

		stations, err := deps.Stations.Popularity(c.Context(), limit)
		if err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=600")
		return c.JSON(stations)
	}
}

// GetStationHandler returns a single canonical station by its station id.
func GetStationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "station id is required")
		}
		station, err := deps.Stations.GetByStationID(c.Context(), id)
		if err != nil {
			return errNotFound(c, "station not found")
		}
		return c.JSON(station)
	}
}

// GetRideHandler returns a single ride by its ride id.
func GetRideHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "ride id is required")
		}
		ride, err := deps.Rides.GetByRideID(c.Context(), id)
		if err != nil {
			return errNotFound(c, "ride not found")
		}
		return c.JSON(ride)
	}
}

// RiderSummaryHandler returns ride volume and durations per rider type.
func RiderSummaryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rows, err := deps.Analytics.Summary(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set("Cache-Control", "public, max-age=300")
		return c.JSON(rows)
	}
}

// WeekdayStatsHandler returns ride volume per day of week and rider type.
func WeekdayStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rows, err := deps.Analytics.Weekday(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set("Cache-Control", "public, max-age=300")
		return c.JSON(rows)
	}
}

// MonthlyStatsHandler returns ride volume per calendar month and rider type.
func MonthlyStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rows, err := deps.Analytics.Monthly(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set("Cache-Control", "public, max-age=300")
		return c.JSON(rows)
	}
}

// HourlyStatsHandler returns ride volume per hour of day and rider type.
func HourlyStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rows, err := deps.Analytics.Hourly(c.Context())
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set("Cache-Control", "public, max-age=300")
		return c.JSON(rows)
	}
}
