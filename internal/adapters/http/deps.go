package http

import (
	"github.com/nats-io/nats.go"
	"github.com/winstonk6/case-study-bike-share/internal/adapters/postgres"
	"github.com/winstonk6/case-study-bike-share/internal/adapters/valkey"
	"github.com/winstonk6/case-study-bike-share/internal/core/ports"
	"github.com/winstonk6/case-study-bike-share/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Stations  *usecases.StationService
	Analytics *usecases.AnalyticsService
	Rides     ports.RideRepository
	Runs      ports.IngestRunRepository
	NATS      *nats.Conn
	DB        *postgres.DB
	Cache     *valkey.Cache
}
