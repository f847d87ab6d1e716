package ports

import (
	"context"

	"github.com/winstonk6/case-study-bike-share/internal/core/domain"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishIngestCompleted(ctx context.Context, run *domain.IngestRun) error
	PublishRefreshCompleted(ctx context.Context, event *domain.RefreshEvent) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeIngestCompleted(ctx context.Context, handler func(ctx context.Context, run *domain.IngestRun) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
