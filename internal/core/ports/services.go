package ports

import (
	"context"

	"github.com/samirrijal/parkpass/internal/core/domain"
)

// EventPublisher publishes session state changes to a message broker.
type EventPublisher interface {
	PublishSnapshot(ctx context.Context, sessionID string, snap domain.Snapshot) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
