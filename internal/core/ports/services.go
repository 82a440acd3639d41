package ports

import (
	"context"
	"io"

	"github.com/samirrijal/pixgeo/internal/core/domain"
)

// PoseProvider reads the capture pose of an image file.
// Errors wrap domain.ErrMetadataUnavailable or domain.ErrMalformedMetadata.
type PoseProvider interface {
	Pose(ctx context.Context, path string) (*domain.CameraPose, error)
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishTarget(ctx context.Context, target *domain.Target) error
	PublishRequest(ctx context.Context, req *domain.GeolocationRequest) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeRequests(ctx context.Context, handler func(ctx context.Context, req *domain.GeolocationRequest) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// ObjectStore archives original frames.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}
