package ports

import (
	"context"

	"github.com/samirrijal/pixgeo/internal/core/domain"
)

// ImageRepository persists captured frames and their poses.
type ImageRepository interface {
	Upsert(ctx context.Context, image *domain.Image) error
	GetByID(ctx context.Context, id string) (*domain.Image, error)
}

// TargetRepository persists geolocated targets.
type TargetRepository interface {
	InsertBatch(ctx context.Context, targets []domain.Target) error
	GetByID(ctx context.Context, id string) (*domain.Target, error)
	ListByImage(ctx context.Context, imageID string, offset, limit int) ([]domain.Target, int, error)
	FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.Target, error)
}
