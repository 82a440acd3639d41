package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samirrijal/pixgeo/internal/core/domain"
	"github.com/samirrijal/pixgeo/internal/core/ports"
	"github.com/samirrijal/pixgeo/internal/pkg/metrics"
)

// DefaultNearbyTTL is how long a nearby-target query stays cached, in seconds.
const DefaultNearbyTTL = 60

// TargetService handles queries over stored targets.
type TargetService struct {
	targets   ports.TargetRepository
	cache     ports.CacheService
	nearbyTTL int
}

// NewTargetService creates a new TargetService.
func NewTargetService(targets ports.TargetRepository, cache ports.CacheService) *TargetService {
	return &TargetService{targets: targets, cache: cache, nearbyTTL: DefaultNearbyTTL}
}

// SetNearbyTTL overrides DefaultNearbyTTL. Non-positive values are ignored.
func (s *TargetService) SetNearbyTTL(seconds int) {
	if seconds > 0 {
		s.nearbyTTL = seconds
	}
}

// GetByID returns a single target.
func (s *TargetService) GetByID(ctx context.Context, id string) (*domain.Target, error) {
	return s.targets.GetByID(ctx, id)
}

// ListByImage returns one page of the targets found in an image and the total count.
func (s *TargetService) ListByImage(ctx context.Context, imageID string, offset, limit int) ([]domain.Target, int, error) {
	if imageID == "" {
		return nil, 0, fmt.Errorf("image id must not be empty")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.targets.ListByImage(ctx, imageID, offset, limit)
}

// FindNearby returns targets within radiusMeters of the given point, closest first.
func (s *TargetService) FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.Target, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("coordinates out of range: %g, %g", lat, lon)
	}
	if radiusMeters <= 0 {
		return nil, fmt.Errorf("radius must be positive")
	}
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	cacheKey := fmt.Sprintf("targets:nearby:%.5f:%.5f:%.0f:%d", lat, lon, radiusMeters, limit)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var targets []domain.Target
			if err := json.Unmarshal(data, &targets); err == nil {
				metrics.CacheHits.WithLabelValues("targets_nearby").Inc()
				return targets, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("targets_nearby").Inc()
	}

	targets, err := s.targets.FindNearby(ctx, lat, lon, radiusMeters, limit)
	if err != nil {
		return nil, err
	}

	// Short TTL: new frames keep adding targets.
	if s.cache != nil {
		if data, err := json.Marshal(targets); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.nearbyTTL)
		}
	}

	return targets, nil
}
