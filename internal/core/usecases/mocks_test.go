package usecases_test

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/samirrijal/pixgeo/internal/core/domain"
)

var errNotCached = errors.New("not cached")

// --- Mock PoseProvider ---

type mockPoseProvider struct {
	poseFn func(ctx context.Context, path string) (*domain.CameraPose, error)
	calls  int
}

func (m *mockPoseProvider) Pose(ctx context.Context, path string) (*domain.CameraPose, error) {
	m.calls++
	if m.poseFn != nil {
		return m.poseFn(ctx, path)
	}
	return nil, domain.ErrMetadataUnavailable
}

// --- Mock ImageRepository ---

type mockImageRepo struct {
	upsertFn  func(ctx context.Context, image *domain.Image) error
	getByIDFn func(ctx context.Context, id string) (*domain.Image, error)
	upserted  []domain.Image
}

func (m *mockImageRepo) Upsert(ctx context.Context, image *domain.Image) error {
	m.upserted = append(m.upserted, *image)
	if m.upsertFn != nil {
		return m.upsertFn(ctx, image)
	}
	return nil
}

func (m *mockImageRepo) GetByID(ctx context.Context, id string) (*domain.Image, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

// --- Mock TargetRepository ---

type mockTargetRepo struct {
	insertBatchFn func(ctx context.Context, targets []domain.Target) error
	getByIDFn     func(ctx context.Context, id string) (*domain.Target, error)
	listByImageFn func(ctx context.Context, imageID string, offset, limit int) ([]domain.Target, int, error)
	findNearbyFn  func(ctx context.Context, lat, lon, radius float64, limit int) ([]domain.Target, error)
	inserted      []domain.Target
}

func (m *mockTargetRepo) InsertBatch(ctx context.Context, targets []domain.Target) error {
	m.inserted = append(m.inserted, targets...)
	if m.insertBatchFn != nil {
		return m.insertBatchFn(ctx, targets)
	}
	return nil
}

func (m *mockTargetRepo) GetByID(ctx context.Context, id string) (*domain.Target, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockTargetRepo) ListByImage(ctx context.Context, imageID string, offset, limit int) ([]domain.Target, int, error) {
	if m.listByImageFn != nil {
		return m.listByImageFn(ctx, imageID, offset, limit)
	}
	return nil, 0, nil
}

func (m *mockTargetRepo) FindNearby(ctx context.Context, lat, lon, radius float64, limit int) ([]domain.Target, error) {
	if m.findNearbyFn != nil {
		return m.findNearbyFn(ctx, lat, lon, radius, limit)
	}
	return nil, nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	err       error
	published []domain.Target
	requests  []domain.GeolocationRequest
}

func (m *mockPublisher) PublishTarget(ctx context.Context, target *domain.Target) error {
	m.published = append(m.published, *target)
	return m.err
}

func (m *mockPublisher) PublishRequest(ctx context.Context, req *domain.GeolocationRequest) error {
	m.requests = append(m.requests, *req)
	return m.err
}

// --- In-memory CacheService ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]int
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]int{}}
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errNotCached
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.ttls[key] = ttlSeconds
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// --- Mock ObjectStore ---

type mockStore struct {
	err         error
	keys        []string
	contentType string
	size        int64
	body        []byte
}

func (m *mockStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.err != nil {
		return m.err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.keys = append(m.keys, key)
	m.contentType = contentType
	m.size = size
	m.body = body
	return nil
}
