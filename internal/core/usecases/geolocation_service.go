package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/pixgeo/internal/core/domain"
	"github.com/samirrijal/pixgeo/internal/core/ports"
	"github.com/samirrijal/pixgeo/internal/core/projection"
	"github.com/samirrijal/pixgeo/internal/pkg/metrics"
	"github.com/samirrijal/pixgeo/internal/pkg/telemetry"
)

// DefaultPoseCacheTTL is how long an extracted pose stays cached, in seconds.
// Poses are keyed by file digest and never change.
const DefaultPoseCacheTTL = 24 * 60 * 60

var tracer = otel.Tracer("github.com/samirrijal/pixgeo/internal/core/usecases")

// GeolocationService turns detections in aerial frames into ground targets.
type GeolocationService struct {
	poses     ports.PoseProvider
	images    ports.ImageRepository
	targets   ports.TargetRepository
	publisher ports.EventPublisher
	cache     ports.CacheService
	store     ports.ObjectStore

	poseTTL int
	source  string
	now     func() time.Time
}

// NewGeolocationService creates a new GeolocationService.
// publisher, cache and store may be nil.
func NewGeolocationService(
	poses ports.PoseProvider,
	images ports.ImageRepository,
	targets ports.TargetRepository,
	publisher ports.EventPublisher,
	cache ports.CacheService,
	store ports.ObjectStore,
) *GeolocationService {
	return &GeolocationService{
		poses:     poses,
		images:    images,
		targets:   targets,
		publisher: publisher,
		cache:     cache,
		store:     store,
		poseTTL:   DefaultPoseCacheTTL,
		source:    "api",
		now:       time.Now,
	}
}

// SetPoseCacheTTL overrides DefaultPoseCacheTTL. Non-positive values are ignored.
func (s *GeolocationService) SetPoseCacheTTL(seconds int) {
	if seconds > 0 {
		s.poseTTL = seconds
	}
}

// SetSource labels stored-target metrics with the surface driving this service.
func (s *GeolocationService) SetSource(source string) {
	if source != "" {
		s.source = source
	}
}

// Project places pixels on the ground for a known pose. An unusable pose fails the
// whole call; a pixel whose ray misses the ground only fails its own result.
func (s *GeolocationService) Project(ctx context.Context, pose domain.CameraPose, pixels []domain.PixelLocation) ([]domain.ProjectionResult, error) {
	_, span := tracer.Start(ctx, "GeolocationService.Project")
	defer span.End()
	span.SetAttributes(telemetry.AttrPixels.Int(len(pixels)))

	p, err := projection.New(pose)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid pose")
		return nil, err
	}

	results := make([]domain.ProjectionResult, 0, len(pixels))
	for _, px := range pixels {
		results = append(results, projectPixel(p, px))
	}
	return results, nil
}

func projectPixel(p *projection.Projector, px domain.PixelLocation) domain.ProjectionResult {
	res := domain.ProjectionResult{Pixel: px, OutOfBounds: !p.InBounds(px)}

	off, err := p.Offset(px)
	if err == nil {
		var loc domain.GeoPoint
		loc, err = p.Locate(off)
		if err == nil {
			res.Location = &loc
			res.NorthingM = off.NorthingM
			res.EastingM = off.EastingM
			res.GroundDistanceM = off.GroundDistanceM
			res.BearingDeg = off.BearingDeg
		}
	}

	switch {
	case err != nil:
		res.Error = err.Error()
		metrics.ProjectionsTotal.WithLabelValues("degenerate").Inc()
	case res.OutOfBounds:
		metrics.ProjectionsTotal.WithLabelValues("out_of_bounds").Inc()
	default:
		metrics.ProjectionsTotal.WithLabelValues("ok").Inc()
	}
	return res
}

// PoseForImage reads the capture pose of the file at path, using the pose cache when
// a digest of the file contents is known.
func (s *GeolocationService) PoseForImage(ctx context.Context, path, digest string) (*domain.CameraPose, error) {
	ctx, span := tracer.Start(ctx, "GeolocationService.PoseForImage")
	defer span.End()

	cacheKey := "pose:" + digest
	useCache := s.cache != nil && digest != ""
	if useCache {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var pose domain.CameraPose
			if err := json.Unmarshal(data, &pose); err == nil {
				metrics.CacheHits.WithLabelValues("pose").Inc()
				span.SetAttributes(telemetry.AttrCacheHit.Bool(true))
				return &pose, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("pose").Inc()
	}

	start := time.Now()
	pose, err := s.poses.Pose(ctx, path)
	metrics.PoseReadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PoseReads.WithLabelValues(poseErrorLabel(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "pose read failed")
		return nil, err
	}
	metrics.PoseReads.WithLabelValues("ok").Inc()

	if useCache {
		if data, err := json.Marshal(pose); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.poseTTL)
		}
	}
	return pose, nil
}

func poseErrorLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrMalformedMetadata):
		return "malformed"
	case errors.Is(err, domain.ErrMetadataUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

// GeolocateImage resolves the pose for req, projects every detection and stores the
// image with its targets. Detections that cannot be placed are reported as failures;
// they never abort the request.
func (s *GeolocationService) GeolocateImage(ctx context.Context, req domain.GeolocationRequest) (*domain.GeolocatedImage, error) {
	ctx, span := tracer.Start(ctx, "GeolocationService.GeolocateImage")
	defer span.End()
	span.SetAttributes(telemetry.AttrDetections.Int(len(req.Detections)))

	pose, err := s.resolvePose(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pose unavailable")
		return nil, err
	}

	p, err := projection.New(*pose)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid pose")
		return nil, err
	}

	now := s.now().UTC()
	image := domain.Image{
		ID:        req.ImageID,
		Filename:  req.Filename,
		Digest:    req.Digest,
		Pose:      *pose,
		CreatedAt: now,
	}
	if image.ID == "" {
		image.ID = uuid.NewString()
	}
	if image.Filename == "" && req.ImagePath != "" {
		image.Filename = filepath.Base(req.ImagePath)
	}
	if corners, err := p.Footprint(); err == nil {
		image.Footprint = domain.BoundsOf(corners)
	}
	span.SetAttributes(telemetry.AttrImageID.String(image.ID))

	if s.store != nil && req.ImagePath != "" {
		key, err := s.archive(ctx, image, req.ImagePath)
		if err != nil {
			slog.WarnContext(ctx, "frame archive failed", "image_id", image.ID, "error", err)
		} else {
			image.StorageKey = key
		}
	}

	result := &domain.GeolocatedImage{Image: image, Targets: []domain.Target{}}
	for i, det := range req.Detections {
		target, err := placeDetection(p, det, req.Strict)
		if err != nil {
			result.Failures = append(result.Failures, domain.DetectionFailure{Index: i, Error: err.Error()})
			continue
		}
		target.ID = TargetID(image.ID, i)
		target.ImageID = image.ID
		target.CreatedAt = now
		result.Targets = append(result.Targets, target)
	}

	if err := s.images.Upsert(ctx, &image); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store image: %w", err)
	}
	if len(result.Targets) > 0 {
		if err := s.targets.InsertBatch(ctx, result.Targets); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("store targets: %w", err)
		}
		metrics.TargetsGeolocated.WithLabelValues(s.source).Add(float64(len(result.Targets)))
	}

	if s.publisher != nil {
		for i := range result.Targets {
			if err := s.publisher.PublishTarget(ctx, &result.Targets[i]); err != nil {
				slog.WarnContext(ctx, "publish target failed", "target_id", result.Targets[i].ID, "error", err)
			}
		}
	}

	return result, nil
}

// targetIDSpace namespaces the name-based UUIDs of targets.
var targetIDSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:pixgeo:target"))

// TargetID derives the ID of the target placed from the index-th detection of an image.
// Redelivered requests map onto the same rows.
func TargetID(imageID string, index int) string {
	return uuid.NewSHA1(targetIDSpace, []byte(imageID+"/"+strconv.Itoa(index))).String()
}

func (s *GeolocationService) resolvePose(ctx context.Context, req domain.GeolocationRequest) (*domain.CameraPose, error) {
	if req.Pose != nil {
		return req.Pose, nil
	}
	if req.ImagePath == "" {
		return nil, fmt.Errorf("%w: request has neither a pose nor an image", domain.ErrMetadataUnavailable)
	}
	return s.PoseForImage(ctx, req.ImagePath, req.Digest)
}

func placeDetection(p *projection.Projector, det domain.Detection, strict bool) (domain.Target, error) {
	px, ok := det.Anchor()
	if !ok {
		return domain.Target{}, errors.New("detection has neither a pixel nor a box")
	}

	res := projectPixel(p, px)
	if res.OutOfBounds && strict {
		return domain.Target{}, fmt.Errorf("%w: (%g, %g)", domain.ErrPixelOutOfBounds, px.X, px.Y)
	}
	if res.Error != "" {
		return domain.Target{}, errors.New(res.Error)
	}

	return domain.Target{
		Label:           det.Label,
		Confidence:      det.Confidence,
		Pixel:           px,
		Location:        *res.Location,
		GroundDistanceM: res.GroundDistanceM,
		BearingDeg:      res.BearingDeg,
		OutOfBounds:     res.OutOfBounds,
	}, nil
}

func (s *GeolocationService) archive(ctx context.Context, image domain.Image, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	name := image.Filename
	if name == "" {
		name = filepath.Base(path)
	}
	key := fmt.Sprintf("frames/%s/%s", image.ID, name)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := s.store.Put(ctx, key, f, info.Size(), contentType); err != nil {
		return "", err
	}
	return key, nil
}

// GetImage returns a stored image.
func (s *GeolocationService) GetImage(ctx context.Context, id string) (*domain.Image, error) {
	return s.images.GetByID(ctx, id)
}
