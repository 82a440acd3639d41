package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/pixgeo/internal/core/domain"
	"github.com/samirrijal/pixgeo/internal/core/usecases"
)

// ErrTypeUnusable marks activity failures that no retry can fix: the frame's
// metadata or pose cannot be turned into a projection.
const ErrTypeUnusable = "UnusableFrame"

// GeolocationActivities holds the activity implementations for the batch workflow.
type GeolocationActivities struct {
	Geolocation *usecases.GeolocationService
	// PitchReference is applied to manifest poses that do not name one.
	PitchReference domain.PitchReference
}

// ReadPose extracts the capture pose of a frame on the worker's file system.
func (a *GeolocationActivities) ReadPose(ctx context.Context, path, digest string) (*domain.CameraPose, error) {
	pose, err := a.Geolocation.PoseForImage(ctx, path, digest)
	if err != nil {
		return nil, classify(fmt.Errorf("read pose %s: %w", path, err))
	}
	if pose.PitchReference == "" {
		pose.PitchReference = a.PitchReference
	}
	return pose, nil
}

// GeolocateDetections projects and stores the detections of one frame.
func (a *GeolocationActivities) GeolocateDetections(ctx context.Context, req domain.GeolocationRequest) (ItemResult, error) {
	if req.Pose != nil && req.Pose.PitchReference == "" && a.PitchReference != "" {
		pose := *req.Pose
		pose.PitchReference = a.PitchReference
		req.Pose = &pose
	}
	res, err := a.Geolocation.GeolocateImage(ctx, req)
	if err != nil {
		return ItemResult{ImageID: req.ImageID}, classify(fmt.Errorf("geolocate %s: %w", req.ImageID, err))
	}

	activity.GetLogger(ctx).Info("frame geolocated",
		"imageID", res.Image.ID, "targets", len(res.Targets), "failures", len(res.Failures))

	return ItemResult{
		ImageID:  res.Image.ID,
		Targets:  len(res.Targets),
		Failures: len(res.Failures),
	}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrMetadataUnavailable),
		errors.Is(err, domain.ErrMalformedMetadata),
		errors.Is(err, domain.ErrInvalidPose),
		errors.Is(err, domain.ErrDegenerateProjection):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeUnusable, err)
	default:
		return err
	}
}
