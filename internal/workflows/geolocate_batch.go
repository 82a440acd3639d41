package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/pixgeo/internal/core/domain"
)

// Activity names as registered from GeolocationActivities.
const (
	ReadPoseActivity            = "ReadPose"
	GeolocateDetectionsActivity = "GeolocateDetections"
)

// BatchInput is the input for the batch geolocation workflow.
type BatchInput struct {
	BatchID string      `json:"batch_id"`
	Items   []BatchItem `json:"items"`
	Strict  bool        `json:"strict,omitempty"`
}

// BatchItem is one frame of a batch. Pose overrides the frame's metadata.
type BatchItem struct {
	ImageID    string             `json:"image_id,omitempty"`
	ImagePath  string             `json:"image_path"`
	Digest     string             `json:"digest,omitempty"`
	Pose       *domain.CameraPose `json:"pose,omitempty"`
	Detections []domain.Detection `json:"detections"`
}

// ItemResult summarizes one frame.
type ItemResult struct {
	ImageID  string `json:"image_id"`
	Targets  int    `json:"targets"`
	Failures int    `json:"failures"`
	Error    string `json:"error,omitempty"`
}

// BatchResult is the output of the batch geolocation workflow.
type BatchResult struct {
	BatchID   string       `json:"batch_id"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Items     []ItemResult `json:"items"`
}

// GeolocateBatchWorkflow reads the pose of every frame in parallel, then
// geolocates each frame's detections. A failing frame is reported in the
// result and does not fail the batch.
func GeolocateBatchWorkflow(ctx workflow.Context, input BatchInput) (BatchResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting geolocation batch", "batchID", input.BatchID, "images", len(input.Items))

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeUnusable},
		},
	})

	poses := make([]workflow.Future, len(input.Items))
	for i, item := range input.Items {
		if item.Pose == nil {
			poses[i] = workflow.ExecuteActivity(ctx, ReadPoseActivity, item.ImagePath, item.Digest)
		}
	}

	result := BatchResult{BatchID: input.BatchID, Items: make([]ItemResult, 0, len(input.Items))}
	for i, item := range input.Items {
		imageID := item.ImageID
		if imageID == "" {
			// retried activities must upsert the same row
			imageID = fmt.Sprintf("%s-%d", input.BatchID, i)
		}

		ir, err := geolocateItem(ctx, imageID, item, poses[i], input.Strict)
		if err != nil {
			if temporal.IsCanceledError(err) {
				return result, err
			}
			logger.Warn("frame failed", "imageID", imageID, "error", err)
			ir = ItemResult{ImageID: imageID, Error: err.Error()}
			result.Failed++
		} else {
			result.Succeeded++
		}
		result.Items = append(result.Items, ir)
	}

	logger.Info("Geolocation batch finished", "batchID", input.BatchID,
		"succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}

func geolocateItem(ctx workflow.Context, imageID string, item BatchItem, poseFuture workflow.Future, strict bool) (ItemResult, error) {
	pose := item.Pose
	if poseFuture != nil {
		if err := poseFuture.Get(ctx, &pose); err != nil {
			return ItemResult{}, err
		}
	}

	req := domain.GeolocationRequest{
		ImageID:    imageID,
		ImagePath:  item.ImagePath,
		Digest:     item.Digest,
		Pose:       pose,
		Detections: item.Detections,
		Strict:     strict,
	}

	var ir ItemResult
	if err := workflow.ExecuteActivity(ctx, GeolocateDetectionsActivity, req).Get(ctx, &ir); err != nil {
		return ItemResult{}, err
	}
	return ir, nil
}
