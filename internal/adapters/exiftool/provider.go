// Package exiftool reads camera poses from drone imagery by running ExifTool.
package exiftool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/samirrijal/pixgeo/internal/core/domain"
)

// DefaultTimeout bounds a single exiftool invocation.
const DefaultTimeout = 10 * time.Second

// Tags requested from exiftool. Dimensions are only a fallback for the image header.
var queryTags = []string{
	tagPosition,
	tagLatitudeRef,
	tagLongitudeRef,
	tagRelativeAltitude,
	tagFOV,
	tagGimbalYaw,
	tagGimbalPitch,
	tagImageWidth,
	tagImageHeight,
}

// Runner executes an external command and returns what it wrote to stdout and stderr.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Config configures a Provider. Zero values fall back to sensible defaults.
type Config struct {
	Path           string
	Timeout        time.Duration
	PitchReference domain.PitchReference
	Runner         Runner
}

// Provider implements ports.PoseProvider.
type Provider struct {
	path     string
	timeout  time.Duration
	pitchRef domain.PitchReference
	run      Runner
}

// New creates a Provider.
func New(cfg Config) *Provider {
	p := &Provider{
		path:     cfg.Path,
		timeout:  cfg.Timeout,
		pitchRef: cfg.PitchReference,
		run:      cfg.Runner,
	}
	if p.path == "" {
		p.path = "exiftool"
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.pitchRef == "" {
		p.pitchRef = domain.PitchFromHorizon
	}
	if p.run == nil {
		p.run = ExecRunner
	}
	return p
}

// Pose reads the capture pose embedded in the image at path.
func (p *Provider) Pose(ctx context.Context, path string) (*domain.CameraPose, error) {
	tags, err := p.readTags(ctx, path)
	if err != nil {
		return nil, err
	}

	pose, err := poseFromTags(tags)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	pose.PitchReference = p.pitchRef

	w, h, err := imageDimensions(path)
	if err != nil {
		slog.DebugContext(ctx, "image header unreadable, using exiftool dimensions", "path", path, "error", err)
		w, h, err = dimensionsFromTags(tags)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	pose.ImageWidth = w
	pose.ImageHeight = h

	return pose, nil
}

func (p *Provider) readTags(ctx context.Context, path string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := make([]string, 0, len(queryTags)+2)
	args = append(args, "-j")
	for _, t := range queryTags {
		args = append(args, "-"+t)
	}
	args = append(args, path)

	stdout, stderr, err := p.run(ctx, p.path, args...)
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return nil, fmt.Errorf("%w: %s not found", domain.ErrMetadataUnavailable, p.path)
	case ctx.Err() != nil:
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrMetadataUnavailable, path, ctx.Err())
	case err != nil:
		return nil, fmt.Errorf("%w: reading %s: %v: %s", domain.ErrMetadataUnavailable, path, err, strings.TrimSpace(string(stderr)))
	}
	if msg := strings.TrimSpace(string(stderr)); msg != "" {
		return nil, fmt.Errorf("%w: exiftool reported %q for %s", domain.ErrMetadataUnavailable, msg, path)
	}

	var records []map[string]any
	if err := json.Unmarshal(stdout, &records); err != nil {
		return nil, fmt.Errorf("%w: decode exiftool output: %v", domain.ErrMetadataUnavailable, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no metadata for %s", domain.ErrMetadataUnavailable, path)
	}
	return records[0], nil
}
