package domain

import "errors"

var (
	// ErrInvalidPose is returned when a camera pose cannot describe a physical projection
	// (field of view outside (0, 180), non-positive altitude or image size, non-finite values).
	ErrInvalidPose = errors.New("invalid camera pose")

	// ErrDegenerateProjection is returned when the pixel ray never meets the ground plane
	// or the meters-to-degrees conversion is unbounded (|latitude| >= 90).
	ErrDegenerateProjection = errors.New("degenerate projection")

	// ErrPixelOutOfBounds is advisory: callers opting into strict bounds checking receive it.
	ErrPixelOutOfBounds = errors.New("pixel outside image bounds")

	// ErrMetadataUnavailable means the capture metadata could not be read or a required tag is missing.
	ErrMetadataUnavailable = errors.New("capture metadata unavailable")

	// ErrMalformedMetadata means a capture metadata tag is present but cannot be parsed.
	ErrMalformedMetadata = errors.New("malformed capture metadata")

	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")
)
