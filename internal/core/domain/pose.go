package domain

import (
	"fmt"
	"math"
	"strings"
)

// PitchReference names the zero of the gimbal pitch angle.
// A pitch of 0 at the image center is a valid straight-down ray only under
// PitchFromNadir; under PitchFromHorizon the same ray is level and never meets the ground.
type PitchReference string

const (
	// PitchFromHorizon: 0 is level, -90 looks straight down (DJI GimbalPitchDegree).
	PitchFromHorizon PitchReference = "horizon"
	// PitchFromNadir: 0 looks straight down, positive tilts toward the yaw bearing.
	PitchFromNadir PitchReference = "nadir"
)

// ParsePitchReference accepts "horizon", "nadir" or "" (horizon).
func ParsePitchReference(s string) (PitchReference, error) {
	switch PitchReference(strings.ToLower(strings.TrimSpace(s))) {
	case "", PitchFromHorizon:
		return PitchFromHorizon, nil
	case PitchFromNadir:
		return PitchFromNadir, nil
	default:
		return "", fmt.Errorf("unknown pitch reference %q (want horizon or nadir)", s)
	}
}

// CameraPose is the camera state at capture time. One per image; never mutated.
type CameraPose struct {
	Latitude       float64        `json:"latitude"`
	Longitude      float64        `json:"longitude"`
	Altitude       float64        `json:"altitude"` // meters above the ground plane
	HorizontalFOV  float64        `json:"horizontal_fov"`
	GimbalYaw      float64        `json:"gimbal_yaw"` // compass bearing, clockwise from north
	GimbalPitch    float64        `json:"gimbal_pitch"`
	PitchReference PitchReference `json:"pitch_reference,omitempty"`
	ImageWidth     int            `json:"image_width"`
	ImageHeight    int            `json:"image_height"`
}

// Position returns the camera's ground point.
func (p CameraPose) Position() GeoPoint {
	return GeoPoint{Lat: p.Latitude, Lon: p.Longitude}
}

// Center returns the optical center of the image.
func (p CameraPose) Center() PixelLocation {
	return PixelLocation{X: float64(p.ImageWidth) / 2, Y: float64(p.ImageHeight) / 2}
}

// Validate checks the pose invariants. Errors wrap ErrInvalidPose.
func (p CameraPose) Validate() error {
	var errs []string

	fields := []struct {
		name string
		v    float64
	}{
		{"latitude", p.Latitude},
		{"longitude", p.Longitude},
		{"altitude", p.Altitude},
		{"horizontal_fov", p.HorizontalFOV},
		{"gimbal_yaw", p.GimbalYaw},
		{"gimbal_pitch", p.GimbalPitch},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			errs = append(errs, f.name+" must be finite")
		}
	}
	if !(p.HorizontalFOV > 0 && p.HorizontalFOV < 180) {
		errs = append(errs, fmt.Sprintf("horizontal_fov must be in (0, 180), got %g", p.HorizontalFOV))
	}
	if !(p.Altitude > 0) {
		errs = append(errs, fmt.Sprintf("altitude must be positive, got %g", p.Altitude))
	}
	if p.ImageWidth <= 0 || p.ImageHeight <= 0 {
		errs = append(errs, fmt.Sprintf("image size must be positive, got %dx%d", p.ImageWidth, p.ImageHeight))
	}
	if _, err := ParsePitchReference(string(p.PitchReference)); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPose, strings.Join(errs, "; "))
	}
	return nil
}

// PixelLocation is a point in image space: origin top-left, Y grows downward.
type PixelLocation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsFinite reports whether both coordinates are real numbers.
func (px PixelLocation) IsFinite() bool {
	return !math.IsNaN(px.X) && !math.IsInf(px.X, 0) &&
		!math.IsNaN(px.Y) && !math.IsInf(px.Y, 0)
}

// InBounds reports whether the pixel lies inside [0, width] x [0, height].
func (px PixelLocation) InBounds(width, height int) bool {
	return px.X >= 0 && px.X <= float64(width) && px.Y >= 0 && px.Y <= float64(height)
}
