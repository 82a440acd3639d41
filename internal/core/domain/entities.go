package domain

import "time"

// BoundingBox is a detector box in pixel space.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the middle of the box.
func (b BoundingBox) Center() PixelLocation {
	return PixelLocation{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Detection is an object found in an image, expressed in pixel space.
type Detection struct {
	Pixel      *PixelLocation `json:"pixel,omitempty"`
	Box        *BoundingBox   `json:"box,omitempty"`
	Label      string         `json:"label,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
}

// Anchor returns the pixel to project: the explicit pixel, else the box center.
func (d Detection) Anchor() (PixelLocation, bool) {
	switch {
	case d.Pixel != nil:
		return *d.Pixel, true
	case d.Box != nil:
		return d.Box.Center(), true
	default:
		return PixelLocation{}, false
	}
}

// Image is a captured frame and the pose it was taken with.
type Image struct {
	ID         string     `json:"id"`
	Filename   string     `json:"filename,omitempty"`
	Digest     string     `json:"digest,omitempty"` // hex sha256 of the file contents
	Pose       CameraPose `json:"pose"`
	Footprint  *Bounds    `json:"footprint,omitempty"` // ground box covered by the frame, when every corner hits the ground
	StorageKey string     `json:"storage_key,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Target is a detection projected onto the ground.
type Target struct {
	ID              string        `json:"id"`
	ImageID         string        `json:"image_id"`
	Label           string        `json:"label,omitempty"`
	Confidence      float64       `json:"confidence,omitempty"`
	Pixel           PixelLocation `json:"pixel"`
	Location        GeoPoint      `json:"location"`
	GroundDistanceM float64       `json:"ground_distance_m"`
	BearingDeg      float64       `json:"bearing_deg"`
	OutOfBounds     bool          `json:"out_of_bounds,omitempty"`
	Distance        *float64      `json:"distance,omitempty"` // computed field for nearby queries
	CreatedAt       time.Time     `json:"created_at"`
}

// ProjectionResult is the outcome of projecting one pixel.
type ProjectionResult struct {
	Pixel           PixelLocation `json:"pixel"`
	Location        *GeoPoint     `json:"location,omitempty"`
	NorthingM       float64       `json:"northing_m"`
	EastingM        float64       `json:"easting_m"`
	GroundDistanceM float64       `json:"ground_distance_m"`
	BearingDeg      float64       `json:"bearing_deg"`
	OutOfBounds     bool          `json:"out_of_bounds,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// GeolocationRequest asks for the detections of one image to be placed on the ground.
// Either Pose or ImagePath must be set; Pose wins when both are.
type GeolocationRequest struct {
	ImageID    string      `json:"image_id,omitempty"`
	ImagePath  string      `json:"image_path,omitempty"`
	Filename   string      `json:"filename,omitempty"`
	Digest     string      `json:"digest,omitempty"`
	Pose       *CameraPose `json:"pose,omitempty"`
	Detections []Detection `json:"detections"`
	Strict     bool        `json:"strict,omitempty"`
}

// DetectionFailure records why a detection produced no target.
type DetectionFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// GeolocatedImage is the result of a GeolocationRequest.
type GeolocatedImage struct {
	Image    Image              `json:"image"`
	Targets  []Target           `json:"targets"`
	Failures []DetectionFailure `json:"failures,omitempty"`
}
