// Package projection places image pixels on a flat ground plane below a camera.
//
// The model is a pinhole camera with zero roll: the horizontal field of view fixes a
// single focal length in pixels, used for both image axes. A pixel's ray is the camera
// boresight rotated by the pixel's angular offset, and it is intersected with a plane
// Altitude meters below the camera. Ground offsets in meters become degree offsets with a
// fixed-coefficient local radius approximation.
package projection

import (
	"fmt"
	"math"

	"github.com/samirrijal/pixgeo/internal/core/domain"
	"github.com/samirrijal/pixgeo/internal/pkg/geospatial"
)

// Meters per degree of latitude is approximated as base + slope*sin(latitude).
const (
	metersPerDegreeLat      = 110574.0
	metersPerDegreeLatSlope = 1120.0
)

// Rays closer than this to the horizon are treated as never meeting the ground.
const horizonEpsilon = 1e-9

// Ray is a pixel ray in the world frame.
type Ray struct {
	// OffNadir is the signed angle from straight down, in radians.
	// Positive leans toward Yaw, negative leans away from it.
	OffNadir float64
	// Yaw is the compass bearing of the ray in radians, clockwise from north.
	Yaw float64
	// YawOffset is the part of Yaw contributed by the pixel column.
	YawOffset float64
}

// Offset is the ground displacement from the camera's ground point to a pixel's target.
type Offset struct {
	NorthingM       float64
	EastingM        float64
	GroundDistanceM float64 // always >= 0
	BearingDeg      float64 // [0, 360), direction of travel from the camera ground point
}

// Projector projects pixels for one camera pose. It is immutable and safe for concurrent use.
type Projector struct {
	pose domain.CameraPose

	focalPx     float64
	halfWidth   float64
	halfHeight  float64
	boresight   float64 // off-nadir angle of the optical axis, radians
	yaw         float64
	degPerMeter float64
	cosLatitude float64
	altitude    float64
}

// New validates pose and precomputes everything that does not depend on the pixel.
// Errors wrap domain.ErrInvalidPose or domain.ErrDegenerateProjection.
func New(pose domain.CameraPose) (*Projector, error) {
	if err := pose.Validate(); err != nil {
		return nil, err
	}
	if math.Abs(pose.Latitude) >= 90 {
		return nil, fmt.Errorf("%w: latitude %g leaves no longitude scale", domain.ErrDegenerateProjection, pose.Latitude)
	}

	halfWidth := float64(pose.ImageWidth) / 2
	latRad := geospatial.ToRad(pose.Latitude)

	// Stay in degrees until the sum is formed so that a -90 horizon pitch is exactly nadir.
	boresightDeg := pose.GimbalPitch
	if pose.PitchReference != domain.PitchFromNadir {
		boresightDeg = 90 + pose.GimbalPitch
	}

	return &Projector{
		pose:        pose,
		focalPx:     halfWidth / math.Tan(geospatial.ToRad(pose.HorizontalFOV)/2),
		halfWidth:   halfWidth,
		halfHeight:  float64(pose.ImageHeight) / 2,
		boresight:   geospatial.ToRad(boresightDeg),
		yaw:         geospatial.ToRad(pose.GimbalYaw),
		degPerMeter: 1 / (metersPerDegreeLat + metersPerDegreeLatSlope*math.Sin(latRad)),
		cosLatitude: math.Cos(latRad),
		altitude:    pose.Altitude,
	}, nil
}

// Project is the one-shot form of New(pose).Project(pixel).
func Project(pose domain.CameraPose, pixel domain.PixelLocation) (domain.GeoPoint, error) {
	p, err := New(pose)
	if err != nil {
		return domain.GeoPoint{}, err
	}
	return p.Project(pixel)
}

// Pose returns the pose the projector was built from.
func (p *Projector) Pose() domain.CameraPose {
	return p.pose
}

// FocalLengthPx is the pinhole focal length in pixel units.
func (p *Projector) FocalLengthPx() float64 {
	return p.focalPx
}

// InBounds reports whether pixel lies inside the image. Pixels outside are still projected.
func (p *Projector) InBounds(pixel domain.PixelLocation) bool {
	return pixel.InBounds(p.pose.ImageWidth, p.pose.ImageHeight)
}

// Ray returns the world-frame ray through pixel.
func (p *Projector) Ray(pixel domain.PixelLocation) Ray {
	dYaw := math.Atan((pixel.X - p.halfWidth) / p.focalPx)
	// Rows above the center lean the ray toward the horizon.
	dPitch := math.Atan((p.halfHeight - pixel.Y) / p.focalPx)

	return Ray{
		OffNadir:  p.boresight + dPitch,
		Yaw:       p.yaw + dYaw,
		YawOffset: dYaw,
	}
}

// Offset intersects the pixel ray with the ground plane.
// A ray at or above the horizon yields domain.ErrDegenerateProjection.
func (p *Projector) Offset(pixel domain.PixelLocation) (Offset, error) {
	if !pixel.IsFinite() {
		return Offset{}, fmt.Errorf("%w: pixel (%g, %g) is not finite", domain.ErrDegenerateProjection, pixel.X, pixel.Y)
	}
	ray := p.Ray(pixel)
	if math.IsNaN(ray.OffNadir) || math.IsNaN(ray.Yaw) {
		return Offset{}, fmt.Errorf("%w: pixel (%g, %g) has no ray", domain.ErrDegenerateProjection, pixel.X, pixel.Y)
	}
	if math.Abs(ray.OffNadir) >= math.Pi/2-horizonEpsilon {
		return Offset{}, fmt.Errorf("%w: ray through pixel (%g, %g) is %.3f deg from nadir and never meets the ground",
			domain.ErrDegenerateProjection, pixel.X, pixel.Y, geospatial.ToDeg(ray.OffNadir))
	}

	// Signed: negative lies behind the camera along the boresight yaw.
	d := math.Tan(ray.OffNadir) * p.altitude
	if math.IsInf(d, 0) || math.IsNaN(d) {
		return Offset{}, fmt.Errorf("%w: unbounded ground distance for pixel (%g, %g)", domain.ErrDegenerateProjection, pixel.X, pixel.Y)
	}

	// In front of nadir this is northing = cos(yaw)*d, easting = sin(yaw)*d.
	// Behind nadir the lateral part keeps the pixel's side of the frame.
	along := d * math.Cos(ray.YawOffset)
	lateral := math.Abs(d) * math.Sin(ray.YawOffset)
	sinYaw, cosYaw := math.Sincos(p.yaw)

	off := Offset{
		NorthingM:       along*cosYaw - lateral*sinYaw,
		EastingM:        along*sinYaw + lateral*cosYaw,
		GroundDistanceM: math.Abs(d),
		BearingDeg:      geospatial.NormalizeBearing(geospatial.ToDeg(ray.Yaw)),
	}
	if off.GroundDistanceM > 0 {
		off.BearingDeg = geospatial.NormalizeBearing(geospatial.ToDeg(math.Atan2(off.EastingM, off.NorthingM)))
	}
	return off, nil
}

// Locate converts a ground offset from the camera's ground point into coordinates.
func (p *Projector) Locate(off Offset) (domain.GeoPoint, error) {
	pt := domain.GeoPoint{
		Lat: p.pose.Latitude + off.NorthingM*p.degPerMeter,
		Lon: geospatial.WrapLongitude(p.pose.Longitude + off.EastingM*p.degPerMeter/p.cosLatitude),
	}
	if !pt.IsFinite() {
		return domain.GeoPoint{}, fmt.Errorf("%w: non-finite coordinate", domain.ErrDegenerateProjection)
	}
	if math.Abs(pt.Lat) > 90 {
		return domain.GeoPoint{}, fmt.Errorf("%w: projected latitude %g crosses a pole", domain.ErrDegenerateProjection, pt.Lat)
	}
	return pt, nil
}

// Project returns the ground coordinate depicted by pixel.
func (p *Projector) Project(pixel domain.PixelLocation) (domain.GeoPoint, error) {
	off, err := p.Offset(pixel)
	if err != nil {
		return domain.GeoPoint{}, err
	}
	return p.Locate(off)
}

// Footprint projects the four image corners, clockwise from top-left.
// Oblique frames whose upper corners see the sky have no footprint.
func (p *Projector) Footprint() ([]domain.GeoPoint, error) {
	w, h := float64(p.pose.ImageWidth), float64(p.pose.ImageHeight)
	corners := []domain.PixelLocation{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}

	points := make([]domain.GeoPoint, 0, len(corners))
	for _, c := range corners {
		pt, err := p.Project(c)
		if err != nil {
			return nil, fmt.Errorf("corner (%g, %g): %w", c.X, c.Y, err)
		}
		points = append(points, pt)
	}
	return points, nil
}
