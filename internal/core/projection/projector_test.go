package projection

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/pixgeo/internal/core/domain"
	"github.com/samirrijal/pixgeo/internal/pkg/geospatial"
)

const tolerance = 1e-9

func nadirPose() domain.CameraPose {
	return domain.CameraPose{
		Latitude:      45.0,
		Longitude:     -93.0,
		Altitude:      100,
		HorizontalFOV: 60,
		GimbalYaw:     0,
		GimbalPitch:   -90,
		ImageWidth:    4000,
		ImageHeight:   3000,
	}
}

func TestProject_CenterPixelStraightDown(t *testing.T) {
	t.Parallel()

	pt, err := Project(nadirPose(), domain.PixelLocation{X: 2000, Y: 1500})
	require.NoError(t, err)
	assert.InDelta(t, 45.0, pt.Lat, tolerance)
	assert.InDelta(t, -93.0, pt.Lon, tolerance)
}

func TestProject_CenterIdentityIgnoresAltitudeFOVAndYaw(t *testing.T) {
	t.Parallel()

	for _, alt := range []float64{0.5, 30, 120, 5000} {
		for _, fov := range []float64{1, 45, 84, 179} {
			for _, yaw := range []float64{-170, 0, 37.5, 359} {
				pose := nadirPose()
				pose.Altitude, pose.HorizontalFOV, pose.GimbalYaw = alt, fov, yaw

				pt, err := Project(pose, pose.Center())
				require.NoError(t, err)
				assert.Equal(t, pose.Latitude, pt.Lat)
				assert.Equal(t, pose.Longitude, pt.Lon)
			}
		}
	}
}

func TestProject_TopEdgeIsAheadOfNadir(t *testing.T) {
	t.Parallel()

	p, err := New(nadirPose())
	require.NoError(t, err)

	px := domain.PixelLocation{X: 2000, Y: 0}
	ray := p.Ray(px)
	assert.Greater(t, ray.OffNadir, 0.0)
	assert.Less(t, ray.OffNadir, math.Pi/2)

	off, err := p.Offset(px)
	require.NoError(t, err)
	assert.Greater(t, off.NorthingM, 0.0)
	assert.InDelta(t, 0, off.EastingM, tolerance)

	// focal = 2000/tan(30deg); angle = atan(1500/focal)
	focal := 2000 / math.Tan(math.Pi/6)
	assert.InDelta(t, focal, p.FocalLengthPx(), 1e-6)
	assert.InDelta(t, 100*1500/focal, off.NorthingM, 1e-6)

	pt, err := p.Project(px)
	require.NoError(t, err)
	assert.Greater(t, pt.Lat, 45.0)
	assert.InDelta(t, -93.0, pt.Lon, tolerance)
}

func TestProject_ForwardRaysMatchPolarDecomposition(t *testing.T) {
	t.Parallel()

	pose := nadirPose()
	pose.GimbalPitch = -55
	pose.GimbalYaw = 212
	p, err := New(pose)
	require.NoError(t, err)

	px := domain.PixelLocation{X: 3300, Y: 700}
	ray := p.Ray(px)
	require.Greater(t, ray.OffNadir, 0.0)

	off, err := p.Offset(px)
	require.NoError(t, err)
	d := math.Tan(ray.OffNadir) * pose.Altitude
	assert.InDelta(t, math.Cos(ray.Yaw)*d, off.NorthingM, 1e-9)
	assert.InDelta(t, math.Sin(ray.Yaw)*d, off.EastingM, 1e-9)
	assert.InDelta(t, geospatial.NormalizeBearing(geospatial.ToDeg(ray.Yaw)), off.BearingDeg, 1e-9)
}

func TestProject_BottomEdgeIsBehindNadir(t *testing.T) {
	t.Parallel()

	p, err := New(nadirPose())
	require.NoError(t, err)

	top, err := p.Offset(domain.PixelLocation{X: 2000, Y: 0})
	require.NoError(t, err)
	bottom, err := p.Offset(domain.PixelLocation{X: 2000, Y: 3000})
	require.NoError(t, err)

	// No fold: rows below center land behind the camera, not mirrored ahead of it.
	assert.InDelta(t, -top.NorthingM, bottom.NorthingM, 1e-6)
	assert.InDelta(t, top.GroundDistanceM, bottom.GroundDistanceM, 1e-6)
	assert.InDelta(t, 0, top.BearingDeg, 1e-6)
	assert.InDelta(t, 180, bottom.BearingDeg, 1e-6)
}

func TestProject_YawRotatesClockwise(t *testing.T) {
	t.Parallel()

	pose := nadirPose()
	pose.GimbalPitch = -60 // 30 deg off nadir
	px := pose.Center()

	var prev Offset
	for i, yaw := range []float64{0, 10, 20, 45, 90} {
		pose.GimbalYaw = yaw
		p, err := New(pose)
		require.NoError(t, err)
		off, err := p.Offset(px)
		require.NoError(t, err)

		assert.InDelta(t, 100*math.Tan(math.Pi/6), off.GroundDistanceM, 1e-6)
		assert.InDelta(t, yaw, off.BearingDeg, 1e-6)
		if i > 0 {
			// Clockwise when viewed from above with north up: cross(prev, cur) in (E, N) is negative.
			cross := prev.EastingM*off.NorthingM - prev.NorthingM*off.EastingM
			assert.Less(t, cross, 0.0, "yaw %v", yaw)
		}
		prev = off
	}

	pose.GimbalYaw = 90
	p, err := New(pose)
	require.NoError(t, err)
	off, err := p.Offset(px)
	require.NoError(t, err)
	assert.InDelta(t, 0, off.NorthingM, 1e-6)
	assert.Greater(t, off.EastingM, 0.0)
}

func TestProject_HorizontalMirrorSymmetry(t *testing.T) {
	t.Parallel()

	pose := nadirPose()
	pose.GimbalPitch = -50
	p, err := New(pose)
	require.NoError(t, err)

	for _, dx := range []float64{1, 250, 1999} {
		for _, y := range []float64{900, 1500, 2900} {
			left, err := p.Offset(domain.PixelLocation{X: 2000 - dx, Y: y})
			require.NoError(t, err)
			right, err := p.Offset(domain.PixelLocation{X: 2000 + dx, Y: y})
			require.NoError(t, err)

			assert.InDelta(t, -left.EastingM, right.EastingM, 1e-9)
			assert.InDelta(t, left.NorthingM, right.NorthingM, 1e-9)
			assert.Less(t, left.EastingM, 0.0)
		}
	}
}

func TestProject_AltitudeScaleInvariance(t *testing.T) {
	t.Parallel()

	pose := nadirPose()
	pose.GimbalPitch = -70
	pose.GimbalYaw = 33
	px := domain.PixelLocation{X: 3100, Y: 400}

	p1, err := New(pose)
	require.NoError(t, err)
	pose.Altitude *= 2
	p2, err := New(pose)
	require.NoError(t, err)

	o1, err := p1.Offset(px)
	require.NoError(t, err)
	o2, err := p2.Offset(px)
	require.NoError(t, err)

	assert.InDelta(t, 2*o1.GroundDistanceM, o2.GroundDistanceM, 1e-9)
	assert.InDelta(t, 2*o1.NorthingM, o2.NorthingM, 1e-9)
	assert.InDelta(t, 2*o1.EastingM, o2.EastingM, 1e-9)
}

func TestProject_MetersToDegreesCoefficients(t *testing.T) {
	t.Parallel()

	pose := nadirPose()
	pose.GimbalPitch = -45 // 45 deg off nadir: ground distance equals altitude
	pose.GimbalYaw = 45
	p, err := New(pose)
	require.NoError(t, err)

	off, err := p.Offset(pose.Center())
	require.NoError(t, err)
	assert.InDelta(t, 100, off.GroundDistanceM, 1e-9)

	lat := geospatial.ToRad(45)
	mtod := 1 / (110574 + 1120*math.Sin(lat))
	pt, err := p.Project(pose.Center())
	require.NoError(t, err)
	assert.InDelta(t, 45+off.NorthingM*mtod, pt.Lat, tolerance)
	assert.InDelta(t, -93+off.EastingM*mtod/math.Cos(lat), pt.Lon, tolerance)

	// The local approximation agrees with a great-circle distance to well under a percent.
	assert.InDelta(t, 100, geospatial.Haversine(45, -93, pt.Lat, pt.Lon), 1)
}

func TestProject_NadirReference(t *testing.T) {
	t.Parallel()

	pose := nadirPose()
	pose.PitchReference = domain.PitchFromNadir
	pose.GimbalPitch = 0

	p, err := New(pose)
	require.NoError(t, err)

	off, err := p.Offset(domain.PixelLocation{X: 2000, Y: 1500})
	require.NoError(t, err, "zero off-nadir angle is a valid edge case")
	assert.Zero(t, off.GroundDistanceM)

	pt, err := p.Project(domain.PixelLocation{X: 2000, Y: 1500})
	require.NoError(t, err)
	assert.Equal(t, domain.GeoPoint{Lat: 45, Lon: -93}, pt)

	// Same physical geometry expressed in both references gives the same answer.
	horizon := nadirPose()
	horizon.GimbalPitch = -60
	nadir := nadirPose()
	nadir.PitchReference = domain.PitchFromNadir
	nadir.GimbalPitch = 30
	px := domain.PixelLocation{X: 1234, Y: 567}
	a, err := Project(horizon, px)
	require.NoError(t, err)
	b, err := Project(nadir, px)
	require.NoError(t, err)
	assert.InDelta(t, a.Lat, b.Lat, 1e-12)
	assert.InDelta(t, a.Lon, b.Lon, 1e-12)
}

func TestProject_NegativeNadirPitchIsNotFolded(t *testing.T) {
	t.Parallel()

	fwd := nadirPose()
	fwd.PitchReference = domain.PitchFromNadir
	fwd.GimbalPitch = 30
	back := fwd
	back.GimbalPitch = -30

	a, err := New(fwd)
	require.NoError(t, err)
	b, err := New(back)
	require.NoError(t, err)

	oa, err := a.Offset(fwd.Center())
	require.NoError(t, err)
	ob, err := b.Offset(back.Center())
	require.NoError(t, err)
	assert.Greater(t, oa.NorthingM, 0.0)
	assert.Less(t, ob.NorthingM, 0.0)
}

func TestProject_RayAtOrAboveHorizon(t *testing.T) {
	t.Parallel()

	pose := nadirPose()
	pose.GimbalPitch = 0 // level camera, horizon reference
	_, err := Project(pose, pose.Center())
	assert.ErrorIs(t, err, domain.ErrDegenerateProjection)

	pose.GimbalPitch = 10 // looking up
	_, err = Project(pose, pose.Center())
	assert.ErrorIs(t, err, domain.ErrDegenerateProjection)

	// Oblique camera: the top edge sees the sky, the bottom edge still hits the ground.
	pose.GimbalPitch = -10
	p, err := New(pose)
	require.NoError(t, err)
	_, err = p.Project(domain.PixelLocation{X: 2000, Y: 0})
	assert.ErrorIs(t, err, domain.ErrDegenerateProjection)
	_, err = p.Project(domain.PixelLocation{X: 2000, Y: 3000})
	assert.NoError(t, err)
}

func TestProject_NonFinitePixel(t *testing.T) {
	t.Parallel()

	p, err := New(nadirPose())
	require.NoError(t, err)

	for _, px := range []domain.PixelLocation{
		{X: math.Inf(1), Y: 1500},
		{X: math.Inf(-1), Y: 1500},
		{X: 2000, Y: math.Inf(1)},
		{X: math.NaN(), Y: 1500},
	} {
		_, err := p.Project(px)
		assert.ErrorIs(t, err, domain.ErrDegenerateProjection, "%+v", px)
		_, err = p.Offset(px)
		assert.ErrorIs(t, err, domain.ErrDegenerateProjection, "%+v", px)
	}
}

func TestNew_InvalidPose(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*domain.CameraPose){
		"zero altitude":        func(p *domain.CameraPose) { p.Altitude = 0 },
		"negative altitude":    func(p *domain.CameraPose) { p.Altitude = -5 },
		"zero fov":             func(p *domain.CameraPose) { p.HorizontalFOV = 0 },
		"fov 180":              func(p *domain.CameraPose) { p.HorizontalFOV = 180 },
		"zero width":           func(p *domain.CameraPose) { p.ImageWidth = 0 },
		"negative height":      func(p *domain.CameraPose) { p.ImageHeight = -1 },
		"nan yaw":              func(p *domain.CameraPose) { p.GimbalYaw = math.NaN() },
		"infinite latitude":    func(p *domain.CameraPose) { p.Latitude = math.Inf(1) },
		"unknown pitch zero":   func(p *domain.CameraPose) { p.PitchReference = "zenith" },
		"nan field of view":    func(p *domain.CameraPose) { p.HorizontalFOV = math.NaN() },
		"nan altitude":         func(p *domain.CameraPose) { p.Altitude = math.NaN() },
		"infinite pitch angle": func(p *domain.CameraPose) { p.GimbalPitch = math.Inf(-1) },
	}
	for name, mutate := range cases {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			pose := nadirPose()
			mutate(&pose)
			_, err := New(pose)
			assert.ErrorIs(t, err, domain.ErrInvalidPose)
		})
	}
}

func TestNew_PolarLatitude(t *testing.T) {
	t.Parallel()

	for _, lat := range []float64{90, -90, 91} {
		pose := nadirPose()
		pose.Latitude = lat
		_, err := New(pose)
		assert.ErrorIs(t, err, domain.ErrDegenerateProjection, "latitude %v", lat)
	}
}

func TestProject_OutOfBoundsPixelIsExtrapolated(t *testing.T) {
	t.Parallel()

	p, err := New(nadirPose())
	require.NoError(t, err)

	px := domain.PixelLocation{X: 4500, Y: 500}
	assert.False(t, p.InBounds(px))
	assert.True(t, p.InBounds(domain.PixelLocation{X: 4000, Y: 3000}))

	pt, err := p.Project(px)
	require.NoError(t, err)
	assert.Greater(t, pt.Lon, -93.0)
}

func TestProject_WrapsAcrossAntimeridian(t *testing.T) {
	t.Parallel()

	pose := nadirPose()
	pose.Longitude = 179.9999
	pose.GimbalYaw = 90
	pose.GimbalPitch = -10
	pose.Altitude = 200

	pt, err := Project(pose, pose.Center())
	require.NoError(t, err)
	assert.Less(t, pt.Lon, 0.0)
	assert.Greater(t, pt.Lon, -180.0)
}

func TestFootprint(t *testing.T) {
	t.Parallel()

	p, err := New(nadirPose())
	require.NoError(t, err)

	corners, err := p.Footprint()
	require.NoError(t, err)
	require.Len(t, corners, 4)

	b := domain.BoundsOf(corners)
	require.NotNil(t, b)
	assert.True(t, b.Contains(domain.GeoPoint{Lat: 45, Lon: -93}))
	assert.Greater(t, corners[0].Lat, 45.0) // top-left is north-west
	assert.Less(t, corners[0].Lon, -93.0)
	assert.Less(t, corners[2].Lat, 45.0) // bottom-right is south-east
	assert.Greater(t, corners[2].Lon, -93.0)
	assert.Less(t, corners[3].Lon, -93.0) // bottom-left stays west

	pose := nadirPose()
	pose.GimbalPitch = -20
	oblique, err := New(pose)
	require.NoError(t, err)
	_, err = oblique.Footprint()
	assert.ErrorIs(t, err, domain.ErrDegenerateProjection)
}

func TestProjector_ConcurrentUse(t *testing.T) {
	t.Parallel()

	p, err := New(nadirPose())
	require.NoError(t, err)
	want, err := p.Project(domain.PixelLocation{X: 10, Y: 20})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := p.Project(domain.PixelLocation{X: 10, Y: 20})
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}
