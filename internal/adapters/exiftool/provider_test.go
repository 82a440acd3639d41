package exiftool

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/pixgeo/internal/core/domain"
)

const djiRecord = `[{
  "SourceFile": "DJI_0007.JPG",
  "GPSPosition": "45 deg 30' 36.00\" N, 93 deg 15' 0.00\" W",
  "GPSLatitudeRef": "North",
  "GPSLongitudeRef": "West",
  "RelativeAltitude": "+100.20",
  "FOV": "73.7 deg",
  "GimbalYawDegree": -93.5,
  "GimbalPitchDegree": "-45.00",
  "ImageWidth": 5472,
  "ImageHeight": 3648
}]`

func fakeRunner(stdout, stderr string, err error) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte(stdout), []byte(stderr), err
	}
}

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, w, h))))
	return path
}

func TestProvider_Pose(t *testing.T) {
	var gotName string
	var gotArgs []string
	p := New(Config{
		Path: "/usr/local/bin/exiftool",
		Runner: func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
			gotName, gotArgs = name, args
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline, "exiftool must run under a timeout")
			return []byte(djiRecord), nil, nil
		},
	})

	pose, err := p.Pose(context.Background(), "/no/such/DJI_0007.JPG")
	require.NoError(t, err)

	assert.Equal(t, "/usr/local/bin/exiftool", gotName)
	assert.Equal(t, "-j", gotArgs[0])
	assert.Contains(t, gotArgs, "-GimbalPitchDegree")
	assert.Equal(t, "/no/such/DJI_0007.JPG", gotArgs[len(gotArgs)-1])

	assert.InDelta(t, 45.51, pose.Latitude, 1e-12)
	assert.InDelta(t, -93.25, pose.Longitude, 1e-12)
	assert.InDelta(t, 100.2, pose.Altitude, 1e-12)
	assert.InDelta(t, 73.7, pose.HorizontalFOV, 1e-12)
	assert.InDelta(t, -93.5, pose.GimbalYaw, 1e-12)
	assert.InDelta(t, -45.0, pose.GimbalPitch, 1e-12)
	assert.Equal(t, domain.PitchFromHorizon, pose.PitchReference)
	// No readable header at that path, so exiftool's dimensions are used.
	assert.Equal(t, 5472, pose.ImageWidth)
	assert.Equal(t, 3648, pose.ImageHeight)
	assert.NoError(t, pose.Validate())
}

func TestProvider_Pose_HeaderDimensionsWin(t *testing.T) {
	path := writePNG(t, 64, 48)
	p := New(Config{Runner: fakeRunner(djiRecord, "", nil), PitchReference: domain.PitchFromNadir})

	pose, err := p.Pose(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 64, pose.ImageWidth)
	assert.Equal(t, 48, pose.ImageHeight)
	assert.Equal(t, domain.PitchFromNadir, pose.PitchReference)
}

func TestProvider_Pose_Hemispheres(t *testing.T) {
	tests := []struct {
		name             string
		latRef, lonRef   string
		wantLat, wantLon float64
	}{
		{"north east", "North", "East", 10.5, 20.25},
		{"south west", "South", "West", -10.5, -20.25},
		{"single letters", "S", "E", -10.5, 20.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := `[{"GPSPosition": "10 deg 30' 0.00\", 20 deg 15' 0.00\"",
				"GPSLatitudeRef": "` + tt.latRef + `", "GPSLongitudeRef": "` + tt.lonRef + `",
				"RelativeAltitude": 50, "FOV": 60, "GimbalYawDegree": 0, "GimbalPitchDegree": -90,
				"ImageWidth": 100, "ImageHeight": 80}]`
			pose, err := New(Config{Runner: fakeRunner(record, "", nil)}).Pose(context.Background(), "x.jpg")
			require.NoError(t, err)
			assert.InDelta(t, tt.wantLat, pose.Latitude, 1e-12)
			assert.InDelta(t, tt.wantLon, pose.Longitude, 1e-12)
		})
	}
}

func TestProvider_Pose_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		runner Runner
	}{
		{"tool missing", fakeRunner("", "", &exec.Error{Name: "exiftool", Err: exec.ErrNotFound})},
		{"tool failed", fakeRunner("", "Error: File not found - x.jpg", errors.New("exit status 1"))},
		{"stderr output", fakeRunner(djiRecord, "Warning: [minor] Bad MakerNotes", nil)},
		{"empty result", fakeRunner("[]", "", nil)},
		{"garbage output", fakeRunner("not json", "", nil)},
		{"missing tag", fakeRunner(`[{"GPSPosition": "1 deg, 2 deg", "GPSLatitudeRef": "North", "GPSLongitudeRef": "East",
			"FOV": 60, "GimbalYawDegree": 0, "GimbalPitchDegree": -90, "ImageWidth": 10, "ImageHeight": 10}]`, "", nil)},
		{"no dimensions", fakeRunner(`[{"GPSPosition": "1 deg, 2 deg", "GPSLatitudeRef": "North", "GPSLongitudeRef": "East",
			"RelativeAltitude": 10, "FOV": 60, "GimbalYawDegree": 0, "GimbalPitchDegree": -90}]`, "", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pose, err := New(Config{Runner: tt.runner}).Pose(context.Background(), "x.jpg")
			assert.Nil(t, pose)
			assert.ErrorIs(t, err, domain.ErrMetadataUnavailable)
		})
	}
}

func TestProvider_Pose_MissingTagsListed(t *testing.T) {
	_, err := New(Config{Runner: fakeRunner(`[{"SourceFile": "x.jpg"}]`, "", nil)}).Pose(context.Background(), "x.jpg")
	require.ErrorIs(t, err, domain.ErrMetadataUnavailable)
	assert.Contains(t, err.Error(), "GPSPosition, GPSLatitudeRef, GPSLongitudeRef, RelativeAltitude, FOV, GimbalYawDegree, GimbalPitchDegree")
}

func TestProvider_Pose_Timeout(t *testing.T) {
	p := New(Config{
		Timeout: 10 * time.Millisecond,
		Runner: func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
			<-ctx.Done()
			return nil, nil, ctx.Err()
		},
	})
	_, err := p.Pose(context.Background(), "x.jpg")
	assert.ErrorIs(t, err, domain.ErrMetadataUnavailable)
}

func TestProvider_Pose_Malformed(t *testing.T) {
	base := `"GPSLatitudeRef": "North", "GPSLongitudeRef": "East", "ImageWidth": 10, "ImageHeight": 10`
	tests := []struct {
		name   string
		record string
	}{
		{"position", `[{"GPSPosition": "somewhere", "RelativeAltitude": 1, "FOV": 60, "GimbalYawDegree": 0, "GimbalPitchDegree": -90, ` + base + `}]`},
		{"position one part", `[{"GPSPosition": "45 deg 30' 0.00\" N", "RelativeAltitude": 1, "FOV": 60, "GimbalYawDegree": 0, "GimbalPitchDegree": -90, ` + base + `}]`},
		{"altitude", `[{"GPSPosition": "1 deg, 2 deg", "RelativeAltitude": "high", "FOV": 60, "GimbalYawDegree": 0, "GimbalPitchDegree": -90, ` + base + `}]`},
		{"fov unit junk", `[{"GPSPosition": "1 deg, 2 deg", "RelativeAltitude": 1, "FOV": "60 deg 5", "GimbalYawDegree": 0, "GimbalPitchDegree": -90, ` + base + `}]`},
		{"pitch type", `[{"GPSPosition": "1 deg, 2 deg", "RelativeAltitude": 1, "FOV": 60, "GimbalYawDegree": 0, "GimbalPitchDegree": true, ` + base + `}]`},
		{"hemisphere", `[{"GPSPosition": "1 deg, 2 deg", "RelativeAltitude": 1, "FOV": 60, "GimbalYawDegree": 0, "GimbalPitchDegree": -90,
			"GPSLatitudeRef": "Up", "GPSLongitudeRef": "East", "ImageWidth": 10, "ImageHeight": 10}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pose, err := New(Config{Runner: fakeRunner(tt.record, "", nil)}).Pose(context.Background(), "x.jpg")
			assert.Nil(t, pose)
			assert.ErrorIs(t, err, domain.ErrMalformedMetadata)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{})
	assert.Equal(t, "exiftool", p.path)
	assert.Equal(t, DefaultTimeout, p.timeout)
	assert.Equal(t, domain.PitchFromHorizon, p.pitchRef)
	assert.NotNil(t, p.run)
}
