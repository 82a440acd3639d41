package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/pixgeo/internal/core/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("pixgeo-test")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "pixgeo-test", cfg.Telemetry.ServiceName)
	assert.Equal(t, "exiftool", cfg.Exiftool.Path)
	assert.Equal(t, 10, cfg.Exiftool.TimeoutSeconds)
	assert.Equal(t, domain.PitchFromHorizon, cfg.PitchReference())
	assert.Equal(t, 86400, cfg.Cache.PoseTTLSeconds)
	assert.False(t, cfg.Storage.Enabled)
	assert.Equal(t, "pixgeo-geolocate", cfg.Temporal.TaskQueue)
	assert.Equal(t, "postgres://pixgeo:@localhost:5432/pixgeo?sslmode=disable", cfg.Database.DSN())
}

func TestLoad_Env(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PIXGEO_SERVER_PORT", "9090")
	t.Setenv("PIXGEO_PROJECTION_PITCH_REFERENCE", "nadir")
	t.Setenv("PIXGEO_EXIFTOOL_TIMEOUT_SECONDS", "3")

	cfg, err := Load("pixgeo-test")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, domain.PitchFromNadir, cfg.PitchReference())
	assert.Equal(t, "3s", cfg.Exiftool.Timeout().String())
}

func TestLoadWithFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PIXGEO_PROJECTION_PITCH_REFERENCE", "horizon")

	flags := pflag.NewFlagSet("geolocate", pflag.ContinueOnError)
	flags.String("projection.pitch_reference", "horizon", "")
	require.NoError(t, flags.Parse([]string{"--projection.pitch_reference=nadir"}))

	cfg, err := LoadWithFlags("geolocate", flags)
	require.NoError(t, err)
	assert.Equal(t, domain.PitchFromNadir, cfg.PitchReference())
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PIXGEO_PROJECTION_PITCH_REFERENCE", "sideways")

	_, err := Load("pixgeo-test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "projection.pitch_reference")
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{Enabled: true},
	}
	err := cfg.Validate()
	require.Error(t, err)

	for _, want := range []string{
		"server.port",
		"database.host",
		"nats.url",
		"exiftool.path",
		"cache.pose_ttl_seconds",
		"storage.endpoint",
		"storage.bucket",
		"temporal.task_queue",
	} {
		assert.Contains(t, err.Error(), want)
	}
	// An empty pitch reference means the default.
	assert.NotContains(t, err.Error(), "projection.pitch_reference")
}
