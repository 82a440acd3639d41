//go:build integration
// +build integration

package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samirrijal/pixgeo/internal/adapters/http"
	"github.com/samirrijal/pixgeo/internal/adapters/postgres"
	"github.com/samirrijal/pixgeo/internal/core/domain"
	"github.com/samirrijal/pixgeo/internal/core/usecases"
	"github.com/samirrijal/pixgeo/internal/pkg/config"
)

// setupTestDB connects to the test database and applies migrations.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("pixgeo-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	mg, err := postgres.NewMigrator(cfg.Database.DSN())
	if err != nil {
		t.Fatalf("migrator: %v", err)
	}
	if err := mg.Up(); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	mg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, cfg.Database.DSN(), 4)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	return db
}

// setupTestDeps creates dependencies with real DB and repos, no cache.
func setupTestDeps(t *testing.T, db *postgres.DB) *http.Dependencies {
	targets := postgres.NewTargetRepo(db)
	return &http.Dependencies{
		Geolocation: usecases.NewGeolocationService(&mockPoseProvider{}, postgres.NewImageRepo(db), targets, nil, nil, nil),
		Targets:     usecases.NewTargetService(targets, nil),
		DB:          db,
	}
}

// seedImage geolocates one detection at the frame center so a target lands
// exactly below the camera.
func seedImage(t *testing.T, deps *http.Dependencies, lat, lon float64) *domain.GeolocatedImage {
	pose := nadirPose()
	pose.Latitude, pose.Longitude = lat, lon
	res, err := deps.Geolocation.GeolocateImage(context.Background(), domain.GeolocationRequest{
		ImageID:    fmt.Sprintf("integ-%d", time.Now().UnixNano()),
		Pose:       &pose,
		Detections: []domain.Detection{{Pixel: &domain.PixelLocation{X: 2000, Y: 1500}, Label: "vehicle"}},
	})
	if err != nil {
		t.Fatalf("seed image: %v", err)
	}
	return res
}

func TestGetImage_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	deps := setupTestDeps(t, db)
	seeded := seedImage(t, deps, 43.263, -2.935)
	app := setupApp(deps)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/images/"+seeded.Image.ID, nil), -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var img domain.Image
	if err := json.NewDecoder(resp.Body).Decode(&img); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if img.Pose.Altitude != 100 || img.Footprint == nil {
		t.Errorf("expected stored pose and footprint, got %+v", img)
	}
}

func TestImageTargets_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	deps := setupTestDeps(t, db)
	seeded := seedImage(t, deps, 43.263, -2.935)
	app := setupApp(deps)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/images/"+seeded.Image.ID+"/targets", nil), -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.Target     `json:"data"`
		Pagination struct{ Total int } `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Pagination.Total != 1 || result.Data[0].Label != "vehicle" {
		t.Errorf("unexpected targets %+v", result)
	}
}

func TestNearbyTargets_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	deps := setupTestDeps(t, db)
	seedImage(t, deps, 43.263, -2.935)
	app := setupApp(deps)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/targets/nearby?lat=43.2631&lon=-2.935&radius=500", nil), -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var targets []domain.Target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(targets) == 0 {
		t.Fatal("expected at least 1 nearby target, got 0")
	}
	if targets[0].Distance == nil || *targets[0].Distance > 500 {
		t.Errorf("expected distance within radius, got %v", targets[0].Distance)
	}
}
