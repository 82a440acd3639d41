package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/pixgeo/internal/core/domain"
	"github.com/samirrijal/pixgeo/internal/core/usecases"
)

// Pinger is a backing service the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Geolocation *usecases.GeolocationService
	Targets     *usecases.TargetService
	NATS        *nats.Conn
	DB          Pinger
	Cache       Pinger

	// PitchReference applies to request poses that do not name one.
	PitchReference domain.PitchReference
	// UploadDir receives uploaded frames while they are processed; "" means os.TempDir.
	UploadDir string
	// OpenAPIPath is served at /docs/openapi.yaml.
	OpenAPIPath string
	Version     string
}
