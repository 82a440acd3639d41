package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/pixgeo/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// RouterConfig tunes the middleware stack.
type RouterConfig struct {
	// RateLimitPerIP is requests per minute per client IP; 0 disables limiting.
	RateLimitPerIP int
}

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies, cfg RouterConfig) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	if cfg.RateLimitPerIP > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimitPerIP,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
			},
		}))
	}

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Post("/projections", timeout.NewWithContext(ProjectionsHandler(deps), requestTimeout))
	v1.Post("/images/pose", timeout.NewWithContext(ImagePoseHandler(deps), requestTimeout))
	v1.Post("/images/geolocate", timeout.NewWithContext(GeolocateImageHandler(deps), requestTimeout))
	v1.Get("/images/:id", timeout.NewWithContext(GetImageHandler(deps), requestTimeout))
	v1.Get("/images/:id/targets", timeout.NewWithContext(ImageTargetsHandler(deps), requestTimeout))
	v1.Get("/targets/nearby", timeout.NewWithContext(NearbyTargetsHandler(deps), requestTimeout))
	v1.Get("/targets/:id", timeout.NewWithContext(GetTargetHandler(deps), requestTimeout))

	app.Post("/graphql", timeout.NewWithContext(GraphQLHandler(deps), requestTimeout))

	SetupDocs(app, deps.OpenAPIPath)

	if deps.NATS != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
	}
}
