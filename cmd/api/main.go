package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/pixgeo/internal/adapters/exiftool"
	"github.com/samirrijal/pixgeo/internal/adapters/http"
	minioadapter "github.com/samirrijal/pixgeo/internal/adapters/minio"
	natsadapter "github.com/samirrijal/pixgeo/internal/adapters/nats"
	"github.com/samirrijal/pixgeo/internal/adapters/postgres"
	"github.com/samirrijal/pixgeo/internal/adapters/valkey"
	"github.com/samirrijal/pixgeo/internal/core/ports"
	"github.com/samirrijal/pixgeo/internal/core/usecases"
	"github.com/samirrijal/pixgeo/internal/pkg/config"
	"github.com/samirrijal/pixgeo/internal/pkg/logging"
	"github.com/samirrijal/pixgeo/internal/pkg/metrics"
	"github.com/samirrijal/pixgeo/internal/pkg/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load("pixgeo-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	deps := &http.Dependencies{
		DB:             db,
		PitchReference: cfg.PitchReference(),
		OpenAPIPath:    http.DefaultOpenAPIPath,
		Version:        version,
	}

	// Cache (optional)
	var cache ports.CacheService
	vc, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Password, cfg.Valkey.DB, cfg.Valkey.KeyPrefix)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer vc.Close()
		cache = vc
		deps.Cache = vc
	}

	// NATS (optional)
	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
		deps.NATS = natsConn
	}

	// Frame archive (optional)
	var store ports.ObjectStore
	if cfg.Storage.Enabled {
		s, err := minioadapter.New(ctx, minioadapter.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			slog.Warn("object storage unavailable, frames will not be archived", "error", err)
		} else {
			store = s
		}
	}

	poses := exiftool.New(exiftool.Config{
		Path:           cfg.Exiftool.Path,
		Timeout:        cfg.Exiftool.Timeout(),
		PitchReference: cfg.PitchReference(),
	})

	// Repos & use cases
	imageRepo := postgres.NewImageRepo(db)
	targetRepo := postgres.NewTargetRepo(db)

	geo := usecases.NewGeolocationService(poses, imageRepo, targetRepo, publisher, cache, store)
	geo.SetPoseCacheTTL(cfg.Cache.PoseTTLSeconds)
	targets := usecases.NewTargetService(targetRepo, cache)
	targets.SetNearbyTTL(cfg.Cache.NearbyTTLSeconds)

	deps.Geolocation = geo
	deps.Targets = targets

	go reportPoolStats(ctx, db)

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
		AppName:      "pixgeo API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps, http.RouterConfig{RateLimitPerIP: cfg.Server.RateLimitPerIP})

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "version", version)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Uploads can be large; give in-flight requests up to 30s.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Pool.Stat())
		}
	}
}
