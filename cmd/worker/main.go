package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samirrijal/pixgeo/internal/adapters/exiftool"
	minioadapter "github.com/samirrijal/pixgeo/internal/adapters/minio"
	natsadapter "github.com/samirrijal/pixgeo/internal/adapters/nats"
	"github.com/samirrijal/pixgeo/internal/adapters/postgres"
	"github.com/samirrijal/pixgeo/internal/adapters/valkey"
	"github.com/samirrijal/pixgeo/internal/core/domain"
	"github.com/samirrijal/pixgeo/internal/core/ports"
	"github.com/samirrijal/pixgeo/internal/core/usecases"
	"github.com/samirrijal/pixgeo/internal/pkg/config"
	"github.com/samirrijal/pixgeo/internal/pkg/logging"
	"github.com/samirrijal/pixgeo/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("pixgeo-worker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var cache ports.CacheService
	vc, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Password, cfg.Valkey.DB, cfg.Valkey.KeyPrefix)
	if err != nil {
		slog.Warn("valkey unavailable, pose cache disabled", "error", err)
	} else {
		defer vc.Close()
		cache = vc
	}

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats publisher: %v", err)
	}
	defer pub.Close()

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

	geo := usecases.NewGeolocationService(poses, postgres.NewImageRepo(db), postgres.NewTargetRepo(db), pub, cache, store)
	geo.SetPoseCacheTTL(cfg.Cache.PoseTTLSeconds)
	geo.SetSource("worker")

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer sub.Close()

	err = sub.SubscribeRequests(ctx, func(ctx context.Context, req *domain.GeolocationRequest) error {
		if req.Pose != nil && req.Pose.PitchReference == "" {
			req.Pose.PitchReference = cfg.PitchReference()
		}
		res, err := geo.GeolocateImage(ctx, *req)
		if err != nil {
			return err
		}
		slog.Info("request geolocated",
			"image_id", res.Image.ID,
			"targets", len(res.Targets),
			"failures", len(res.Failures),
		)
		return nil
	})
	if err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	slog.Info("geolocation worker started", "subject", natsadapter.RequestSubjectPrefix+">")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down worker", "signal", sig.String())
}
