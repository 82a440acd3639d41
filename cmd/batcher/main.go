package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/pixgeo/internal/adapters/exiftool"
	"github.com/samirrijal/pixgeo/internal/adapters/postgres"
	"github.com/samirrijal/pixgeo/internal/adapters/valkey"
	"github.com/samirrijal/pixgeo/internal/core/ports"
	"github.com/samirrijal/pixgeo/internal/core/usecases"
	"github.com/samirrijal/pixgeo/internal/pkg/config"
	"github.com/samirrijal/pixgeo/internal/pkg/logging"
	"github.com/samirrijal/pixgeo/internal/workflows"
)

func main() {
	flags := pflag.NewFlagSet("batcher", pflag.ExitOnError)
	submit := flags.String("submit", "", "start a batch from a JSON manifest and wait for its result instead of running the worker")
	flags.String("temporal.task_queue", "", "Temporal task queue (overrides config)")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.LoadWithFlags("pixgeo-batcher", flags)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	if *submit != "" {
		if err := submitBatch(context.Background(), c, cfg.Temporal.TaskQueue, *submit); err != nil {
			log.Fatalf("submit: %v", err)
		}
		return
	}

	ctx := context.Background()
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

	poses := exiftool.New(exiftool.Config{
		Path:           cfg.Exiftool.Path,
		Timeout:        cfg.Exiftool.Timeout(),
		PitchReference: cfg.PitchReference(),
	})
	geo := usecases.NewGeolocationService(poses, postgres.NewImageRepo(db), postgres.NewTargetRepo(db), nil, cache, nil)
	geo.SetPoseCacheTTL(cfg.Cache.PoseTTLSeconds)
	geo.SetSource("batch")

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.GeolocateBatchWorkflow)
	w.RegisterActivity(&workflows.GeolocationActivities{
		Geolocation:    geo,
		PitchReference: cfg.PitchReference(),
	})

	slog.Info("batch worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

// submitBatch starts GeolocateBatchWorkflow for a manifest and prints the result as JSON.
func submitBatch(ctx context.Context, c client.Client, taskQueue, manifest string) error {
	data, err := os.ReadFile(manifest)
	if err != nil {
		return err
	}
	var input workflows.BatchInput
	if err := json.Unmarshal(data, &input); err != nil {
		return err
	}
	if input.BatchID == "" {
		input.BatchID = uuid.NewString()
	}

	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "geolocate-batch-" + input.BatchID,
		TaskQueue: taskQueue,
	}, workflows.GeolocateBatchWorkflow, input)
	if err != nil {
		return err
	}
	slog.Info("batch submitted", "workflow_id", run.GetID(), "run_id", run.GetRunID(), "images", len(input.Items))

	var result workflows.BatchResult
	if err := run.Get(ctx, &result); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
