package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/samirrijal/pixgeo/internal/adapters/postgres"
	"github.com/samirrijal/pixgeo/internal/pkg/config"
	"github.com/samirrijal/pixgeo/internal/pkg/logging"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down|version>")
	}

	cfg, err := config.Load("pixgeo-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, "text")

	mg, err := postgres.NewMigrator(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("migrator: %v", err)
	}
	defer mg.Close()

	switch os.Args[1] {
	case "up":
		if err := mg.Up(); err != nil {
			log.Fatalf("migrate up: %v", err)
		}
		slog.Info("all migrations applied")
	case "down":
		if err := mg.Down(); err != nil {
			log.Fatalf("migrate down: %v", err)
		}
		slog.Info("rolled back one migration")
	case "version":
		v, dirty, err := mg.Version()
		if err != nil {
			log.Fatalf("version: %v", err)
		}
		fmt.Printf("version %d (dirty: %t)\n", v, dirty)
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}
