package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"sale-service/config"
	"sale-service/internal/repository"
	"sale-service/internal/services"
	"sale-service/pkg/database"
	"sale-service/pkg/logger"

	"go.uber.org/zap"
)

const usage = `
Sale Service - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Apply all pending migrations
  down        Roll back the last migration
  version     Show the applied migration version
  seed-dev    Create demo sales (with their outbox events)

Flags:
  -migrations string   Path to migrations directory (default "migrations")
  -count int           Number of demo sales for seed-dev (default 5)

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go -count 20 seed-dev
`

func main() {
	migrationsDir := flag.String("migrations", "migrations", "Path to migrations directory")
	count := flag.Int("count", database.DefaultSeedConfig().Count, "Number of demo sales for seed-dev")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.LoadConfig()
	log := logger.New(cfg.AppMode)
	defer log.Sync()

	var err error
	switch command := flag.Arg(0); command {
	case "up", "down", "version":
		err = runMigrations(command, cfg.DatabaseURL, *migrationsDir, log)
	case "seed-dev":
		err = runSeed(cfg, *count, log)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		log.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func runMigrations(command, databaseURL, dir string, log *logger.Logger) error {
	m, err := database.NewMigrator(databaseURL, dir)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("closing migrator", zap.Error(err))
		}
	}()

	switch command {
	case "up":
		changed, err := m.Up()
		if err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		log.Info("migrations applied", zap.Bool("changed", changed))
	case "down":
		changed, err := m.Down()
		if err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		log.Info("migration rolled back", zap.Bool("changed", changed))
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		log.Info("schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
	}
	return nil
}

func runSeed(cfg *config.Config, count int, log *logger.Logger) error {
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := services.NewSaleService(repository.NewUnitOfWorkFactory(pool), log)
	created, err := database.SeedDevelopment(ctx, svc, database.SeedConfig{Count: count})
	if err != nil {
		return err
	}
	log.Info("development seed completed", zap.Int("sales", len(created)))
	return nil
}
