package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/config"
	"github.com/saturnino-fabrica-de-software/clientpulse/internal/database"
)

// migrateConfig only needs the database; the service secrets are not required
// to run migrations.
type migrateConfig struct {
	Environment  string `envconfig:"ENV" default:"development"`
	DatabaseURL  string `envconfig:"DATABASE_URL" required:"true"`
	DatabaseName string `envconfig:"DATABASE_NAME" default:"clientpulse"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	action := flag.String("action", "up", "Migration action: up, down, version, status, force")
	steps := flag.Int("steps", 0, "Target version (for force action)")
	flag.Parse()

	_ = godotenv.Load()

	var cfg migrateConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment)

	// golang-migrate needs a database/sql handle
	db, err := database.OpenSQL(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	logger.Info("connected to database")

	migrator, err := database.NewMigrator(db, cfg.DatabaseName)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()

	// Execute action
	switch *action {
	case "up":
		logger.Info("running migrations")
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logger.Info("migrations completed")

	case "down":
		logger.Info("rolling back last migration")
		if err := migrator.Down(); err != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Info("migration rolled back")

	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		logger.Info("current migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)

	case "status":
		status, err := migrator.Status()
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		logger.Info("migration status",
			slog.Uint64("current", uint64(status.Current)),
			slog.Uint64("latest", uint64(status.Latest)),
			slog.Bool("dirty", status.Dirty),
			slog.Bool("pending", status.Pending()),
		)

	case "force":
		if *steps == 0 {
			return fmt.Errorf("steps flag is required for force action")
		}
		logger.Info("forcing migration version", slog.Int("version", *steps))
		if err := migrator.Force(*steps); err != nil {
			return fmt.Errorf("force migration failed: %w", err)
		}
		logger.Info("migration version forced")

	default:
		return fmt.Errorf("invalid action: %s (use: up, down, version, status, force)", *action)
	}

	return nil
}
