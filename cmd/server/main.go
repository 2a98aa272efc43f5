// Package main implements the apply orchestrator server: it accepts
// application submissions, runs them against the remote executor in the
// background and serves the reconciled status of each run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/apply-orchestrator/internal/config"
	"github.com/phrazzld/apply-orchestrator/internal/platform/logger"
	"github.com/phrazzld/apply-orchestrator/internal/platform/postgres"
)

func main() {
	migrateCmd := flag.String("migrate", "", "Run a database migration command (up, down, status, version) and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *migrateCmd, flag.Args()); err != nil {
		log.Printf("apply-orchestrator: %v", err)
		os.Exit(1)
	}
}

// run loads configuration, sets up logging and either runs a migration
// command or serves until ctx is cancelled.
func run(ctx context.Context, migrateCmd string, args []string) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	if migrateCmd != "" {
		return runMigrations(ctx, cfg, l, migrateCmd, args...)
	}

	db, err := setupAppDatabase(ctx, cfg, l)
	if err != nil {
		return err
	}

	app, err := newApplication(cfg, l, db)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}

func loadAppConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database_driver", cfg.Database.Driver)
	slog.Debug("Executor configuration",
		"base_url", cfg.Executor.BaseURL,
		"api_key_present", cfg.Executor.APIKey != "")

	return cfg, nil
}

// runMigrations executes one goose command against the configured database.
func runMigrations(ctx context.Context, cfg *config.Config, l *slog.Logger, command string, args ...string) error {
	if cfg.Database.Driver != driverPostgres {
		return fmt.Errorf("migrations require the %s driver, configured driver is %q", driverPostgres, cfg.Database.Driver)
	}
	db, err := setupAppDatabase(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			l.Error("Error closing database connection", "error", cerr)
		}
	}()
	return postgres.Migrate(ctx, db, command, l, args...)
}
