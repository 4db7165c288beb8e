// Package main implements the entry point for the futureself API server,
// which schedules letters written to one's future self and delivers them
// when they come due.
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

	"github.com/phrazzld/futureself-api/internal/config"
	"github.com/phrazzld/futureself-api/internal/domain/delivery"
	"github.com/phrazzld/futureself-api/internal/platform/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (defaults to ./config.yaml if present)")
	migrateCmd := flag.String("migrate", "", "run a migration command and exit: up, down or version")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *migrateCmd); err != nil {
		log.Printf("futureself-api: %v", err)
		stop()
		os.Exit(1)
	}
}

// run loads configuration, prepares the database and either executes a
// migration command or serves until ctx is cancelled.
func run(ctx context.Context, configPath, migrateCmd string) error {
	cfg, err := loadAppConfig(configPath)
	if err != nil {
		return err
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	l.Info("server configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("notify_kind", cfg.Notify.Kind),
		slog.Bool("admin_routes", cfg.Server.AdminToken != ""))

	db, err := setupAppDatabase(ctx, cfg.Database, l)
	if err != nil {
		return err
	}

	if migrateCmd != "" {
		defer closeDB(db, l)
		return handleMigrations(ctx, db, cfg.Database.Driver, migrateCmd, l)
	}

	if err := handleMigrations(ctx, db, cfg.Database.Driver, "up", l); err != nil {
		closeDB(db, l)
		return err
	}

	app, err := newApplication(cfg, l, db, delivery.SystemClock{})
	if err != nil {
		closeDB(db, l)
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}

func loadAppConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
