package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/futureself-api/internal/platform/migrations"
)

// handleMigrations executes a migration command against db.
func handleMigrations(ctx context.Context, db *sql.DB, driver, command string, logger *slog.Logger) error {
	switch command {
	case "up":
		return migrations.Up(ctx, db, driver, logger)

	case "down":
		if err := migrations.Down(ctx, db, driver); err != nil {
			return err
		}
		logger.Info("rolled back one migration", slog.String("driver", driver))
		return nil

	case "version":
		version, err := migrations.Version(ctx, db, driver)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		logger.Info("current schema version", slog.Int64("version", version))
		return nil

	default:
		return fmt.Errorf("unknown migration command %q", command)
	}
}
