package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/phrazzld/futureself-api/internal/config"
	"github.com/phrazzld/futureself-api/internal/platform/migrations"
	"github.com/phrazzld/futureself-api/internal/platform/postgres"
	"github.com/phrazzld/futureself-api/internal/platform/sqlite"
	"github.com/phrazzld/futureself-api/internal/store"
)

// setupAppDatabase opens and pings the configured database.
func setupAppDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sql.DB, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	switch cfg.Driver {
	case migrations.DriverSQLite:
		db, err := sqlite.Open(pingCtx, cfg.URL)
		if err != nil {
			return nil, err
		}
		logger.Info("database connection established", slog.String("driver", cfg.Driver))
		return db, nil

	case migrations.DriverPostgres:
		db, err := sql.Open("pgx", cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database connection: %w", err)
		}

		maxOpen := cfg.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 10
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen / 2)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		logger.Info("database connection established",
			slog.String("driver", cfg.Driver),
			slog.Int("max_open_conns", maxOpen))
		return db, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// newLetterStore returns the letter store matching driver.
func newLetterStore(driver string, db *sql.DB, logger *slog.Logger) (store.LetterStore, error) {
	switch driver {
	case migrations.DriverSQLite:
		return sqlite.NewLetterStore(db, logger), nil
	case migrations.DriverPostgres:
		return postgres.NewPostgresLetterStore(db, logger), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func closeDB(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Error("error closing database connection", slog.String("error", err.Error()))
	}
}
