package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/futureself-api/internal/config"
	"github.com/phrazzld/futureself-api/internal/domain/delivery"
	"github.com/phrazzld/futureself-api/internal/events"
	"github.com/phrazzld/futureself-api/internal/notify"
	"github.com/phrazzld/futureself-api/internal/platform/logger"
	"github.com/phrazzld/futureself-api/internal/platform/metrics"
	"github.com/phrazzld/futureself-api/internal/poller"
	"github.com/phrazzld/futureself-api/internal/service/auth"
	"github.com/phrazzld/futureself-api/internal/service/scheduler"
	"github.com/phrazzld/futureself-api/internal/store"
)

// application holds the shared dependencies so they can be wired once and
// cleaned up together on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	clock  delivery.TimeProvider

	letterStore store.LetterStore
	rules       delivery.Service
	jwtService  auth.JWTService
	scheduler   scheduler.LetterScheduler
	notifier    notify.Notifier

	eventEmitter *events.InMemoryEventEmitter
	metrics      *metrics.Recorder
	poller       *poller.Poller
}

// newApplication wires every component over an open, migrated database.
func newApplication(
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
	clock delivery.TimeProvider,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
		clock:  clock,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	app.letterStore, err = newLetterStore(cfg.Database.Driver, db, logger)
	if err != nil {
		return nil, err
	}

	app.rules, err = delivery.NewServiceWithLeadTime(cfg.Scheduling.MinLeadTime)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery rules: %w", err)
	}

	app.metrics = metrics.NewRecorder()
	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	app.eventEmitter.RegisterHandler(app.metrics)
	app.eventEmitter.RegisterHandler(lifecycleLogger(logger))

	app.scheduler = scheduler.NewLetterScheduler(
		app.letterStore,
		app.rules,
		clock,
		app.eventEmitter,
		logger,
		scheduler.WithDueBatchSize(cfg.Scheduling.DueBatchSize),
	)

	app.notifier, err = notify.New(cfg.Notify, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}

	app.poller, err = poller.New(
		poller.Config{
			Schedule:    cfg.Scheduling.PollSchedule,
			Concurrency: cfg.Scheduling.DeliverConcurrency,
			RatePerSec:  cfg.Scheduling.NotifyRatePerSec,
		},
		app.scheduler,
		app.letterStore,
		app.notifier,
		clock,
		app.metrics,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create due poller: %w", err)
	}

	logger.Info("application initialized",
		slog.Duration("min_lead_time", app.rules.MinLeadTime()),
		slog.String("poll_schedule", cfg.Scheduling.PollSchedule))
	return app, nil
}

// lifecycleLogger records every committed transition at debug level.
func lifecycleLogger(base *slog.Logger) events.EventHandler {
	base = base.With(slog.String("component", "lifecycle"))
	return events.HandlerFunc(func(ctx context.Context, event *events.LetterEvent) error {
		logger.FromContextOrDefault(ctx, base).Debug("letter lifecycle event",
			slog.String("event_type", string(event.Type)),
			slog.String("letter_id", event.LetterID.String()),
			slog.String("state", string(event.Schedule.State)),
			slog.Int("occurrences_delivered", event.Schedule.OccurrencesDelivered))
		return nil
	})
}

// Run starts the poller and the HTTP server and blocks until ctx is
// cancelled or the server fails.
func (app *application) Run(ctx context.Context) error {
	if err := app.poller.Start(ctx); err != nil {
		app.cleanup(ctx)
		return fmt.Errorf("failed to start due poller: %w", err)
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup stops background work and closes the database.
func (app *application) cleanup(ctx context.Context) {
	if app.poller != nil {
		app.poller.Stop(ctx)
	}
	if app.db != nil {
		closeDB(app.db, app.logger)
	}
	app.logger.Info("application shutdown completed")
}
