package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/futureself-api/internal/api"
	apiMiddleware "github.com/phrazzld/futureself-api/internal/api/middleware"
)

// setupRouter creates the application router with every route and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.Trace(app.logger))
	r.Use(middleware.Recoverer)

	letterHandler := api.NewLetterHandler(app.scheduler, app.rules, app.logger)
	scheduleHandler := api.NewScheduleHandler(app.rules, app.clock, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Post("/letters", letterHandler.CreateLetter)
		r.Get("/letters", letterHandler.ListLetters)
		r.Get("/letters/{id}", letterHandler.GetLetter)
		r.Post("/letters/{id}/cancel", letterHandler.CancelLetter)

		r.Post("/schedule/preview", scheduleHandler.PreviewSchedule)
	})

	if token := app.config.Server.AdminToken; token != "" {
		adminHandler := api.NewAdminHandler(app.scheduler, app.clock, app.logger)
		r.Route("/admin", func(r chi.Router) {
			r.Use(apiMiddleware.RequireAdminToken(token))
			r.Get("/due", adminHandler.ListDue)
			r.Post("/letters/{id}/deliver", adminHandler.DeliverLetter)
		})
	} else {
		app.logger.Info("admin routes disabled: no admin token configured")
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", slog.String("error", err.Error()))
		}
	})
	r.Handle("/metrics", app.metrics.Handler())

	return r
}
