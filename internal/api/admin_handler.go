package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/futureself-api/internal/api/shared"
	"github.com/phrazzld/futureself-api/internal/domain/delivery"
	"github.com/phrazzld/futureself-api/internal/platform/logger"
	"github.com/phrazzld/futureself-api/internal/service/scheduler"
)

// AdminHandler exposes the operator endpoints used to inspect and drive
// delivery by hand. Deliveries triggered here do not notify.
type AdminHandler struct {
	scheduler scheduler.LetterScheduler
	clock     delivery.TimeProvider
	logger    *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(sched scheduler.LetterScheduler, clock delivery.TimeProvider, logger *slog.Logger) *AdminHandler {
	if sched == nil {
		panic("scheduler cannot be nil")
	}
	if clock == nil {
		panic("clock cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		scheduler: sched,
		clock:     clock,
		logger:    logger.With(slog.String("component", "admin_handler")),
	}
}

// ListDue handles GET /admin/due.
func (h *AdminHandler) ListDue(w http.ResponseWriter, r *http.Request) {
	now, err := parseNow(r, h.clock.Now())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	ids, err := h.scheduler.DueCheck(r.Context(), now)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	resp := DueResponse{Now: now, LetterIDs: make([]string, 0, len(ids))}
	for _, id := range ids {
		resp.LetterIDs = append(resp.LetterIDs, id.String())
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// DeliverLetter handles POST /admin/letters/{id}/deliver.
func (h *AdminHandler) DeliverLetter(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	letterID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	now, err := parseNow(r, h.clock.Now())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	st, err := h.scheduler.DeliverOccurrence(r.Context(), letterID, now)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("occurrence delivered by operator",
		slog.String("letter_id", letterID.String()),
		slog.String("state", string(st.State)),
		slog.Int("occurrences_delivered", st.OccurrencesDelivered))
	shared.RespondWithJSON(w, r, http.StatusOK, st)
}
