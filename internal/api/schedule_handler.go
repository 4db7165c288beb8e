package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/futureself-api/internal/api/shared"
	"github.com/phrazzld/futureself-api/internal/domain/delivery"
	"github.com/phrazzld/futureself-api/internal/platform/logger"
)

// ScheduleHandler previews delivery specs without persisting anything.
type ScheduleHandler struct {
	rules  delivery.Service
	clock  delivery.TimeProvider
	logger *slog.Logger
}

// NewScheduleHandler creates a new ScheduleHandler.
func NewScheduleHandler(rules delivery.Service, clock delivery.TimeProvider, logger *slog.Logger) *ScheduleHandler {
	if rules == nil {
		panic("delivery rules cannot be nil")
	}
	if clock == nil {
		panic("clock cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleHandler{
		rules:  rules,
		clock:  clock,
		logger: logger.With(slog.String("component", "schedule_handler")),
	}
}

// PreviewSchedule handles POST /api/schedule/preview. The delivery request is checked
// exactly as letter creation would check it, then every due instant is
// returned in UTC.
func (h *ScheduleHandler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req DeliveryRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Debug("invalid request body", slog.String("error", err.Error()))
		HandleAPIError(w, r, fmt.Errorf("%w: %v", ErrInvalidRequest, err), "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	spec := req.ToSpec().UTC()
	if err := h.rules.ValidateSpec(spec, h.clock.Now()); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	occurrences, err := delivery.Occurrences(spec)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, PreviewResponse{Occurrences: occurrences})
}
