package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/futureself-api/internal/api/shared"
	"github.com/phrazzld/futureself-api/internal/domain/delivery"
	"github.com/phrazzld/futureself-api/internal/platform/logger"
	"github.com/phrazzld/futureself-api/internal/service/scheduler"
)

// LetterHandler handles the authenticated letter endpoints.
type LetterHandler struct {
	scheduler scheduler.LetterScheduler
	rules     delivery.Service
	logger    *slog.Logger
}

// NewLetterHandler creates a new LetterHandler.
func NewLetterHandler(
	sched scheduler.LetterScheduler,
	rules delivery.Service,
	logger *slog.Logger,
) *LetterHandler {
	if sched == nil {
		panic("scheduler cannot be nil")
	}
	if rules == nil {
		panic("delivery rules cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LetterHandler{
		scheduler: sched,
		rules:     rules,
		logger:    logger.With(slog.String("component", "letter_handler")),
	}
}

// CreateLetter handles POST /api/letters.
func (h *LetterHandler) CreateLetter(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		log.Warn("user ID not found or invalid in request context")
		HandleAPIError(w, r, ErrUnauthenticated, "")
		return
	}

	var req CreateLetterRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		log.Debug("invalid request body", slog.String("error", err.Error()))
		HandleAPIError(w, r, fmt.Errorf("%w: %v", ErrInvalidRequest, err), "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	spec := req.Delivery.ToSpec()
	id, err := h.scheduler.CreateLetter(r.Context(), req.ToDraft(userID), spec)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	rec, err := h.scheduler.GetLetter(r.Context(), id, userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("letter created",
		slog.String("letter_id", id.String()),
		slog.String("kind", string(rec.Spec.Kind)))

	shared.RespondWithJSON(w, r, http.StatusCreated, CreateLetterResponse{
		ID:       id.String(),
		Schedule: scheduleToResponse(rec.Schedule, rec.Spec, h.rules.OccurrencesRemaining),
	})
}

// ListLetters handles GET /api/letters.
func (h *LetterHandler) ListLetters(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		log.Warn("user ID not found or invalid in request context")
		HandleAPIError(w, r, ErrUnauthenticated, "")
		return
	}

	limit, offset, err := parsePaging(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	recs, err := h.scheduler.ListLetters(r.Context(), userID, limit, offset)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	resp := LetterListResponse{
		Letters: make([]LetterResponse, 0, len(recs)),
		Limit:   limit,
		Offset:  offset,
	}
	for _, rec := range recs {
		resp.Letters = append(resp.Letters, letterToResponse(rec, h.rules.OccurrencesRemaining))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetLetter handles GET /api/letters/{id}.
func (h *LetterHandler) GetLetter(w http.ResponseWriter, r *http.Request) {
	userID, letterID, ok := handleUserIDAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	rec, err := h.scheduler.GetLetter(r.Context(), letterID, userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, letterToResponse(rec, h.rules.OccurrencesRemaining))
}

// CancelLetter handles POST /api/letters/{id}/cancel.
func (h *LetterHandler) CancelLetter(w http.ResponseWriter, r *http.Request) {
	userID, letterID, ok := handleUserIDAndPathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	// Ownership check; a foreign letter reads as not found.
	if _, err := h.scheduler.GetLetter(r.Context(), letterID, userID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.scheduler.CancelLetter(r.Context(), letterID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	rec, err := h.scheduler.GetLetter(r.Context(), letterID, userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("letter cancelled", slog.String("letter_id", letterID.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, scheduleToResponse(rec.Schedule, rec.Spec, h.rules.OccurrencesRemaining))
}
