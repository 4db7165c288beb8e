package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/futureself-api/internal/domain"
	"github.com/phrazzld/futureself-api/internal/domain/delivery"
	"github.com/phrazzld/futureself-api/internal/events"
	"github.com/phrazzld/futureself-api/internal/platform/logger"
	"github.com/phrazzld/futureself-api/internal/store"
)

// Verify interface compliance at compile time
var _ LetterScheduler = (*letterScheduler)(nil)

type letterScheduler struct {
	store        store.LetterStore
	rules        delivery.Service
	clock        delivery.TimeProvider
	emitter      events.EventEmitter
	logger       *slog.Logger
	dueBatchSize int
}

// NewLetterScheduler creates a LetterScheduler.
// A nil emitter disables lifecycle events; a nil logger uses slog.Default().
func NewLetterScheduler(
	letterStore store.LetterStore,
	rules delivery.Service,
	clock delivery.TimeProvider,
	emitter events.EventEmitter,
	logger *slog.Logger,
	opts ...Option,
) LetterScheduler {
	if letterStore == nil {
		panic("letterStore cannot be nil")
	}
	if rules == nil {
		panic("rules cannot be nil")
	}
	if clock == nil {
		panic("clock cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &letterScheduler{
		store:        letterStore,
		rules:        rules,
		clock:        clock,
		emitter:      emitter,
		logger:       logger.With(slog.String("component", "letter_scheduler")),
		dueBatchSize: DefaultDueBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateLetter implements LetterScheduler.CreateLetter.
func (s *letterScheduler) CreateLetter(
	ctx context.Context,
	draft domain.LetterDraft,
	spec domain.DeliverySpec,
) (uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	now := s.clock.Now()

	letter := domain.NewLetter(draft, now)
	if err := s.rules.ValidateLetter(letter); err != nil {
		log.Debug("letter rejected",
			slog.String("user_id", draft.UserID.String()),
			slog.String("error", err.Error()))
		return uuid.Nil, err
	}

	spec = spec.UTC()
	if err := s.rules.ValidateSpec(spec, now); err != nil {
		log.Debug("delivery spec rejected",
			slog.String("user_id", draft.UserID.String()),
			slog.String("kind", string(spec.Kind)),
			slog.String("error", err.Error()))
		return uuid.Nil, err
	}

	first := spec.FirstDueAt()
	rec := &domain.LetterRecord{
		Letter: *letter,
		Spec:   spec,
		Schedule: domain.ScheduleState{
			State:     domain.StateScheduled,
			NextDueAt: &first,
			Version:   1,
			UpdatedAt: now,
		},
	}

	if err := s.store.Create(ctx, rec); err != nil {
		log.Error("failed to persist letter",
			slog.String("error", err.Error()),
			slog.String("letter_id", letter.ID.String()),
			slog.String("user_id", letter.UserID.String()))
		return uuid.Nil, NewServiceError(OpCreateLetter, "failed to persist letter", err)
	}

	log.Info("letter scheduled",
		slog.String("letter_id", letter.ID.String()),
		slog.String("user_id", letter.UserID.String()),
		slog.String("kind", string(spec.Kind)),
		slog.Time("next_due_at", first))

	s.emit(ctx, events.NewLetterEvent(events.LetterCreated, rec, now))
	return letter.ID, nil
}

// DueCheck implements LetterScheduler.DueCheck.
func (s *letterScheduler) DueCheck(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	recs, err := s.store.QueryDue(ctx, now, s.dueBatchSize)
	if err != nil {
		log.Error("failed to query due letters", slog.String("error", err.Error()))
		return nil, NewServiceError(OpDueCheck, "failed to query due letters", err)
	}

	ids := make([]uuid.UUID, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.Letter.ID)
	}

	log.Debug("due check complete", slog.Time("now", now), slog.Int("due", len(ids)))
	return ids, nil
}

// DeliverOccurrence implements LetterScheduler.DeliverOccurrence.
func (s *letterScheduler) DeliverOccurrence(
	ctx context.Context,
	id uuid.UUID,
	now time.Time,
) (*domain.ScheduleState, error) {
	st, _, err := s.deliver(ctx, id, now, 0)
	return st, err
}

// RetryDelivery implements LetterScheduler.RetryDelivery.
func (s *letterScheduler) RetryDelivery(
	ctx context.Context,
	id uuid.UUID,
	now time.Time,
	occurrence int,
) (*domain.ScheduleState, bool, error) {
	if occurrence < 1 {
		return nil, false, NewServiceError(OpDeliverOccurrence, "retry needs the contested occurrence", domain.ErrInvalidSchedule)
	}
	return s.deliver(ctx, id, now, occurrence)
}

// deliver records the next occurrence of a letter. When occurrence is
// positive and the stored count has already reached it, the stored state is
// returned unchanged with applied false.
func (s *letterScheduler) deliver(
	ctx context.Context,
	id uuid.UUID,
	now time.Time,
	occurrence int,
) (*domain.ScheduleState, bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("letter_id", id.String()))

	rec, err := s.load(ctx, OpDeliverOccurrence, id)
	if err != nil {
		return nil, false, err
	}

	if occurrence > 0 && rec.Schedule.OccurrencesDelivered >= occurrence {
		log.Debug("occurrence already recorded by another writer",
			slog.Int("occurrence", occurrence),
			slog.Int("occurrences_delivered", rec.Schedule.OccurrencesDelivered))
		committed := rec.Schedule
		return &committed, false, nil
	}

	cur := rec.Schedule
	if cur.State != domain.StateScheduled {
		log.Warn("delivery attempted on unscheduled letter", slog.String("state", string(cur.State)))
		return nil, false, domain.NewTransitionError(cur.State, domain.StateDelivered)
	}
	if cur.NextDueAt == nil {
		return nil, false, NewServiceError(OpDeliverOccurrence, "scheduled letter has no next due instant", domain.ErrInvalidSchedule)
	}
	if now.Before(*cur.NextDueAt) {
		log.Debug("occurrence not yet due", slog.Time("next_due_at", *cur.NextDueAt), slog.Time("now", now))
		return nil, false, domain.NewNotYetDueError(*cur.NextDueAt)
	}

	next := domain.ScheduleState{
		OccurrencesDelivered: cur.OccurrencesDelivered + 1,
		Version:              cur.Version + 1,
		UpdatedAt:            s.clock.Now(),
	}

	switch {
	case !rec.Spec.IsRecurring():
		next.State = domain.StateDelivered
	case s.rules.OccurrencesRemaining(rec.Spec, next.OccurrencesDelivered) == 0:
		next.State = domain.StateExhausted
	default:
		due, err := s.rules.Occurrence(rec.Spec.Anchor, rec.Spec.Unit, next.OccurrencesDelivered)
		if err != nil {
			return nil, false, NewServiceError(OpDeliverOccurrence, "failed to compute next occurrence", err)
		}
		next.State = domain.StateScheduled
		next.NextDueAt = &due
	}

	if err := s.save(ctx, OpDeliverOccurrence, id, cur.Version, next); err != nil {
		if errors.Is(err, domain.ErrStorageConflict) {
			return nil, false, domain.NewDeliveryConflictError(next.OccurrencesDelivered, errors.Unwrap(err))
		}
		return nil, false, err
	}

	log.Info("occurrence delivered",
		slog.String("state", string(next.State)),
		slog.Int("occurrences_delivered", next.OccurrencesDelivered))

	rec.Schedule = next
	s.emit(ctx, events.NewLetterEvent(events.LetterDelivered, rec, now))
	if next.State == domain.StateExhausted {
		s.emit(ctx, events.NewLetterEvent(events.LetterExhausted, rec, now))
	}

	return &next, true, nil
}

// CancelLetter implements LetterScheduler.CancelLetter.
func (s *letterScheduler) CancelLetter(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("letter_id", id.String()))

	rec, err := s.load(ctx, OpCancelLetter, id)
	if err != nil {
		return err
	}

	cur := rec.Schedule
	if cur.State != domain.StateDraft && cur.State != domain.StateScheduled {
		log.Warn("cancel attempted on finished letter", slog.String("state", string(cur.State)))
		return domain.NewTransitionError(cur.State, domain.StateCancelled)
	}

	now := s.clock.Now()
	next := domain.ScheduleState{
		State:                domain.StateCancelled,
		OccurrencesDelivered: cur.OccurrencesDelivered,
		Version:              cur.Version + 1,
		UpdatedAt:            now,
	}
	if err := s.save(ctx, OpCancelLetter, id, cur.Version, next); err != nil {
		return err
	}

	log.Info("letter cancelled", slog.Int("occurrences_delivered", next.OccurrencesDelivered))

	rec.Schedule = next
	s.emit(ctx, events.NewLetterEvent(events.LetterCancelled, rec, now))
	return nil
}

// GetLetter implements LetterScheduler.GetLetter.
func (s *letterScheduler) GetLetter(ctx context.Context, id, userID uuid.UUID) (*domain.LetterRecord, error) {
	rec, err := s.load(ctx, OpGetLetter, id)
	if err != nil {
		return nil, err
	}
	if rec.Letter.UserID != userID {
		logger.FromContextOrDefault(ctx, s.logger).Warn("letter requested by non-owner",
			slog.String("letter_id", id.String()),
			slog.String("user_id", userID.String()))
		return nil, domain.NewNotFoundError(nil)
	}
	return rec, nil
}

// ListLetters implements LetterScheduler.ListLetters.
func (s *letterScheduler) ListLetters(
	ctx context.Context,
	userID uuid.UUID,
	limit, offset int,
) ([]*domain.LetterRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	recs, err := s.store.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list letters",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, NewServiceError(OpListLetters, "failed to list letters", err)
	}
	if recs == nil {
		recs = []*domain.LetterRecord{}
	}
	return recs, nil
}

func (s *letterScheduler) load(ctx context.Context, op string, id uuid.UUID) (*domain.LetterRecord, error) {
	rec, err := s.store.Load(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, domain.NewNotFoundError(err)
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to load letter",
			slog.String("error", err.Error()),
			slog.String("letter_id", id.String()),
			slog.String("operation", op))
		return nil, NewServiceError(op, "failed to load letter", err)
	}
	return rec, nil
}

func (s *letterScheduler) save(
	ctx context.Context,
	op string,
	id uuid.UUID,
	expectedVersion int64,
	next domain.ScheduleState,
) error {
	err := s.store.Save(ctx, id, expectedVersion, next)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrConflict):
		logger.FromContextOrDefault(ctx, s.logger).Warn("lost concurrent update",
			slog.String("letter_id", id.String()),
			slog.String("operation", op),
			slog.Int64("expected_version", expectedVersion))
		return domain.NewConflictError(err)
	case store.IsNotFoundError(err):
		return domain.NewNotFoundError(err)
	default:
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to save schedule",
			slog.String("error", err.Error()),
			slog.String("letter_id", id.String()),
			slog.String("operation", op))
		return NewServiceError(op, "failed to save schedule", err)
	}
}

// emit publishes event after its transition has been persisted. Handler
// failures are logged; they cannot undo the transition.
func (s *letterScheduler) emit(ctx context.Context, event *events.LetterEvent) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("event handler failed",
			slog.String("error", err.Error()),
			slog.String("event_type", string(event.Type)),
			slog.String("letter_id", event.LetterID.String()))
	}
}
