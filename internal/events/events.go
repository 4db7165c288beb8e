package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/futureself-api/internal/domain"
)

// EventType names a lifecycle transition.
type EventType string

// Letter lifecycle events.
const (
	LetterCreated   EventType = "letter.created"
	LetterDelivered EventType = "letter.delivered" // one occurrence delivered
	LetterExhausted EventType = "letter.exhausted" // last recurring occurrence delivered
	LetterCancelled EventType = "letter.cancelled"
)

// LetterEvent describes a committed change to a letter's schedule.
type LetterEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	Type     EventType `json:"type"`
	LetterID uuid.UUID `json:"letter_id"`
	UserID   uuid.UUID `json:"user_id"`

	// Schedule is the state after the transition.
	Schedule domain.ScheduleState `json:"schedule"`

	// Recurring is true for letters delivered on a cadence.
	Recurring bool `json:"recurring"`

	// OccurredAt is the scheduler's clock reading for the transition.
	OccurredAt time.Time `json:"occurred_at"`
}

// NewLetterEvent creates a LetterEvent for rec in its current schedule state.
func NewLetterEvent(eventType EventType, rec *domain.LetterRecord, at time.Time) *LetterEvent {
	return &LetterEvent{
		ID:         uuid.New(),
		Type:       eventType,
		LetterID:   rec.Letter.ID,
		UserID:     rec.Letter.UserID,
		Schedule:   rec.Schedule,
		Recurring:  rec.Spec.IsRecurring(),
		OccurredAt: at,
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *LetterEvent) error
}

// HandlerFunc adapts an ordinary function to the EventHandler interface.
type HandlerFunc func(ctx context.Context, event *LetterEvent) error

// HandleEvent calls f(ctx, event).
func (f HandlerFunc) HandleEvent(ctx context.Context, event *LetterEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *LetterEvent) error
}
