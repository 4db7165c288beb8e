// Package scheduler turns delivery intent into durable schedules and advances
// letters through their lifecycle as deliveries occur.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/futureself-api/internal/domain"
)

// LetterScheduler is the delivery scheduling engine.
//
// Every method returns a *domain.ScheduleError for rejected operations, so
// callers can branch on errors.Is(err, domain.ErrNotYetDue) and friends.
// Unexpected failures are wrapped in *ServiceError.
type LetterScheduler interface {
	// CreateLetter validates the letter and its delivery spec against the
	// scheduler's clock and persists it in the scheduled state.
	//
	// Returns:
	//   - MissingRequiredField or InvalidMetadata for a bad letter
	//   - LeadTimeTooShort or InvalidRecurrence for a bad spec
	//
	// Nothing is persisted when validation fails.
	CreateLetter(ctx context.Context, draft domain.LetterDraft, spec domain.DeliverySpec) (uuid.UUID, error)

	// DueCheck returns the IDs of scheduled letters whose next due instant is
	// at or before now, earliest first. It does not modify anything.
	DueCheck(ctx context.Context, now time.Time) ([]uuid.UUID, error)

	// DeliverOccurrence records that the current occurrence of a letter was
	// delivered at now and advances its schedule.
	//
	// Returns:
	//   - NotFound if the letter does not exist
	//   - InvalidStateTransition if the letter is not scheduled
	//   - NotYetDue if now is before the next due instant (nothing changes)
	//   - StorageConflict if another writer changed the letter concurrently;
	//     the error carries the contested occurrence (domain.ConflictOccurrence)
	DeliverOccurrence(ctx context.Context, id uuid.UUID, now time.Time) (*domain.ScheduleState, error)

	// RetryDelivery repeats a delivery that failed with StorageConflict.
	// occurrence is the 1-based occurrence the failed call tried to record.
	// If another writer already recorded it, the committed state is returned
	// with applied false and nothing changes, so a retry never records a
	// later occurrence in its place. Otherwise it behaves like
	// DeliverOccurrence and applied is true.
	RetryDelivery(ctx context.Context, id uuid.UUID, now time.Time, occurrence int) (st *domain.ScheduleState, applied bool, err error)

	// CancelLetter stops all future deliveries of a draft or scheduled letter.
	//
	// Returns InvalidStateTransition from a terminal state, NotFound for an
	// unknown letter, and StorageConflict if a delivery won the race.
	CancelLetter(ctx context.Context, id uuid.UUID) error

	// GetLetter returns a letter owned by userID. A letter owned by someone
	// else is reported as NotFound.
	GetLetter(ctx context.Context, id, userID uuid.UUID) (*domain.LetterRecord, error)

	// ListLetters returns the user's letters, newest first.
	ListLetters(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.LetterRecord, error)
}

// ServiceError wraps unexpected failures from the scheduler with the
// operation that produced them.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "create_letter", "deliver_occurrence")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError returns a ServiceError for operation.
func NewServiceError(operation, message string, err error) *ServiceError {
	return &ServiceError{Operation: operation, Message: message, Err: err}
}

// Operation names used in ServiceError and logs.
const (
	OpCreateLetter      = "create_letter"
	OpDueCheck          = "due_check"
	OpDeliverOccurrence = "deliver_occurrence"
	OpCancelLetter      = "cancel_letter"
	OpGetLetter         = "get_letter"
	OpListLetters       = "list_letters"
)

// Paging defaults for ListLetters.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// DefaultDueBatchSize bounds how many letters one DueCheck returns.
const DefaultDueBatchSize = 100

// Option configures a scheduler built by NewLetterScheduler.
type Option func(*letterScheduler)

// WithDueBatchSize caps the number of IDs DueCheck returns. Values below one
// mean no cap.
func WithDueBatchSize(n int) Option {
	return func(s *letterScheduler) {
		s.dueBatchSize = n
	}
}
