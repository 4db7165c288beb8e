package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies scheduling and validation failures.
type ErrorKind string

// Error kinds returned by the scheduling engine.
const (
	KindMissingRequiredField   ErrorKind = "missing_required_field"
	KindLeadTimeTooShort       ErrorKind = "lead_time_too_short"
	KindInvalidRecurrence      ErrorKind = "invalid_recurrence"
	KindInvalidMetadata        ErrorKind = "invalid_metadata"
	KindNotYetDue              ErrorKind = "not_yet_due"
	KindInvalidStateTransition ErrorKind = "invalid_state_transition"
	KindStorageConflict        ErrorKind = "storage_conflict"
	KindNotFound               ErrorKind = "not_found"
	KindBeyondHorizon          ErrorKind = "beyond_horizon"
)

// Sentinel values for matching with errors.Is. Any *ScheduleError with the
// same Kind matches, regardless of its field, reason or wrapped cause.
var (
	ErrMissingRequiredField   = &ScheduleError{Kind: KindMissingRequiredField}
	ErrLeadTimeTooShort       = &ScheduleError{Kind: KindLeadTimeTooShort}
	ErrInvalidRecurrence      = &ScheduleError{Kind: KindInvalidRecurrence}
	ErrInvalidMetadata        = &ScheduleError{Kind: KindInvalidMetadata}
	ErrNotYetDue              = &ScheduleError{Kind: KindNotYetDue}
	ErrInvalidStateTransition = &ScheduleError{Kind: KindInvalidStateTransition}
	ErrStorageConflict        = &ScheduleError{Kind: KindStorageConflict}
	ErrNotFound               = &ScheduleError{Kind: KindNotFound}
	ErrBeyondHorizon          = &ScheduleError{Kind: KindBeyondHorizon}
)

// Entity validation errors that are not part of the scheduling taxonomy.
var (
	// ErrInvalidUnit is returned when a recurrence unit is not recognized.
	ErrInvalidUnit = errors.New("invalid recurrence unit")

	// ErrInvalidState is returned when a schedule state tag is not recognized.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidSchedule is returned when a ScheduleState breaks its invariants.
	ErrInvalidSchedule = errors.New("invalid schedule state")
)

// ScheduleError is the error type for every rejected scheduling operation.
type ScheduleError struct {
	Kind ErrorKind

	// Field names the offending input for MissingRequiredField and InvalidMetadata.
	Field string

	// Reason is a human-readable detail for InvalidRecurrence and friends.
	Reason string

	// From and To are set for InvalidStateTransition.
	From State
	To   State

	// Occurrence is the 1-based occurrence a lost delivery tried to record.
	// It is set for StorageConflict errors returned by deliveries.
	Occurrence int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ScheduleError) Error() string {
	var msg string
	switch e.Kind {
	case KindMissingRequiredField:
		msg = fmt.Sprintf("missing required field: %s", e.Field)
	case KindLeadTimeTooShort:
		msg = "delivery date is too soon"
	case KindInvalidRecurrence:
		msg = "invalid recurrence"
	case KindInvalidMetadata:
		msg = fmt.Sprintf("invalid metadata field: %s", e.Field)
	case KindNotYetDue:
		msg = "occurrence not yet due"
	case KindInvalidStateTransition:
		msg = fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
	case KindStorageConflict:
		msg = "storage conflict: letter was modified concurrently"
	case KindNotFound:
		msg = "letter not found"
	case KindBeyondHorizon:
		msg = "delivery date is too far ahead"
	default:
		msg = string(e.Kind)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ScheduleError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *ScheduleError of the same kind.
func (e *ScheduleError) Is(target error) bool {
	t, ok := target.(*ScheduleError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the ErrorKind of the first *ScheduleError in err's chain,
// or the empty kind when there is none.
func KindOf(err error) ErrorKind {
	var se *ScheduleError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// NewMissingFieldError reports a required field that is absent or blank.
func NewMissingFieldError(field string) *ScheduleError {
	return &ScheduleError{Kind: KindMissingRequiredField, Field: field}
}

// NewLeadTimeError reports a due instant that does not clear the minimum lead time.
func NewLeadTimeError(dueAt, now time.Time, minLead time.Duration) *ScheduleError {
	return &ScheduleError{
		Kind: KindLeadTimeTooShort,
		Reason: fmt.Sprintf("due at %s must be more than %s after %s",
			dueAt.UTC().Format(time.RFC3339), minLead, now.UTC().Format(time.RFC3339)),
	}
}

// NewHorizonError reports a due instant later than the latest supported one.
func NewHorizonError(dueAt, latest time.Time) *ScheduleError {
	return &ScheduleError{
		Kind: KindBeyondHorizon,
		Reason: fmt.Sprintf("due at %s is after %s",
			dueAt.UTC().Format(time.RFC3339), latest.UTC().Format(time.RFC3339)),
	}
}

// NewRecurrenceError reports an unusable recurring delivery spec.
func NewRecurrenceError(reason string) *ScheduleError {
	return &ScheduleError{Kind: KindInvalidRecurrence, Reason: reason}
}

// NewMetadataError reports an optional metadata value outside its allowed set.
func NewMetadataError(field, reason string) *ScheduleError {
	return &ScheduleError{Kind: KindInvalidMetadata, Field: field, Reason: reason}
}

// NewNotYetDueError reports a delivery attempted before the next due instant.
func NewNotYetDueError(nextDueAt time.Time) *ScheduleError {
	return &ScheduleError{
		Kind:   KindNotYetDue,
		Reason: "next due at " + nextDueAt.UTC().Format(time.RFC3339),
	}
}

// NewTransitionError reports a lifecycle transition the state machine forbids.
func NewTransitionError(from, to State) *ScheduleError {
	return &ScheduleError{Kind: KindInvalidStateTransition, From: from, To: to}
}

// NewConflictError reports a lost optimistic-concurrency race.
func NewConflictError(err error) *ScheduleError {
	return &ScheduleError{Kind: KindStorageConflict, Err: err}
}

// NewDeliveryConflictError reports a delivery of occurrence that lost an
// optimistic-concurrency race.
func NewDeliveryConflictError(occurrence int, err error) *ScheduleError {
	return &ScheduleError{Kind: KindStorageConflict, Occurrence: occurrence, Err: err}
}

// ConflictOccurrence returns the occurrence carried by a delivery conflict in
// err's chain, or 0 when there is none.
func ConflictOccurrence(err error) int {
	var se *ScheduleError
	if errors.As(err, &se) && se.Kind == KindStorageConflict {
		return se.Occurrence
	}
	return 0
}

// NewNotFoundError reports a letter that does not exist.
func NewNotFoundError(err error) *ScheduleError {
	return &ScheduleError{Kind: KindNotFound, Err: err}
}

// IsValidationError reports whether err is one of the input validation kinds
// returned at creation time.
func IsValidationError(err error) bool {
	switch KindOf(err) {
	case KindMissingRequiredField, KindLeadTimeTooShort, KindInvalidRecurrence, KindInvalidMetadata, KindBeyondHorizon:
		return true
	default:
		return false
	}
}
