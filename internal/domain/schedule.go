package domain

import (
	"fmt"
	"strings"
	"time"
)

// Unit is the granularity of a recurring delivery.
type Unit string

// Recognized recurrence units.
const (
	UnitDays   Unit = "days"
	UnitWeeks  Unit = "weeks"
	UnitMonths Unit = "months"
	UnitYears  Unit = "years"
)

// Valid reports whether u is one of the recognized units.
func (u Unit) Valid() bool {
	switch u {
	case UnitDays, UnitWeeks, UnitMonths, UnitYears:
		return true
	default:
		return false
	}
}

// ParseUnit accepts the plural unit names and their singular forms,
// case-insensitively.
func ParseUnit(s string) (Unit, error) {
	u := Unit(strings.ToLower(strings.TrimSpace(s)))
	if !strings.HasSuffix(string(u), "s") {
		u += "s"
	}
	if !u.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidUnit, s)
	}
	return u, nil
}

// SpecKind tags a DeliverySpec as one-shot or recurring.
type SpecKind string

// Delivery spec kinds.
const (
	SpecOneShot   SpecKind = "one_shot"
	SpecRecurring SpecKind = "recurring"
)

// DeliverySpec is the author's delivery intent: either a single due instant,
// or Count occurrences spaced one Unit apart starting at Anchor.
type DeliverySpec struct {
	Kind SpecKind `json:"kind"`

	// DueAt is set for one-shot specs.
	DueAt time.Time `json:"due_at,omitempty"`

	// Anchor, Unit and Count are set for recurring specs.
	Anchor time.Time `json:"anchor,omitempty"`
	Unit   Unit      `json:"unit,omitempty"`
	Count  int       `json:"count,omitempty"`
}

// OneShot returns a spec that delivers once at dueAt.
func OneShot(dueAt time.Time) DeliverySpec {
	return DeliverySpec{Kind: SpecOneShot, DueAt: dueAt}
}

// Recurring returns a spec that delivers count times, one unit apart, from anchor.
func Recurring(anchor time.Time, unit Unit, count int) DeliverySpec {
	return DeliverySpec{Kind: SpecRecurring, Anchor: anchor, Unit: unit, Count: count}
}

// IsRecurring reports whether the delivery repeats.
func (s DeliverySpec) IsRecurring() bool {
	return s.Kind == SpecRecurring
}

// FirstDueAt returns the instant of the first occurrence.
func (s DeliverySpec) FirstDueAt() time.Time {
	if s.IsRecurring() {
		return s.Anchor
	}
	return s.DueAt
}

// UTC returns a copy with every instant converted to UTC.
func (s DeliverySpec) UTC() DeliverySpec {
	out := s
	if !s.DueAt.IsZero() {
		out.DueAt = s.DueAt.UTC()
	}
	if !s.Anchor.IsZero() {
		out.Anchor = s.Anchor.UTC()
	}
	return out
}

// State is a letter's position in its delivery lifecycle.
type State string

// Lifecycle states. Delivered, Exhausted and Cancelled are terminal.
const (
	StateDraft     State = "draft"
	StateScheduled State = "scheduled"
	StateDelivered State = "delivered"
	StateExhausted State = "exhausted"
	StateCancelled State = "cancelled"
)

// Valid reports whether s is a recognized state.
func (s State) Valid() bool {
	switch s {
	case StateDraft, StateScheduled, StateDelivered, StateExhausted, StateCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible from s.
func (s State) IsTerminal() bool {
	return s == StateDelivered || s == StateExhausted || s == StateCancelled
}

// ParseState converts a stored state tag back to a State.
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
	return st, nil
}

// ScheduleState is the mutable delivery progress of a letter.
type ScheduleState struct {
	State                State      `json:"state"`
	NextDueAt            *time.Time `json:"next_due_at,omitempty"`
	OccurrencesDelivered int        `json:"occurrences_delivered"`

	// Version increases by one on every committed transition and backs the
	// store's compare-and-swap.
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that NextDueAt is present exactly when the letter is scheduled.
func (s ScheduleState) Validate() error {
	if !s.State.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, s.State)
	}
	if s.OccurrencesDelivered < 0 {
		return fmt.Errorf("%w: occurrences delivered is negative", ErrInvalidSchedule)
	}
	if s.State == StateScheduled && s.NextDueAt == nil {
		return fmt.Errorf("%w: scheduled letter has no next due instant", ErrInvalidSchedule)
	}
	if s.State != StateScheduled && s.NextDueAt != nil {
		return fmt.Errorf("%w: %s letter has a next due instant", ErrInvalidSchedule, s.State)
	}
	return nil
}

// LetterRecord is the unit of persistence: a letter, how it should be
// delivered, and how far delivery has progressed.
type LetterRecord struct {
	Letter   Letter        `json:"letter"`
	Spec     DeliverySpec  `json:"spec"`
	Schedule ScheduleState `json:"schedule"`
}
