package delivery

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/futureself-api/internal/domain"
)

// MinLeadTime is the default minimum gap between now and a letter's first
// due instant.
const MinLeadTime = 24 * time.Hour

// MaxOccurrences caps the count of a recurring delivery.
const MaxOccurrences = 1000

// LatestDueAt is the last instant any occurrence may fall on. Every store
// can represent instants up to it.
var LatestDueAt = time.Date(2200, time.January, 1, 0, 0, 0, 0, time.UTC)

// ValidateSpec checks spec against the default lead time.
func ValidateSpec(spec domain.DeliverySpec, now time.Time) error {
	return validateSpec(spec, now, MinLeadTime)
}

// ValidateLetter checks that the letter has an owner, a title and a body, and
// that its metadata uses recognized values. Title and body are checked after
// trimming whitespace; title is checked first.
func ValidateLetter(letter *domain.Letter) error {
	if letter == nil {
		return domain.NewMissingFieldError("letter")
	}
	if letter.UserID == uuid.Nil {
		return domain.NewMissingFieldError("user_id")
	}
	if strings.TrimSpace(letter.Title) == "" {
		return domain.NewMissingFieldError("title")
	}
	if strings.TrimSpace(letter.Content) == "" {
		return domain.NewMissingFieldError("content")
	}
	return letter.Metadata.Validate()
}

func validateSpec(spec domain.DeliverySpec, now time.Time, minLead time.Duration) error {
	switch spec.Kind {
	case domain.SpecOneShot:
		if !clearsLeadTime(spec.DueAt, now, minLead) {
			return domain.NewLeadTimeError(spec.DueAt, now, minLead)
		}
		if spec.DueAt.After(LatestDueAt) {
			return domain.NewHorizonError(spec.DueAt, LatestDueAt)
		}
		return nil

	case domain.SpecRecurring:
		if !spec.Unit.Valid() {
			return domain.NewRecurrenceError("unrecognized unit " + string(spec.Unit))
		}
		if spec.Count < 1 {
			return domain.NewRecurrenceError("count must be at least 1")
		}
		if spec.Count > MaxOccurrences {
			return domain.NewRecurrenceError(fmt.Sprintf("count must be at most %d", MaxOccurrences))
		}
		if spec.Anchor.IsZero() {
			return domain.NewRecurrenceError("anchor is not a valid instant")
		}
		if !clearsLeadTime(spec.Anchor, now, minLead) {
			return domain.NewRecurrenceError("anchor violates minimum lead time of " + minLead.String())
		}
		last, err := Occurrence(spec.Anchor, spec.Unit, spec.Count-1)
		if err != nil {
			return domain.NewRecurrenceError(err.Error())
		}
		if last.After(LatestDueAt) {
			return domain.NewHorizonError(last, LatestDueAt)
		}
		return nil

	default:
		return domain.NewRecurrenceError("unknown delivery kind " + string(spec.Kind))
	}
}

// clearsLeadTime reports whether due is strictly later than now + minLead.
func clearsLeadTime(due, now time.Time, minLead time.Duration) bool {
	return due.After(now.Add(minLead))
}
