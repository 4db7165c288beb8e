package delivery

import (
	"errors"
	"time"

	"github.com/phrazzld/futureself-api/internal/domain"
)

// Common errors
var (
	ErrNegativeLeadTime = errors.New("minimum lead time must not be negative")
)

// Service bundles the scheduling rules the letter scheduler depends on.
type Service interface {
	// ValidateSpec checks delivery intent against the lead time at now.
	ValidateSpec(spec domain.DeliverySpec, now time.Time) error

	// ValidateLetter checks the letter's required fields and metadata.
	ValidateLetter(letter *domain.Letter) error

	// Occurrence returns the k-th due instant of a recurring schedule.
	Occurrence(anchor time.Time, unit domain.Unit, k int) (time.Time, error)

	// OccurrencesRemaining returns how many occurrences are still owed.
	OccurrencesRemaining(spec domain.DeliverySpec, delivered int) int

	// MinLeadTime returns the lead time this service enforces.
	MinLeadTime() time.Duration
}

// defaultService is the standard implementation of the Service interface
type defaultService struct {
	minLead time.Duration
}

// NewDefaultService creates a Service enforcing MinLeadTime.
func NewDefaultService() Service {
	return &defaultService{minLead: MinLeadTime}
}

// NewServiceWithLeadTime creates a Service enforcing a custom lead time.
func NewServiceWithLeadTime(minLead time.Duration) (Service, error) {
	if minLead < 0 {
		return nil, ErrNegativeLeadTime
	}
	return &defaultService{minLead: minLead}, nil
}

func (s *defaultService) ValidateSpec(spec domain.DeliverySpec, now time.Time) error {
	return validateSpec(spec, now, s.minLead)
}

func (s *defaultService) ValidateLetter(letter *domain.Letter) error {
	return ValidateLetter(letter)
}

func (s *defaultService) Occurrence(anchor time.Time, unit domain.Unit, k int) (time.Time, error) {
	return Occurrence(anchor, unit, k)
}

func (s *defaultService) OccurrencesRemaining(spec domain.DeliverySpec, delivered int) int {
	return OccurrencesRemaining(spec, delivered)
}

func (s *defaultService) MinLeadTime() time.Duration {
	return s.minLead
}
