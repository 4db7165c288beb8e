package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/futureself-api/internal/domain"
)

// LetterStore persists letters together with their delivery spec and
// schedule state. The schedule is the only mutable part of a record; the
// letter body and spec are written once by Create.
type LetterStore interface {
	// Create stores a new record atomically: letter, goals, spec and initial
	// schedule are all written or none are.
	// Returns ErrLetterExists if a record with the same ID is already stored.
	Create(ctx context.Context, rec *domain.LetterRecord) error

	// Load retrieves a record by letter ID.
	// Returns ErrLetterNotFound if no such letter exists.
	Load(ctx context.Context, id uuid.UUID) (*domain.LetterRecord, error)

	// Save replaces the schedule state of a letter if and only if the stored
	// version equals expectedVersion. state.Version must already carry the
	// new version.
	// Returns ErrConflict if the stored version differs, or
	// ErrLetterNotFound if the letter does not exist.
	Save(ctx context.Context, id uuid.UUID, expectedVersion int64, state domain.ScheduleState) error

	// QueryDue returns records in the scheduled state whose next due instant
	// is at or before now, ordered by next due instant ascending and then by
	// ID. A limit of zero or less means no limit.
	QueryDue(ctx context.Context, now time.Time, limit int) ([]*domain.LetterRecord, error)

	// ListByUser returns a user's records, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.LetterRecord, error)

	// WithTx returns a new LetterStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) LetterStore
}
