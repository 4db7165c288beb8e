package store

import (
	"errors"
	"fmt"
)

// Errors returned by every LetterStore implementation. Driver errors are
// wrapped so callers can match on these with errors.Is.
var (
	ErrNotFound  = errors.New("entity not found")
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity wraps a record that failed validation or a database
	// constraint before it could be written.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrConflict means a compare-and-swap write found a newer version.
	ErrConflict = errors.New("version conflict")

	// ErrTransactionFailed is returned when a transaction cannot be used.
	ErrTransactionFailed = errors.New("transaction failed")

	ErrLetterNotFound = fmt.Errorf("%w: letter", ErrNotFound)
	ErrLetterExists   = fmt.Errorf("%w: letter", ErrDuplicate)
)

// IsNotFoundError reports whether err is any kind of not-found error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError reports whether err is any kind of duplicate error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsConflictError reports whether err is a lost compare-and-swap.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}
