package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassifiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		notFound  bool
		duplicate bool
		conflict  bool
	}{
		{name: "nil error"},
		{name: "generic error", err: errors.New("some error")},
		{name: "ErrNotFound", err: ErrNotFound, notFound: true},
		{name: "ErrLetterNotFound", err: ErrLetterNotFound, notFound: true},
		{
			name:     "wrapped ErrLetterNotFound",
			err:      fmt.Errorf("failed to load letter: %w", ErrLetterNotFound),
			notFound: true,
		},
		{name: "ErrLetterExists", err: ErrLetterExists, duplicate: true},
		{name: "ErrConflict", err: ErrConflict, conflict: true},
		{
			name:     "wrapped conflict",
			err:      fmt.Errorf("save letter: %w", ErrConflict),
			conflict: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notFound, IsNotFoundError(tt.err))
			assert.Equal(t, tt.duplicate, IsDuplicateError(tt.err))
			assert.Equal(t, tt.conflict, IsConflictError(tt.err))
		})
	}
}

func TestLetterNotFoundMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "entity not found: letter", ErrLetterNotFound.Error())
	assert.Equal(t, "entity already exists: letter", ErrLetterExists.Error())
}
