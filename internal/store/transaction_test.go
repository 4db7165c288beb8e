package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInTransaction(t *testing.T) {
	fnErr := errors.New("function failed")
	beginErr := errors.New("begin failed")
	commitErr := errors.New("commit failed")
	rollbackErr := errors.New("rollback failed")

	tests := []struct {
		name       string
		expect     func(m sqlmock.Sqlmock)
		fn         TxFn
		wantIs     error
		wantSubstr string
	}{
		{
			name: "commits on success",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectCommit()
			},
			fn: func(context.Context, *sql.Tx) error { return nil },
		},
		{
			name: "rolls back and returns the function error",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectRollback()
			},
			fn:     func(context.Context, *sql.Tx) error { return fnErr },
			wantIs: fnErr,
		},
		{
			name:       "begin failure",
			expect:     func(m sqlmock.Sqlmock) { m.ExpectBegin().WillReturnError(beginErr) },
			fn:         func(context.Context, *sql.Tx) error { return nil },
			wantIs:     beginErr,
			wantSubstr: "failed to begin transaction",
		},
		{
			name: "commit failure",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectCommit().WillReturnError(commitErr)
			},
			fn:         func(context.Context, *sql.Tx) error { return nil },
			wantIs:     commitErr,
			wantSubstr: "failed to commit transaction",
		},
		{
			name: "rollback failure keeps the original error",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectBegin()
				m.ExpectRollback().WillReturnError(rollbackErr)
			},
			fn:         func(context.Context, *sql.Tx) error { return fnErr },
			wantIs:     fnErr,
			wantSubstr: "rollback failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer func() { _ = db.Close() }()

			tt.expect(mock)
			err = RunInTransaction(context.Background(), db, tt.fn)
			if tt.wantIs == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantSubstr != "" {
				assert.Contains(t, err.Error(), tt.wantSubstr)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRunInTransactionRepanics(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "boom", func() {
		_ = RunInTransaction(context.Background(), db, func(context.Context, *sql.Tx) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx(t *testing.T) {
	t.Run("starts a transaction on a DB", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectBegin()
		mock.ExpectCommit()

		called := false
		err = WithinTx(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
			called = true
			assert.NotNil(t, tx)
			return nil
		})
		require.NoError(t, err)
		assert.True(t, called)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("joins an existing transaction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectBegin()
		tx, err := db.Begin()
		require.NoError(t, err)

		var got *sql.Tx
		err = WithinTx(context.Background(), tx, func(ctx context.Context, inner *sql.Tx) error {
			got = inner
			return nil
		})
		require.NoError(t, err)
		assert.Same(t, tx, got)

		// Neither commit nor rollback was issued by WithinTx.
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects unknown connection types", func(t *testing.T) {
		err := WithinTx(context.Background(), fakeConn{}, func(context.Context, *sql.Tx) error {
			return nil
		})
		assert.ErrorIs(t, err, ErrTransactionFailed)
	})
}

type fakeConn struct{ DBTX }
