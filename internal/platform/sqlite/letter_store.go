package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/futureself-api/internal/domain"
	"github.com/phrazzld/futureself-api/internal/platform/logger"
	"github.com/phrazzld/futureself-api/internal/store"
)

// LetterStore implements store.LetterStore on SQLite. Instants are stored as
// UTC unix nanoseconds, so only years 1678 through 2262 round-trip; Create
// and Save reject anything outside that range with store.ErrInvalidEntity.
type LetterStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewLetterStore creates a SQLite LetterStore over db, which may be a
// connection pool or a transaction. If logger is nil, a default logger will be used.
func NewLetterStore(db store.DBTX, logger *slog.Logger) *LetterStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LetterStore{
		db:     db,
		logger: logger.With(slog.String("component", "letter_store"), slog.String("driver", "sqlite")),
	}
}

var _ store.LetterStore = (*LetterStore)(nil)

const letterColumns = `
	id, user_id, title, content,
	mood, weather, temperature, location, current_song, top_headline,
	spec_kind, due_at, anchor_at, interval_unit, occurrence_count,
	state, next_due_at, occurrences_delivered, version, created_at, updated_at`

// Create implements store.LetterStore.Create.
func (s *LetterStore) Create(ctx context.Context, rec *domain.LetterRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := rec.Schedule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	if err := checkRecordInstants(rec); err != nil {
		return err
	}

	l := rec.Letter
	m := l.Metadata
	dueAt, anchor, unit, count := specColumns(rec.Spec)

	err := store.WithinTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO letters (`+letterColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID.String(), l.UserID.String(), l.Title, l.Content,
			nullString((*string)(m.Mood)), nullString((*string)(m.Weather)),
			nullFloat(m.Temperature), nullString(m.Location),
			nullString(m.CurrentSong), nullString(m.TopHeadline),
			string(rec.Spec.Kind), dueAt, anchor, unit, count,
			string(rec.Schedule.State), nullNanos(rec.Schedule.NextDueAt),
			rec.Schedule.OccurrencesDelivered, rec.Schedule.Version,
			l.CreatedAt.UnixNano(), rec.Schedule.UpdatedAt.UnixNano(),
		); err != nil {
			return err
		}

		for i, g := range l.Goals {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO letter_goals (letter_id, position, text, completed) VALUES (?, ?, ?, ?)`,
				l.ID.String(), i, g.Text, g.Completed,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isConstraintError(err, "UNIQUE") || isConstraintError(err, "PRIMARY KEY") {
			return fmt.Errorf("%w: %v", store.ErrLetterExists, err)
		}
		log.Error("failed to create letter",
			slog.String("error", err.Error()),
			slog.String("letter_id", l.ID.String()))
		if isConstraintError(err, "") {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
		return err
	}
	return nil
}

// Load implements store.LetterStore.Load.
func (s *LetterStore) Load(ctx context.Context, id uuid.UUID) (*domain.LetterRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+letterColumns+` FROM letters WHERE id = ?`, id.String())
	rec, err := scanLetter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrLetterNotFound
	}
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to load letter",
			slog.String("error", err.Error()),
			slog.String("letter_id", id.String()))
		return nil, err
	}
	if err := s.attachGoals(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Save implements store.LetterStore.Save.
func (s *LetterStore) Save(ctx context.Context, id uuid.UUID, expectedVersion int64, state domain.ScheduleState) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	if err := checkStateInstants(state); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE letters
		SET state = ?, next_due_at = ?, occurrences_delivered = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(state.State), nullNanos(state.NextDueAt), state.OccurrencesDelivered,
		state.Version, state.UpdatedAt.UnixNano(), id.String(), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM letters WHERE id = ?`, id.String()).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return store.ErrLetterNotFound
	}

	logger.FromContextOrDefault(ctx, s.logger).Warn("schedule version conflict",
		slog.String("letter_id", id.String()),
		slog.Int64("expected_version", expectedVersion))
	return fmt.Errorf("%w: letter %s is no longer at version %d", store.ErrConflict, id, expectedVersion)
}

// QueryDue implements store.LetterStore.QueryDue.
func (s *LetterStore) QueryDue(ctx context.Context, now time.Time, limit int) ([]*domain.LetterRecord, error) {
	// A negative LIMIT means no limit in SQLite.
	if limit <= 0 {
		limit = -1
	}
	return s.query(ctx, `
		SELECT `+letterColumns+`
		FROM letters
		WHERE state = ? AND next_due_at <= ?
		ORDER BY next_due_at ASC, id ASC
		LIMIT ?`,
		string(domain.StateScheduled), now.UnixNano(), limit,
	)
}

// ListByUser implements store.LetterStore.ListByUser.
func (s *LetterStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.LetterRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	return s.query(ctx, `
		SELECT `+letterColumns+`
		FROM letters
		WHERE user_id = ?
		ORDER BY created_at DESC, id ASC
		LIMIT ? OFFSET ?`,
		userID.String(), limit, offset,
	)
}

// WithTx implements store.LetterStore.WithTx.
func (s *LetterStore) WithTx(tx *sql.Tx) store.LetterStore {
	return &LetterStore{db: tx, logger: s.logger}
}

func (s *LetterStore) query(ctx context.Context, q string, args ...any) ([]*domain.LetterRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query letters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*domain.LetterRecord
	for rows.Next() {
		rec, err := scanLetter(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// The pool holds one connection; release it before fetching goals.
	_ = rows.Close()

	for _, rec := range recs {
		if err := s.attachGoals(ctx, rec); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (s *LetterStore) attachGoals(ctx context.Context, rec *domain.LetterRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT text, completed FROM letter_goals WHERE letter_id = ? ORDER BY position`,
		rec.Letter.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to load goals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	goals := []domain.Goal{}
	for rows.Next() {
		var g domain.Goal
		if err := rows.Scan(&g.Text, &g.Completed); err != nil {
			return err
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rec.Letter.Goals = goals
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLetter(row rowScanner) (*domain.LetterRecord, error) {
	var (
		rec                                     domain.LetterRecord
		id, userID, kind, state                 string
		mood, weather, location, song, headline sql.NullString
		temperature                             sql.NullFloat64
		dueAt, anchor, nextDueAt                sql.NullInt64
		unit                                    sql.NullString
		count                                   sql.NullInt64
		createdAt, updatedAt                    int64
	)

	if err := row.Scan(
		&id, &userID, &rec.Letter.Title, &rec.Letter.Content,
		&mood, &weather, &temperature, &location, &song, &headline,
		&kind, &dueAt, &anchor, &unit, &count,
		&state, &nextDueAt, &rec.Schedule.OccurrencesDelivered, &rec.Schedule.Version,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if rec.Letter.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt letter id %q: %w", id, err)
	}
	if rec.Letter.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("corrupt user id %q: %w", userID, err)
	}
	rec.Letter.CreatedAt = fromNanos(createdAt)
	rec.Schedule.UpdatedAt = fromNanos(updatedAt)

	if mood.Valid {
		v := domain.Mood(mood.String)
		rec.Letter.Metadata.Mood = &v
	}
	if weather.Valid {
		v := domain.Weather(weather.String)
		rec.Letter.Metadata.Weather = &v
	}
	if temperature.Valid {
		v := temperature.Float64
		rec.Letter.Metadata.Temperature = &v
	}
	rec.Letter.Metadata.Location = stringPtr(location)
	rec.Letter.Metadata.CurrentSong = stringPtr(song)
	rec.Letter.Metadata.TopHeadline = stringPtr(headline)

	rec.Spec.Kind = domain.SpecKind(kind)
	if dueAt.Valid {
		rec.Spec.DueAt = fromNanos(dueAt.Int64)
	}
	if anchor.Valid {
		rec.Spec.Anchor = fromNanos(anchor.Int64)
	}
	rec.Spec.Unit = domain.Unit(unit.String)
	rec.Spec.Count = int(count.Int64)

	if rec.Schedule.State, err = domain.ParseState(state); err != nil {
		return nil, err
	}
	if nextDueAt.Valid {
		t := fromNanos(nextDueAt.Int64)
		rec.Schedule.NextDueAt = &t
	}
	return &rec, nil
}

// isConstraintError reports whether err is a SQLite constraint failure whose
// message mentions kind. An empty kind matches any constraint failure.
func isConstraintError(err error, kind string) bool {
	msg := err.Error()
	if !strings.Contains(msg, "constraint failed") {
		return false
	}
	return kind == "" || strings.Contains(msg, kind)
}

func specColumns(spec domain.DeliverySpec) (dueAt, anchor sql.NullInt64, unit sql.NullString, count sql.NullInt64) {
	if spec.IsRecurring() {
		anchor = sql.NullInt64{Int64: spec.Anchor.UnixNano(), Valid: true}
		unit = sql.NullString{String: string(spec.Unit), Valid: true}
		count = sql.NullInt64{Int64: int64(spec.Count), Valid: true}
		return
	}
	dueAt = sql.NullInt64{Int64: spec.DueAt.UnixNano(), Valid: true}
	return
}

// Bounds of time.UnixNano.
var (
	minStorable = time.Unix(0, math.MinInt64)
	maxStorable = time.Unix(0, math.MaxInt64)
)

func checkInstant(field string, t time.Time) error {
	if t.Before(minStorable) || t.After(maxStorable) {
		return fmt.Errorf("%w: %s %s is outside the storable range", store.ErrInvalidEntity, field, t.UTC().Format(time.RFC3339))
	}
	return nil
}

func checkRecordInstants(rec *domain.LetterRecord) error {
	if err := checkInstant("created_at", rec.Letter.CreatedAt); err != nil {
		return err
	}
	if rec.Spec.IsRecurring() {
		if err := checkInstant("anchor_at", rec.Spec.Anchor); err != nil {
			return err
		}
	} else if err := checkInstant("due_at", rec.Spec.DueAt); err != nil {
		return err
	}
	return checkStateInstants(rec.Schedule)
}

func checkStateInstants(state domain.ScheduleState) error {
	if state.NextDueAt != nil {
		if err := checkInstant("next_due_at", *state.NextDueAt); err != nil {
			return err
		}
	}
	return checkInstant("updated_at", state.UpdatedAt)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
