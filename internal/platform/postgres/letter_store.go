package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/futureself-api/internal/domain"
	"github.com/phrazzld/futureself-api/internal/platform/logger"
	"github.com/phrazzld/futureself-api/internal/store"
)

// PostgresLetterStore implements the store.LetterStore interface
// using a PostgreSQL database as the storage backend.
type PostgresLetterStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresLetterStore creates a new PostgreSQL implementation of the LetterStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresLetterStore(db store.DBTX, logger *slog.Logger) *PostgresLetterStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresLetterStore{
		db:     db,
		logger: logger.With(slog.String("component", "letter_store")),
	}
}

// Ensure PostgresLetterStore implements store.LetterStore interface
var _ store.LetterStore = (*PostgresLetterStore)(nil)

const letterColumns = `
	id, user_id, title, content,
	mood, weather, temperature, location, current_song, top_headline,
	spec_kind, due_at, anchor_at, interval_unit, occurrence_count,
	state, next_due_at, occurrences_delivered, version, created_at, updated_at`

// Create implements store.LetterStore.Create.
// The letter row and its goals are written in one transaction.
func (s *PostgresLetterStore) Create(ctx context.Context, rec *domain.LetterRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := rec.Schedule.Validate(); err != nil {
		log.Warn("schedule validation failed during create",
			slog.String("error", err.Error()),
			slog.String("letter_id", rec.Letter.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	l := rec.Letter
	m := l.Metadata
	dueAt, anchor, unit, count := specColumns(rec.Spec)

	err := store.WithinTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO letters (`+letterColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
				$16, $17, $18, $19, $20, $21)`,
			l.ID, l.UserID, l.Title, l.Content,
			nullString((*string)(m.Mood)), nullString((*string)(m.Weather)),
			nullFloat(m.Temperature), nullString(m.Location),
			nullString(m.CurrentSong), nullString(m.TopHeadline),
			string(rec.Spec.Kind), dueAt, anchor, unit, count,
			string(rec.Schedule.State), nullTime(rec.Schedule.NextDueAt),
			rec.Schedule.OccurrencesDelivered, rec.Schedule.Version,
			l.CreatedAt, rec.Schedule.UpdatedAt,
		)
		if err != nil {
			return err
		}

		for i, g := range l.Goals {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO letter_goals (letter_id, position, text, completed) VALUES ($1, $2, $3, $4)`,
				l.ID, i, g.Text, g.Completed,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if IsUniqueViolation(err) {
			log.Warn("letter already exists", slog.String("letter_id", l.ID.String()))
			return fmt.Errorf("%w: %v", store.ErrLetterExists, err)
		}
		log.Error("failed to create letter",
			slog.String("error", err.Error()),
			slog.String("letter_id", l.ID.String()),
			slog.String("user_id", l.UserID.String()))
		return MapError(err)
	}

	log.Debug("letter created",
		slog.String("letter_id", l.ID.String()),
		slog.String("user_id", l.UserID.String()),
		slog.Int("goals", len(l.Goals)))
	return nil
}

// Load implements store.LetterStore.Load.
// Returns store.ErrLetterNotFound if the letter does not exist.
func (s *PostgresLetterStore) Load(ctx context.Context, id uuid.UUID) (*domain.LetterRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	row := s.db.QueryRowContext(ctx, `SELECT `+letterColumns+` FROM letters WHERE id = $1`, id)
	rec, err := scanLetter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("letter not found", slog.String("letter_id", id.String()))
			return nil, store.ErrLetterNotFound
		}
		log.Error("failed to load letter",
			slog.String("error", err.Error()),
			slog.String("letter_id", id.String()))
		return nil, MapError(err)
	}

	if err := s.attachGoals(ctx, rec); err != nil {
		log.Error("failed to load letter goals",
			slog.String("error", err.Error()),
			slog.String("letter_id", id.String()))
		return nil, err
	}
	return rec, nil
}

// Save implements store.LetterStore.Save.
// The update only applies when the stored version equals expectedVersion.
func (s *PostgresLetterStore) Save(
	ctx context.Context,
	id uuid.UUID,
	expectedVersion int64,
	state domain.ScheduleState,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := state.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE letters
		SET state = $1, next_due_at = $2, occurrences_delivered = $3, version = $4, updated_at = $5
		WHERE id = $6 AND version = $7`,
		string(state.State), nullTime(state.NextDueAt), state.OccurrencesDelivered,
		state.Version, state.UpdatedAt, id, expectedVersion,
	)
	if err != nil {
		log.Error("failed to save schedule",
			slog.String("error", err.Error()),
			slog.String("letter_id", id.String()))
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		log.Debug("schedule saved",
			slog.String("letter_id", id.String()),
			slog.String("state", string(state.State)),
			slog.Int64("version", state.Version))
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM letters WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return MapError(err)
	}
	if !exists {
		return store.ErrLetterNotFound
	}

	log.Warn("schedule version conflict",
		slog.String("letter_id", id.String()),
		slog.Int64("expected_version", expectedVersion))
	return fmt.Errorf("%w: letter %s is no longer at version %d", store.ErrConflict, id, expectedVersion)
}

// QueryDue implements store.LetterStore.QueryDue.
func (s *PostgresLetterStore) QueryDue(ctx context.Context, now time.Time, limit int) ([]*domain.LetterRecord, error) {
	// LIMIT NULL means no limit in PostgreSQL.
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	return s.query(ctx, `
		SELECT `+letterColumns+`
		FROM letters
		WHERE state = $1 AND next_due_at <= $2
		ORDER BY next_due_at ASC, id ASC
		LIMIT $3`,
		string(domain.StateScheduled), now.UTC(), lim,
	)
}

// ListByUser implements store.LetterStore.ListByUser.
func (s *PostgresLetterStore) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
	limit, offset int,
) ([]*domain.LetterRecord, error) {
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	if offset < 0 {
		offset = 0
	}
	return s.query(ctx, `
		SELECT `+letterColumns+`
		FROM letters
		WHERE user_id = $1
		ORDER BY created_at DESC, id ASC
		LIMIT $2 OFFSET $3`,
		userID, lim, offset,
	)
}

// WithTx implements store.LetterStore.WithTx.
// It returns a new LetterStore instance that uses the provided transaction.
func (s *PostgresLetterStore) WithTx(tx *sql.Tx) store.LetterStore {
	return &PostgresLetterStore{
		db:     tx,
		logger: s.logger,
	}
}

func (s *PostgresLetterStore) query(ctx context.Context, q string, args ...any) ([]*domain.LetterRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		log.Error("failed to query letters", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*domain.LetterRecord
	for rows.Next() {
		rec, err := scanLetter(rows)
		if err != nil {
			return nil, MapError(err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	// Goals are fetched after the cursor is closed; a transaction-scoped
	// store cannot run a second query while rows are open.
	_ = rows.Close()

	for _, rec := range recs {
		if err := s.attachGoals(ctx, rec); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (s *PostgresLetterStore) attachGoals(ctx context.Context, rec *domain.LetterRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT text, completed FROM letter_goals WHERE letter_id = $1 ORDER BY position`,
		rec.Letter.ID,
	)
	if err != nil {
		return MapError(err)
	}
	defer func() { _ = rows.Close() }()

	goals := []domain.Goal{}
	for rows.Next() {
		var g domain.Goal
		if err := rows.Scan(&g.Text, &g.Completed); err != nil {
			return MapError(err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return MapError(err)
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
		mood, weather, location, song, headline sql.NullString
		temperature                             sql.NullFloat64
		kind, state                             string
		dueAt, anchor, nextDueAt                sql.NullTime
		unit                                    sql.NullString
		count                                   sql.NullInt64
	)

	err := row.Scan(
		&rec.Letter.ID, &rec.Letter.UserID, &rec.Letter.Title, &rec.Letter.Content,
		&mood, &weather, &temperature, &location, &song, &headline,
		&kind, &dueAt, &anchor, &unit, &count,
		&state, &nextDueAt, &rec.Schedule.OccurrencesDelivered, &rec.Schedule.Version,
		&rec.Letter.CreatedAt, &rec.Schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Letter.CreatedAt = rec.Letter.CreatedAt.UTC()
	rec.Schedule.UpdatedAt = rec.Schedule.UpdatedAt.UTC()

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
		rec.Spec.DueAt = dueAt.Time.UTC()
	}
	if anchor.Valid {
		rec.Spec.Anchor = anchor.Time.UTC()
	}
	rec.Spec.Unit = domain.Unit(unit.String)
	rec.Spec.Count = int(count.Int64)

	st, err := domain.ParseState(state)
	if err != nil {
		return nil, err
	}
	rec.Schedule.State = st
	if nextDueAt.Valid {
		t := nextDueAt.Time.UTC()
		rec.Schedule.NextDueAt = &t
	}
	return &rec, nil
}

func specColumns(spec domain.DeliverySpec) (dueAt, anchor sql.NullTime, unit sql.NullString, count sql.NullInt64) {
	if spec.IsRecurring() {
		anchor = sql.NullTime{Time: spec.Anchor.UTC(), Valid: true}
		unit = sql.NullString{String: string(spec.Unit), Valid: true}
		count = sql.NullInt64{Int64: int64(spec.Count), Valid: true}
		return
	}
	dueAt = sql.NullTime{Time: spec.DueAt.UTC(), Valid: true}
	return
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

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
