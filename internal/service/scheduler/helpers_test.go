package scheduler

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/futureself-api/internal/domain"
	"github.com/phrazzld/futureself-api/internal/events"
	"github.com/phrazzld/futureself-api/internal/store"
	"github.com/stretchr/testify/mock"
)

// memoryStore is a store.LetterStore with the same compare-and-swap
// semantics as the SQL stores.
type memoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]domain.LetterRecord
	saves   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[uuid.UUID]domain.LetterRecord)}
}

func cloneRecord(rec domain.LetterRecord) domain.LetterRecord {
	if rec.Schedule.NextDueAt != nil {
		t := *rec.Schedule.NextDueAt
		rec.Schedule.NextDueAt = &t
	}
	rec.Letter.Goals = append([]domain.Goal{}, rec.Letter.Goals...)
	return rec
}

func (m *memoryStore) Create(_ context.Context, rec *domain.LetterRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.Letter.ID]; ok {
		return store.ErrLetterExists
	}
	m.records[rec.Letter.ID] = cloneRecord(*rec)
	return nil
}

func (m *memoryStore) Load(_ context.Context, id uuid.UUID) (*domain.LetterRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, store.ErrLetterNotFound
	}
	out := cloneRecord(rec)
	return &out, nil
}

func (m *memoryStore) Save(_ context.Context, id uuid.UUID, expectedVersion int64, state domain.ScheduleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return store.ErrLetterNotFound
	}
	if rec.Schedule.Version != expectedVersion {
		return store.ErrConflict
	}
	rec.Schedule = state
	m.records[id] = cloneRecord(rec)
	m.saves++
	return nil
}

func (m *memoryStore) QueryDue(_ context.Context, now time.Time, limit int) ([]*domain.LetterRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.LetterRecord
	for _, rec := range m.records {
		if rec.Schedule.State == domain.StateScheduled && !rec.Schedule.NextDueAt.After(now) {
			r := cloneRecord(rec)
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Schedule.NextDueAt.Before(*out[j].Schedule.NextDueAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*domain.LetterRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.LetterRecord
	for _, rec := range m.records {
		if rec.Letter.UserID == userID {
			r := cloneRecord(rec)
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Letter.CreatedAt.After(out[j].Letter.CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) WithTx(*sql.Tx) store.LetterStore { return m }

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// put stores rec as-is, bypassing the scheduler.
func (m *memoryStore) put(rec domain.LetterRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Letter.ID] = cloneRecord(rec)
}

// mockLetterStore is a testify mock of store.LetterStore for injecting failures.
type mockLetterStore struct {
	mock.Mock
}

func (m *mockLetterStore) Create(ctx context.Context, rec *domain.LetterRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockLetterStore) Load(ctx context.Context, id uuid.UUID) (*domain.LetterRecord, error) {
	args := m.Called(ctx, id)
	if rec, ok := args.Get(0).(*domain.LetterRecord); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLetterStore) Save(ctx context.Context, id uuid.UUID, expectedVersion int64, state domain.ScheduleState) error {
	args := m.Called(ctx, id, expectedVersion, state)
	return args.Error(0)
}

func (m *mockLetterStore) QueryDue(ctx context.Context, now time.Time, limit int) ([]*domain.LetterRecord, error) {
	args := m.Called(ctx, now, limit)
	if recs, ok := args.Get(0).([]*domain.LetterRecord); ok {
		return recs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLetterStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.LetterRecord, error) {
	args := m.Called(ctx, userID, limit, offset)
	if recs, ok := args.Get(0).([]*domain.LetterRecord); ok {
		return recs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLetterStore) WithTx(*sql.Tx) store.LetterStore { return m }

// recordingEmitter captures emitted events.
type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.LetterEvent
	err    error
}

func (r *recordingEmitter) EmitEvent(_ context.Context, ev *events.LetterEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingEmitter) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}
