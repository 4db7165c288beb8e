package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/futureself-api/internal/api/shared"
	"github.com/phrazzld/futureself-api/internal/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) CreateLetter(ctx context.Context, draft domain.LetterDraft, spec domain.DeliverySpec) (uuid.UUID, error) {
	args := m.Called(ctx, draft, spec)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *mockScheduler) DueCheck(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, now)
	ids, _ := args.Get(0).([]uuid.UUID)
	return ids, args.Error(1)
}

func (m *mockScheduler) DeliverOccurrence(ctx context.Context, id uuid.UUID, now time.Time) (*domain.ScheduleState, error) {
	args := m.Called(ctx, id, now)
	st, _ := args.Get(0).(*domain.ScheduleState)
	return st, args.Error(1)
}

func (m *mockScheduler) RetryDelivery(ctx context.Context, id uuid.UUID, now time.Time, occurrence int) (*domain.ScheduleState, bool, error) {
	args := m.Called(ctx, id, now, occurrence)
	st, _ := args.Get(0).(*domain.ScheduleState)
	return st, args.Bool(1), args.Error(2)
}

func (m *mockScheduler) CancelLetter(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockScheduler) GetLetter(ctx context.Context, id, userID uuid.UUID) (*domain.LetterRecord, error) {
	args := m.Called(ctx, id, userID)
	rec, _ := args.Get(0).(*domain.LetterRecord)
	return rec, args.Error(1)
}

func (m *mockScheduler) ListLetters(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.LetterRecord, error) {
	args := m.Called(ctx, userID, limit, offset)
	recs, _ := args.Get(0).([]*domain.LetterRecord)
	return recs, args.Error(1)
}

// withUser injects userID the way the auth middleware would. uuid.Nil
// leaves the request unauthenticated.
func withUser(userID uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID != uuid.Nil {
				r = r.WithContext(shared.WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func letterRouter(h *LetterHandler, userID uuid.UUID) http.Handler {
	r := chi.NewRouter()
	r.Use(withUser(userID))
	r.Post("/api/letters", h.CreateLetter)
	r.Get("/api/letters", h.ListLetters)
	r.Get("/api/letters/{id}", h.GetLetter)
	r.Post("/api/letters/{id}/cancel", h.CancelLetter)
	return r
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

func scheduledRecord(userID uuid.UUID, spec domain.DeliverySpec) *domain.LetterRecord {
	next := spec.FirstDueAt()
	return &domain.LetterRecord{
		Letter: domain.Letter{
			ID:        uuid.New(),
			UserID:    userID,
			Title:     "Dear me",
			Content:   "Remember the lake.",
			CreatedAt: testNow,
		},
		Spec: spec,
		Schedule: domain.ScheduleState{
			State:     domain.StateScheduled,
			NextDueAt: &next,
			Version:   1,
			UpdatedAt: testNow,
		},
	}
}
