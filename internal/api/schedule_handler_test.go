package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/futureself-api/internal/api/shared"
	"github.com/phrazzld/futureself-api/internal/domain/delivery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func previewRouter() http.Handler {
	h := NewScheduleHandler(delivery.NewDefaultService(), delivery.NewFixedClock(testNow), nil)
	r := chi.NewRouter()
	r.Post("/api/schedule/preview", h.PreviewSchedule)
	return r
}

func TestPreviewSchedule(t *testing.T) {
	t.Parallel()

	t.Run("month end clamps without drifting", func(t *testing.T) {
		t.Parallel()

		rr := do(t, previewRouter(), http.MethodPost, "/api/schedule/preview", map[string]any{
			"kind":   "recurring",
			"anchor": "2026-01-31T09:00:00+02:00",
			"unit":   "months",
			"count":  4,
		})

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		resp := decode[PreviewResponse](t, rr)
		want := []time.Time{
			time.Date(2026, 1, 31, 7, 0, 0, 0, time.UTC),
			time.Date(2026, 2, 28, 7, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 31, 7, 0, 0, 0, time.UTC),
			time.Date(2026, 4, 30, 7, 0, 0, 0, time.UTC),
		}
		require.Len(t, resp.Occurrences, len(want))
		for i := range want {
			assert.True(t, want[i].Equal(resp.Occurrences[i]), "occurrence %d: %s", i, resp.Occurrences[i])
		}
	})

	t.Run("one-shot", func(t *testing.T) {
		t.Parallel()

		due := testNow.AddDate(0, 0, 2)
		rr := do(t, previewRouter(), http.MethodPost, "/api/schedule/preview", map[string]any{
			"kind":   "one_shot",
			"due_at": due.Format(time.RFC3339),
		})

		require.Equal(t, http.StatusOK, rr.Code)
		resp := decode[PreviewResponse](t, rr)
		require.Len(t, resp.Occurrences, 1)
		assert.True(t, due.Equal(resp.Occurrences[0]))
	})

	t.Run("lead time enforced", func(t *testing.T) {
		t.Parallel()

		rr := do(t, previewRouter(), http.MethodPost, "/api/schedule/preview", map[string]any{
			"kind":   "one_shot",
			"due_at": testNow.Add(23 * time.Hour).Format(time.RFC3339),
		})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decode[shared.ErrorResponse](t, rr).Error, "too soon")
	})

	t.Run("zero count", func(t *testing.T) {
		t.Parallel()

		rr := do(t, previewRouter(), http.MethodPost, "/api/schedule/preview", map[string]any{
			"kind":   "recurring",
			"anchor": testNow.AddDate(0, 1, 0).Format(time.RFC3339),
			"unit":   "days",
		})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decode[shared.ErrorResponse](t, rr).Error, "count must be at least 1")
	})

	t.Run("count is capped", func(t *testing.T) {
		t.Parallel()

		for _, count := range []int{1001, 5_000_000, 2_000_000_000} {
			rr := do(t, previewRouter(), http.MethodPost, "/api/schedule/preview", map[string]any{
				"kind":   "recurring",
				"anchor": testNow.AddDate(0, 1, 0).Format(time.RFC3339),
				"unit":   "days",
				"count":  count,
			})

			assert.Equal(t, http.StatusBadRequest, rr.Code, "count %d", count)
			assert.Equal(t, "Invalid count: too large", decode[shared.ErrorResponse](t, rr).Error)
		}
	})

	t.Run("largest count", func(t *testing.T) {
		t.Parallel()

		rr := do(t, previewRouter(), http.MethodPost, "/api/schedule/preview", map[string]any{
			"kind":   "recurring",
			"anchor": testNow.AddDate(0, 1, 0).Format(time.RFC3339),
			"unit":   "days",
			"count":  1000,
		})

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Len(t, decode[PreviewResponse](t, rr).Occurrences, 1000)
	})

	t.Run("past the delivery horizon", func(t *testing.T) {
		t.Parallel()

		rr := do(t, previewRouter(), http.MethodPost, "/api/schedule/preview", map[string]any{
			"kind":   "one_shot",
			"due_at": "2300-01-01T00:00:00Z",
		})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decode[shared.ErrorResponse](t, rr).Error, "too far ahead")
	})
}

func TestNewScheduleHandlerPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { NewScheduleHandler(nil, delivery.SystemClock{}, nil) })
	assert.Panics(t, func() { NewScheduleHandler(delivery.NewDefaultService(), nil, nil) })
}
