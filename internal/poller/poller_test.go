package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/futureself-api/internal/domain"
	"github.com/phrazzld/futureself-api/internal/domain/delivery"
	"github.com/phrazzld/futureself-api/internal/notify"
	"github.com/phrazzld/futureself-api/internal/service/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pollNow = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

// fakeScheduler serves DueCheck from a fixed list and DeliverOccurrence from
// a per-letter script of results.
type fakeScheduler struct {
	scheduler.LetterScheduler

	mu      sync.Mutex
	due     []uuid.UUID
	dueErr  error
	script  map[uuid.UUID][]deliverResult
	calls   map[uuid.UUID]int
	retries map[uuid.UUID][]int
	dueNows []time.Time
}

type deliverResult struct {
	state *domain.ScheduleState
	err   error
	// recordedElsewhere makes a retry report the occurrence as already applied.
	recordedElsewhere bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		script:  make(map[uuid.UUID][]deliverResult),
		calls:   make(map[uuid.UUID]int),
		retries: make(map[uuid.UUID][]int),
	}
}

func (f *fakeScheduler) add(id uuid.UUID, results ...deliverResult) {
	f.due = append(f.due, id)
	f.script[id] = results
}

func (f *fakeScheduler) DueCheck(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dueNows = append(f.dueNows, now)
	return f.due, f.dueErr
}

func (f *fakeScheduler) DeliverOccurrence(_ context.Context, id uuid.UUID, now time.Time) (*domain.ScheduleState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls[id]
	f.calls[id] = n + 1
	script := f.script[id]
	if n >= len(script) {
		return nil, domain.NewTransitionError(domain.StateDelivered, domain.StateDelivered)
	}
	return script[n].state, script[n].err
}

func (f *fakeScheduler) RetryDelivery(ctx context.Context, id uuid.UUID, now time.Time, occurrence int) (*domain.ScheduleState, bool, error) {
	f.mu.Lock()
	f.retries[id] = append(f.retries[id], occurrence)
	n := f.calls[id]
	var elsewhere bool
	if n < len(f.script[id]) {
		elsewhere = f.script[id][n].recordedElsewhere
	}
	f.mu.Unlock()

	st, err := f.DeliverOccurrence(ctx, id, now)
	return st, err == nil && !elsewhere, err
}

func (f *fakeScheduler) retriesFor(id uuid.UUID) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retries[id]
}

func (f *fakeScheduler) callsFor(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type mapLoader map[uuid.UUID]*domain.LetterRecord

func (m mapLoader) Load(_ context.Context, id uuid.UUID) (*domain.LetterRecord, error) {
	rec, ok := m[id]
	if !ok {
		return nil, errors.New("no such letter")
	}
	return rec, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []notify.Delivery
	errOn map[uuid.UUID]error
}

func (r *recordingNotifier) Notify(_ context.Context, d notify.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errOn[d.LetterID]; err != nil {
		return err
	}
	r.sent = append(r.sent, d)
	return nil
}

func (r *recordingNotifier) deliveries() []notify.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Delivery(nil), r.sent...)
}

type countingObserver struct {
	mu            sync.Mutex
	errors        []domain.ErrorKind
	polls         int
	lastDue       int
	notifications int
}

func (c *countingObserver) ObserveError(_ string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, domain.KindOf(err))
}

func (c *countingObserver) ObservePoll(_ time.Duration, due int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	c.lastDue = due
}

func (c *countingObserver) ObserveNotification(error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications++
}

func letterRecord(id uuid.UUID) *domain.LetterRecord {
	return &domain.LetterRecord{Letter: domain.Letter{ID: id, UserID: uuid.New(), Title: "hi", Content: "future you"}}
}

func scheduled(delivered int) *domain.ScheduleState {
	next := pollNow.AddDate(0, 1, 0)
	return &domain.ScheduleState{State: domain.StateScheduled, NextDueAt: &next, OccurrencesDelivered: delivered}
}

func finished(state domain.State, delivered int) *domain.ScheduleState {
	return &domain.ScheduleState{State: state, OccurrencesDelivered: delivered}
}

func newTestPoller(t *testing.T, sched *fakeScheduler, letters mapLoader, n notify.Notifier, obs Observer) *Poller {
	t.Helper()

	p, err := New(Config{Concurrency: 2, RatePerSec: 1000}, sched, letters, n, delivery.NewFixedClock(pollNow), obs, nil)
	require.NoError(t, err)
	return p
}

func TestRunOnceDeliversAndNotifies(t *testing.T) {
	t.Parallel()

	sched := newFakeScheduler()
	oneShot, recurring := uuid.New(), uuid.New()
	sched.add(oneShot, deliverResult{state: finished(domain.StateDelivered, 1)})
	sched.add(recurring, deliverResult{state: scheduled(2)})
	letters := mapLoader{oneShot: letterRecord(oneShot), recurring: letterRecord(recurring)}
	n := &recordingNotifier{}
	obs := &countingObserver{}

	res, err := newTestPoller(t, sched, letters, n, obs).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Due: 2, Delivered: 2}, res)
	assert.Equal(t, []time.Time{pollNow}, sched.dueNows)

	byID := map[uuid.UUID]notify.Delivery{}
	for _, d := range n.deliveries() {
		byID[d.LetterID] = d
	}
	require.Len(t, byID, 2)
	assert.True(t, byID[oneShot].Final)
	assert.Equal(t, 1, byID[oneShot].Occurrence)
	assert.False(t, byID[recurring].Final)
	assert.Equal(t, 2, byID[recurring].Occurrence)
	assert.Equal(t, "future you", byID[recurring].Content)
	assert.Equal(t, pollNow, byID[recurring].DeliveredAt)

	assert.Equal(t, 1, obs.polls)
	assert.Equal(t, 2, obs.lastDue)
	assert.Equal(t, 2, obs.notifications)
}

func TestRunOnceRetriesOnceOnConflict(t *testing.T) {
	t.Parallel()

	sched := newFakeScheduler()
	recovered, stillLosing, alreadyDone, behind := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	sched.add(recovered, deliverResult{err: domain.NewDeliveryConflictError(3, nil)}, deliverResult{state: scheduled(3)})
	sched.add(stillLosing,
		deliverResult{err: domain.NewDeliveryConflictError(1, nil)},
		deliverResult{err: domain.NewDeliveryConflictError(1, nil)},
		deliverResult{state: scheduled(1)})
	sched.add(alreadyDone,
		deliverResult{err: domain.NewDeliveryConflictError(1, nil)},
		deliverResult{err: domain.NewNotYetDueError(pollNow.Add(time.Hour))})
	// A lagging letter whose next occurrence is also due: the retry finds the
	// contested occurrence recorded and must not record another.
	sched.add(behind,
		deliverResult{err: domain.NewDeliveryConflictError(2, nil)},
		deliverResult{state: scheduled(2), recordedElsewhere: true})

	letters := mapLoader{
		recovered:   letterRecord(recovered),
		stillLosing: letterRecord(stillLosing),
		alreadyDone: letterRecord(alreadyDone),
		behind:      letterRecord(behind),
	}
	n := &recordingNotifier{}

	res, err := newTestPoller(t, sched, letters, n, nil).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Due: 4, Delivered: 1, Skipped: 2, Failed: 1}, res)
	assert.Equal(t, 2, sched.callsFor(recovered))
	assert.Equal(t, 2, sched.callsFor(stillLosing), "only one retry")
	assert.Equal(t, 2, sched.callsFor(alreadyDone))
	assert.Equal(t, 2, sched.callsFor(behind))

	assert.Equal(t, []int{3}, sched.retriesFor(recovered))
	assert.Equal(t, []int{1}, sched.retriesFor(stillLosing))
	assert.Equal(t, []int{2}, sched.retriesFor(behind), "retry names the contested occurrence")

	sent := n.deliveries()
	require.Len(t, sent, 1, "only successful transitions are notified")
	assert.Equal(t, recovered, sent[0].LetterID)
}

func TestRunOnceSkipsRejectedTransitions(t *testing.T) {
	t.Parallel()

	sched := newFakeScheduler()
	cancelled, gone, broken := uuid.New(), uuid.New(), uuid.New()
	sched.add(cancelled, deliverResult{err: domain.NewTransitionError(domain.StateCancelled, domain.StateDelivered)})
	sched.add(gone, deliverResult{err: domain.NewNotFoundError(nil)})
	sched.add(broken, deliverResult{err: scheduler.NewServiceError(scheduler.OpDeliverOccurrence, "failed to save schedule", errors.New("db down"))})
	n := &recordingNotifier{}
	obs := &countingObserver{}

	res, err := newTestPoller(t, sched, mapLoader{}, n, obs).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Due: 3, Skipped: 2, Failed: 1}, res)
	assert.Empty(t, n.deliveries())
	assert.ElementsMatch(t,
		[]domain.ErrorKind{domain.KindInvalidStateTransition, domain.KindNotFound, ""},
		obs.errors)
}

func TestRunOnceNotifierFailureKeepsDelivery(t *testing.T) {
	t.Parallel()

	sched := newFakeScheduler()
	id := uuid.New()
	sched.add(id, deliverResult{state: finished(domain.StateExhausted, 4)})
	n := &recordingNotifier{errOn: map[uuid.UUID]error{id: errors.New("webhook returned 500")}}

	res, err := newTestPoller(t, sched, mapLoader{id: letterRecord(id)}, n, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Due: 1, Delivered: 1, NotifyFailed: 1}, res)
	assert.Equal(t, 1, sched.callsFor(id), "a failed notification does not redeliver")
}

func TestRunOnceDueCheckFailure(t *testing.T) {
	t.Parallel()

	sched := newFakeScheduler()
	sched.dueErr = errors.New("query timeout")
	obs := &countingObserver{}

	_, err := newTestPoller(t, sched, mapLoader{}, &recordingNotifier{}, obs).RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, sched.dueErr)
	assert.Equal(t, 0, obs.polls)
	assert.Len(t, obs.errors, 1)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	sched := newFakeScheduler()
	clock := delivery.NewFixedClock(pollNow)
	n := &recordingNotifier{}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults", cfg: Config{}},
		{name: "cron spec", cfg: Config{Schedule: "*/5 * * * *"}},
		{name: "descriptor", cfg: Config{Schedule: "@hourly"}},
		{name: "garbage schedule", cfg: Config{Schedule: "every now and then"}, wantErr: true},
		{name: "negative concurrency", cfg: Config{Concurrency: -1}, wantErr: true},
		{name: "negative rate", cfg: Config{RatePerSec: -2}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg, sched, mapLoader{}, n, clock, nil, nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, p)
		})
	}

	assert.Panics(t, func() { _, _ = New(Config{}, nil, mapLoader{}, n, clock, nil, nil) })
	assert.Panics(t, func() { _, _ = New(Config{}, sched, nil, n, clock, nil, nil) })
	assert.Panics(t, func() { _, _ = New(Config{}, sched, mapLoader{}, nil, clock, nil, nil) })
	assert.Panics(t, func() { _, _ = New(Config{}, sched, mapLoader{}, n, nil, nil, nil) })
}

func TestStartRunsOnScheduleAndStops(t *testing.T) {
	t.Parallel()

	sched := newFakeScheduler()
	id := uuid.New()
	sched.add(id, deliverResult{state: finished(domain.StateDelivered, 1)})
	n := &recordingNotifier{}

	p, err := New(Config{Schedule: "@every 1s"}, sched, mapLoader{id: letterRecord(id)}, n, delivery.NewFixedClock(pollNow), nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, p.Start(ctx))
	assert.ErrorIs(t, p.Start(ctx), ErrAlreadyStarted)

	require.Eventually(t, func() bool { return len(n.deliveries()) == 1 }, 5*time.Second, 20*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	p.Stop(stopCtx)

	// Stopping twice is harmless and the poller can be restarted.
	p.Stop(stopCtx)
	require.NoError(t, p.Start(ctx))
	p.Stop(stopCtx)
}
