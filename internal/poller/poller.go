// Package poller drives deliveries. On every tick of a cron schedule it asks
// the scheduler which letters are due, records each delivery, and hands the
// delivered letters to a notifier.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/futureself-api/internal/domain"
	"github.com/phrazzld/futureself-api/internal/domain/delivery"
	"github.com/phrazzld/futureself-api/internal/notify"
	"github.com/phrazzld/futureself-api/internal/platform/logger"
	"github.com/phrazzld/futureself-api/internal/service/scheduler"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Common errors
var (
	ErrAlreadyStarted = errors.New("poller already started")
	ErrInvalidConfig  = errors.New("invalid poller configuration")
)

// Defaults applied by New to zero-valued Config fields.
const (
	DefaultSchedule    = "@every 1m"
	DefaultConcurrency = 4
	DefaultRatePerSec  = 5.0
)

// Config tunes a Poller.
type Config struct {
	// Schedule is a standard five-field cron spec or a descriptor such as
	// "@every 30s".
	Schedule string

	// Concurrency bounds how many letters are delivered at once.
	Concurrency int

	// RatePerSec paces notifier calls across all workers.
	RatePerSec float64
}

// Loader fetches a letter after its occurrence has been recorded.
// store.LetterStore satisfies it.
type Loader interface {
	Load(ctx context.Context, id uuid.UUID) (*domain.LetterRecord, error)
}

// Observer receives poller outcomes. metrics.Recorder satisfies it.
type Observer interface {
	ObserveError(operation string, err error)
	ObservePoll(elapsed time.Duration, due int)
	ObserveNotification(err error)
}

// Result summarizes one poll cycle.
type Result struct {
	Due       int
	Delivered int
	// Skipped counts letters another writer advanced first, including
	// occurrences a concurrent poller recorded.
	Skipped int
	Failed  int
	// NotifyFailed counts recorded deliveries the notifier could not accept.
	NotifyFailed int
}

// Poller periodically delivers due letters.
type Poller struct {
	sched    scheduler.LetterScheduler
	letters  Loader
	notifier notify.Notifier
	clock    delivery.TimeProvider
	observer Observer
	logger   *slog.Logger

	schedule    cron.Schedule
	spec        string
	concurrency int
	limiter     *rate.Limiter

	mu   sync.Mutex
	cron *cron.Cron
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New creates a Poller. A nil observer disables metrics; a nil logger uses
// slog.Default().
func New(
	cfg Config,
	sched scheduler.LetterScheduler,
	letters Loader,
	notifier notify.Notifier,
	clock delivery.TimeProvider,
	observer Observer,
	l *slog.Logger,
) (*Poller, error) {
	if sched == nil {
		panic("sched cannot be nil")
	}
	if letters == nil {
		panic("letters cannot be nil")
	}
	if notifier == nil {
		panic("notifier cannot be nil")
	}
	if clock == nil {
		panic("clock cannot be nil")
	}
	if l == nil {
		l = slog.Default()
	}
	if observer == nil {
		observer = noopObserver{}
	}

	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = DefaultRatePerSec
	}
	if cfg.Concurrency < 0 || cfg.RatePerSec < 0 {
		return nil, fmt.Errorf("%w: concurrency and rate must be positive", ErrInvalidConfig)
	}

	schedule, err := cronParser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, cfg.Schedule, err)
	}

	burst := int(cfg.RatePerSec)
	if burst < 1 {
		burst = 1
	}

	return &Poller{
		sched:       sched,
		letters:     letters,
		notifier:    notifier,
		clock:       clock,
		observer:    observer,
		logger:      l.With(slog.String("component", "due_poller")),
		schedule:    schedule,
		spec:        cfg.Schedule,
		concurrency: cfg.Concurrency,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
	}, nil
}

// Start runs RunOnce on every tick until Stop is called or ctx is done.
// Ticks that arrive while a cycle is still running are skipped.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return ErrAlreadyStarted
	}

	p.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	p.cron.Schedule(p.schedule, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := p.RunOnce(ctx); err != nil {
			p.logger.Error("poll cycle failed", slog.String("error", err.Error()))
		}
	}))
	p.cron.Start()

	go func() {
		<-ctx.Done()
		p.Stop(context.Background())
	}()

	p.logger.Info("due poller started",
		slog.String("schedule", p.spec),
		slog.Int("concurrency", p.concurrency),
		slog.Float64("notify_rate_per_sec", float64(p.limiter.Limit())))
	return nil
}

// Stop halts the schedule and waits for a running cycle to finish, or for
// ctx to be done, whichever comes first.
func (p *Poller) Stop(ctx context.Context) {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
		p.logger.Info("due poller stopped")
	case <-ctx.Done():
		p.logger.Warn("due poller stop timed out", slog.String("error", ctx.Err().Error()))
	}
}

// RunOnce performs a single poll cycle at the clock's current instant.
// Per-letter failures are counted in the Result; only a failed due check
// is returned as an error.
func (p *Poller) RunOnce(ctx context.Context) (Result, error) {
	log := logger.FromContextOrDefault(ctx, p.logger)
	started := time.Now()
	now := p.clock.Now()

	ids, err := p.sched.DueCheck(ctx, now)
	if err != nil {
		p.observer.ObserveError(scheduler.OpDueCheck, err)
		return Result{}, fmt.Errorf("due check failed: %w", err)
	}

	var delivered, skipped, failed, notifyFailed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			switch p.deliver(gctx, id, now) {
			case outcomeDelivered:
				delivered.Add(1)
			case outcomeNotifyFailed:
				delivered.Add(1)
				notifyFailed.Add(1)
			case outcomeSkipped:
				skipped.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{
		Due:          len(ids),
		Delivered:    int(delivered.Load()),
		Skipped:      int(skipped.Load()),
		Failed:       int(failed.Load()),
		NotifyFailed: int(notifyFailed.Load()),
	}
	p.observer.ObservePoll(time.Since(started), res.Due)

	if res.Due > 0 {
		log.Info("poll cycle complete",
			slog.Time("now", now),
			slog.Int("due", res.Due),
			slog.Int("delivered", res.Delivered),
			slog.Int("skipped", res.Skipped),
			slog.Int("failed", res.Failed),
			slog.Int("notify_failed", res.NotifyFailed))
	}
	return res, nil
}

type outcome int

const (
	outcomeDelivered outcome = iota
	outcomeNotifyFailed
	outcomeSkipped
	outcomeFailed
)

func (p *Poller) deliver(ctx context.Context, id uuid.UUID, now time.Time) outcome {
	log := logger.FromContextOrDefault(ctx, p.logger).With(slog.String("letter_id", id.String()))

	st, err := p.sched.DeliverOccurrence(ctx, id, now)
	if errors.Is(err, domain.ErrStorageConflict) {
		occurrence := domain.ConflictOccurrence(err)
		log.Debug("retrying delivery after conflict", slog.Int("occurrence", occurrence))
		p.observer.ObserveError(scheduler.OpDeliverOccurrence, err)

		var applied bool
		st, applied, err = p.sched.RetryDelivery(ctx, id, now, occurrence)
		if err == nil && !applied {
			// The winner recorded this occurrence and notifies for it.
			log.Debug("occurrence recorded by another writer", slog.Int("occurrence", occurrence))
			return outcomeSkipped
		}
	}
	if err != nil {
		p.observer.ObserveError(scheduler.OpDeliverOccurrence, err)
		switch domain.KindOf(err) {
		case domain.KindNotYetDue, domain.KindInvalidStateTransition, domain.KindNotFound:
			log.Debug("letter no longer due", slog.String("reason", err.Error()))
			return outcomeSkipped
		default:
			log.Error("failed to deliver occurrence", slog.String("error", err.Error()))
			return outcomeFailed
		}
	}

	rec, err := p.letters.Load(ctx, id)
	if err != nil {
		log.Error("delivered letter could not be loaded for notification", slog.String("error", err.Error()))
		p.observer.ObserveNotification(err)
		return outcomeNotifyFailed
	}

	if err := p.limiter.Wait(ctx); err != nil {
		log.Warn("notification abandoned", slog.String("error", err.Error()))
		p.observer.ObserveNotification(err)
		return outcomeNotifyFailed
	}

	err = p.notifier.Notify(ctx, notify.Delivery{
		LetterID:    rec.Letter.ID,
		UserID:      rec.Letter.UserID,
		Title:       rec.Letter.Title,
		Content:     rec.Letter.Content,
		Occurrence:  st.OccurrencesDelivered,
		Final:       st.State != domain.StateScheduled,
		DeliveredAt: now,
	})
	p.observer.ObserveNotification(err)
	if err != nil {
		log.Error("notifier failed", slog.String("error", err.Error()))
		return outcomeNotifyFailed
	}
	return outcomeDelivered
}

type noopObserver struct{}

func (noopObserver) ObserveError(string, error)     {}
func (noopObserver) ObservePoll(time.Duration, int) {}
func (noopObserver) ObserveNotification(error)      {}
