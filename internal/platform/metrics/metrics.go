package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/phrazzld/futureself-api/internal/domain"
	"github.com/phrazzld/futureself-api/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "futureself"

// Verify interface compliance at compile time
var _ events.EventHandler = (*Recorder)(nil)

// Recorder collects scheduling metrics.
type Recorder struct {
	registry *prometheus.Registry

	// transitions counts committed lifecycle events.
	// Labels: event (letter.created, letter.delivered, ...), cadence (one_shot, recurring)
	transitions *prometheus.CounterVec

	// transitionErrors counts rejected or failed scheduler operations.
	// Labels: operation, kind (error kind or "internal")
	transitionErrors *prometheus.CounterVec

	// pollDuration measures one due-poll cycle end to end.
	pollDuration prometheus.Histogram

	// pollDue tracks how many letters the last poll found due.
	pollDue prometheus.Gauge

	// notifications counts notifier calls.
	// Labels: outcome (sent, failed)
	notifications *prometheus.CounterVec
}

// NewRecorder creates a Recorder with Go runtime and process collectors
// registered alongside the scheduling metrics.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "letters",
			Name:      "transitions_total",
			Help:      "Committed letter lifecycle transitions",
		}, []string{"event", "cadence"}),
		transitionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "letters",
			Name:      "transition_errors_total",
			Help:      "Scheduler operations that were rejected or failed",
		}, []string{"operation", "kind"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one due-poll cycle in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		pollDue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "due_letters",
			Help:      "Letters found due by the most recent poll",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Delivery notifications by outcome",
		}, []string{"outcome"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.transitions,
		r.transitionErrors,
		r.pollDuration,
		r.pollDue,
		r.notifications,
	)
	return r
}

// HandleEvent counts a committed lifecycle transition.
func (r *Recorder) HandleEvent(_ context.Context, event *events.LetterEvent) error {
	cadence := string(domain.SpecOneShot)
	if event.Recurring {
		cadence = string(domain.SpecRecurring)
	}
	r.transitions.WithLabelValues(string(event.Type), cadence).Inc()
	return nil
}

// ObserveError counts a failed scheduler operation. Errors that carry no
// domain kind are counted as "internal".
func (r *Recorder) ObserveError(operation string, err error) {
	if err == nil {
		return
	}
	kind := string(domain.KindOf(err))
	if kind == "" {
		kind = "internal"
	}
	r.transitionErrors.WithLabelValues(operation, kind).Inc()
}

// ObservePoll records one completed poll cycle.
func (r *Recorder) ObservePoll(elapsed time.Duration, due int) {
	r.pollDuration.Observe(elapsed.Seconds())
	r.pollDue.Set(float64(due))
}

// ObserveNotification records a notifier call.
func (r *Recorder) ObserveNotification(err error) {
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	r.notifications.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
