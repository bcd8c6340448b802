package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mailbox_poller"

// Metrics holds all Prometheus metrics
type Metrics struct {
	Ticks           prometheus.Counter
	TickFailures    prometheus.Counter
	Dispatches      *prometheus.CounterVec
	Runs            *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	NewMessages     prometheus.Counter
	SkippedMessages *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
	Enrichment      *prometheus.CounterVec
	InFlight        prometheus.Gauge
}

// NewMetrics registers the collectors with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of scheduler ticks",
		}),
		TickFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_failures_total",
			Help:      "Scheduler ticks that could not load eligible accounts",
		}),
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Dispatch attempts by result (accepted, duplicate, rejected)",
		}, []string{"result"}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Per-user mailbox checks by outcome",
		}, []string{"outcome"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Time spent checking one user's mailbox",
			Buckets:   prometheus.DefBuckets,
		}),
		NewMessages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_new_total",
			Help:      "Messages recorded for the first time",
		}),
		SkippedMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_skipped_total",
			Help:      "Fetched messages that were not notified, by reason",
		}, []string{"reason"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification attempts by result",
		}, []string{"result"}),
		Enrichment: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_enqueued_total",
			Help:      "Enrichment enqueue attempts by result",
		}, []string{"result"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight",
			Help:      "Users currently queued or being processed",
		}),
	}
}
