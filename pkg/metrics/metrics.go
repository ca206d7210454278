package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/notifykit/pkg/queue"
)

const namespace = "notifykit"

// Metrics holds the notification pipeline collectors. All methods are safe
// to call on a nil *Metrics, which records nothing.
type Metrics struct {
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	rateLimited      *prometheus.CounterVec
	retries          *prometheus.CounterVec
	jobs             *prometheus.CounterVec
	queueDepth       *prometheus.GaugeVec
	auditDropped     prometheus.Counter
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// to expose them on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		dispatchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Channel dispatch outcomes by channel and status.",
			},
			[]string{"channel", "status"},
		),
		dispatchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Duration of channel dispatch calls.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"channel"},
		),
		rateLimited: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Dispatches blocked by the rate limiter by channel and reason.",
			},
			[]string{"channel", "reason"},
		),
		retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Retry state transitions by channel and outcome.",
			},
			[]string{"channel", "outcome"},
		),
		jobs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_processed_total",
				Help:      "Processed notification jobs by aggregated result.",
			},
			[]string{"result"},
		),
		queueDepth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_jobs",
				Help:      "Jobs in the queue by state.",
			},
			[]string{"state"},
		),
		auditDropped: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_dropped_total",
				Help:      "Audit records that could not be handed to the audit logger.",
			},
		),
	}
}

// Retry outcomes.
const (
	RetryScheduled = "scheduled"
	RetryRecovered = "recovered"
	RetryExhausted = "exhausted"
)

func (m *Metrics) ObserveDispatch(channel, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(channel, status).Inc()
	m.dispatchDuration.WithLabelValues(channel).Observe(d.Seconds())
}

func (m *Metrics) RateLimited(channel, reason string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(channel, reason).Inc()
}

func (m *Metrics) Retry(channel, outcome string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) JobProcessed(result string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(result).Inc()
}

func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

// ObserveQueue publishes a queue stats snapshot.
func (m *Metrics) ObserveQueue(s queue.Stats) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(string(queue.StatusWaiting)).Set(float64(s.Waiting))
	m.queueDepth.WithLabelValues(string(queue.StatusDelayed)).Set(float64(s.Delayed))
	m.queueDepth.WithLabelValues(string(queue.StatusActive)).Set(float64(s.Active))
	m.queueDepth.WithLabelValues(string(queue.StatusCompleted)).Set(float64(s.Completed))
	m.queueDepth.WithLabelValues(string(queue.StatusFailed)).Set(float64(s.Failed))
}

// Handler serves the collectors gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
