package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Plugin metrics
	PluginInfoRequests       *prometheus.CounterVec
	PluginResolutionFailures *prometheus.CounterVec
	MalformedPluginRecords   *prometheus.CounterVec

	// Reconciliation metrics
	Reconciliations        *prometheus.CounterVec
	ReconciliationDuration prometheus.Histogram

	// Read path metrics
	PaymentViewDuration *prometheus.HistogramVec
	RetryQueueFailures  prometheus.Counter
	ScheduledAttempts   prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec

	// Worker metrics
	AuditEvents *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		PluginInfoRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plugin_info_requests_total",
				Help:      "Plugin transaction info requests by plugin and result",
			},
			[]string{"plugin", "result"},
		),
		PluginResolutionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plugin_resolution_failures_total",
				Help:      "Payment methods whose plugin could not be resolved",
			},
			[]string{"reason"},
		),
		MalformedPluginRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "malformed_plugin_records_total",
				Help:      "Plugin records discarded because they carry no payment id",
			},
			[]string{"plugin"},
		),
		Reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliations_total",
				Help:      "Transaction reconciliations by result (corrected, unchanged, failed)",
			},
			[]string{"result"},
		),
		ReconciliationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconciliation_duration_seconds",
				Help:      "Time spent in a corrective write including lock acquisition",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		),
		PaymentViewDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "payment_view_duration_seconds",
				Help:      "Payment view assembly duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"operation"},
		),
		RetryQueueFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_queue_failures_total",
				Help:      "Scheduled retry lookups that failed",
			},
		),
		ScheduledAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduled_attempts_projected_total",
				Help:      "Future attempts synthesized from the retry queue",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		AuditEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliation_audit_events_total",
				Help:      "Reconciliation events audited by the worker, by result",
			},
			[]string{"result"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.PluginInfoRequests,
		m.PluginResolutionFailures,
		m.MalformedPluginRecords,
		m.Reconciliations,
		m.ReconciliationDuration,
		m.PaymentViewDuration,
		m.RetryQueueFailures,
		m.ScheduledAttempts,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.AuditEvents,
	)

	return m
}
