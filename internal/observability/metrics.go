// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Provider metrics
	ProviderRequests  *prometheus.CounterVec
	ProviderLatency   *prometheus.HistogramVec
	BudgetWaitSeconds *prometheus.HistogramVec
	BreakerState      *prometheus.GaugeVec

	// Tick metrics
	TickRunsTotal   *prometheus.CounterVec
	TickDuration    *prometheus.HistogramVec
	AssetsProcessed *prometheus.CounterVec
	LeaseSkips      *prometheus.CounterVec

	// Engine metrics
	AthUpdates       *prometheus.CounterVec
	Discrepancies    *prometheus.CounterVec
	LifecycleChanges *prometheus.CounterVec

	// Alert metrics
	AlertsSent    *prometheus.CounterVec
	AlertsDropped prometheus.Counter
	StreamClients prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulTick *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "ath_tracker"
	}

	return &Metrics{
		// Provider metrics
		ProviderRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Total number of provider requests by outcome",
		}, []string{"provider", "endpoint", "outcome"}),
		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_latency_seconds",
			Help:      "Provider request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "endpoint"}),
		BudgetWaitSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "budget_wait_seconds",
			Help:      "Time spent waiting for the shared request budget",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"provider"}),

		// Tick metrics
		TickRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tick",
			Name:      "runs_total",
			Help:      "Total number of tick runs by status",
		}, []string{"tick", "status"}),
		TickDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tick",
			Name:      "duration_seconds",
			Help:      "Tick execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"tick"}),
		AssetsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tick",
			Name:      "assets_processed_total",
			Help:      "Total number of assets processed by outcome",
		}, []string{"tick", "outcome"}),
		LeaseSkips: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tick",
			Name:      "lease_skips_total",
			Help:      "Assets skipped because another worker held the lease",
		}, []string{"tick"}),

		// Engine metrics
		AthUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ath_updates_total",
			Help:      "Total number of ATH records written by tier",
		}, []string{"tier"}),
		Discrepancies: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "discrepancies_total",
			Help:      "Total number of audit discrepancies by type",
		}, []string{"type"}),
		LifecycleChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "lifecycle_changes_total",
			Help:      "Total number of lifecycle transitions",
		}, []string{"to", "reason"}),

		// Alert metrics
		AlertsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "sent_total",
			Help:      "Total number of alert deliveries by sink and status",
		}, []string{"kind", "sink", "status"}),
		AlertsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "dropped_total",
			Help:      "Alerts dropped because the dispatch queue was full",
		}),
		StreamClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "stream_clients",
			Help:      "Number of connected alert stream clients",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulTick: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tick_timestamp",
			Help:      "Unix timestamp of last successful tick run",
		}, []string{"tick"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordProviderRequest records one provider HTTP call.
func RecordProviderRequest(provider, endpoint, outcome string, seconds float64) {
	DefaultMetrics.ProviderRequests.WithLabelValues(provider, endpoint, outcome).Inc()
	DefaultMetrics.ProviderLatency.WithLabelValues(provider, endpoint).Observe(seconds)
}

// RecordBudgetWait records time spent blocked on the request budget.
func RecordBudgetWait(provider string, seconds float64) {
	DefaultMetrics.BudgetWaitSeconds.WithLabelValues(provider).Observe(seconds)
}

// SetBreakerState updates the breaker state gauge.
func SetBreakerState(provider string, state int) {
	DefaultMetrics.BreakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordTickRun records a tick run.
func RecordTickRun(tick, status string, durationSeconds float64) {
	DefaultMetrics.TickRunsTotal.WithLabelValues(tick, status).Inc()
	DefaultMetrics.TickDuration.WithLabelValues(tick).Observe(durationSeconds)
}

// RecordAssetOutcome increments the processed assets counter.
func RecordAssetOutcome(tick, outcome string) {
	DefaultMetrics.AssetsProcessed.WithLabelValues(tick, outcome).Inc()
}

// RecordLeaseSkip increments the lease skip counter.
func RecordLeaseSkip(tick string) {
	DefaultMetrics.LeaseSkips.WithLabelValues(tick).Inc()
}

// RecordAthUpdate increments the ATH update counter.
func RecordAthUpdate(tier string) {
	DefaultMetrics.AthUpdates.WithLabelValues(tier).Inc()
}

// RecordDiscrepancy increments the discrepancy counter.
func RecordDiscrepancy(kind string) {
	DefaultMetrics.Discrepancies.WithLabelValues(kind).Inc()
}

// RecordLifecycleChange increments the lifecycle transition counter.
func RecordLifecycleChange(to, reason string) {
	DefaultMetrics.LifecycleChanges.WithLabelValues(to, reason).Inc()
}

// RecordAlert records an alert delivery attempt.
func RecordAlert(kind, sink string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.AlertsSent.WithLabelValues(kind, sink, status).Inc()
}

// RecordAlertDropped increments the dropped alerts counter.
func RecordAlertDropped() {
	DefaultMetrics.AlertsDropped.Inc()
}

// SetStreamClients updates the connected stream clients gauge.
func SetStreamClients(n int) {
	DefaultMetrics.StreamClients.Set(float64(n))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordTickSuccess stamps the last successful tick time.
func RecordTickSuccess(tick string, unixSeconds int64) {
	DefaultMetrics.LastSuccessfulTick.WithLabelValues(tick).Set(float64(unixSeconds))
}
