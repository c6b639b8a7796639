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
	// Ingestion metrics
	FillsFetched     *prometheus.CounterVec
	FillsRejected    *prometheus.CounterVec
	PagesFetched     *prometheus.CounterVec
	PartialIngestion *prometheus.CounterVec

	// Matching metrics
	PositionsClosed     *prometheus.CounterVec
	InvariantViolations *prometheus.CounterVec

	// Funding metrics
	FundingFetchErrors  *prometheus.CounterVec
	FundingUnattributed *prometheus.CounterVec

	// Reconciliation metrics
	ReconciliationDeltas *prometheus.GaugeVec

	// Aggregation metrics
	AccountRunsTotal *prometheus.CounterVec
	AccountDuration  *prometheus.HistogramVec

	// Database metrics
	DBQueryErrors *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "exchange_ledger"
	}

	return &Metrics{
		// Ingestion metrics
		FillsFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fills_fetched_total",
			Help:      "Total number of fills fetched and normalized",
		}, []string{"account"}),
		FillsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fills_rejected_total",
			Help:      "Total number of malformed fills skipped during normalization",
		}, []string{"account"}),
		PagesFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "pages_fetched_total",
			Help:      "Total number of fill pages fetched from exchanges",
		}, []string{"account"}),
		PartialIngestion: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "partial_total",
			Help:      "Total number of ingestion runs that returned partial results",
		}, []string{"account"}),

		// Matching metrics
		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "positions_closed_total",
			Help:      "Total number of closed positions produced by the matcher",
		}, []string{"account"}),
		InvariantViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "invariant_violations_total",
			Help:      "Total number of inventory invariant violations",
		}, []string{"account"}),

		// Funding metrics
		FundingFetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "funding",
			Name:      "fetch_errors_total",
			Help:      "Total number of funding history fetch failures",
		}, []string{"account"}),
		FundingUnattributed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "funding",
			Name:      "unattributed_total",
			Help:      "Total number of symbols with funding that matched no position",
		}, []string{"account"}),

		// Reconciliation metrics
		ReconciliationDeltas: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "deltas",
			Help:      "Number of open position discrepancies found in the last run",
		}, []string{"account"}),

		// Aggregation metrics
		AccountRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "account_runs_total",
			Help:      "Total number of per-account aggregation runs by status",
		}, []string{"status"}),
		AccountDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "account_duration_seconds",
			Help:      "Per-account aggregation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"account"}),

		// Database metrics
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of the last fully successful aggregation run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
