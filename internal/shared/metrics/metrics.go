package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Ledger metrics
	DebitsTotal  *prometheus.CounterVec
	CreditsTotal *prometheus.CounterVec

	// Refund metrics
	RefundsTotal          *prometheus.CounterVec
	RefundCreditsLost     prometheus.Counter
	RefundCreditsReturned prometheus.Counter

	// Pool metrics
	PoolAvailable *prometheus.GaugeVec
	PoolSyncs     *prometheus.CounterVec
	PoolDrift     *prometheus.GaugeVec
}

// New creates a new Metrics instance with all metrics registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "preset_credits"
	}

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		// Ledger metrics
		DebitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "debits_total",
				Help:      "Total number of debit attempts",
			},
			[]string{"result"}, // ok, insufficient, error
		),
		CreditsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "credits_total",
				Help:      "Total number of credit operations",
			},
			[]string{"source"}, // refund, allowance_reset, manual
		),

		// Refund metrics
		RefundsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "refund",
				Name:      "decisions_total",
				Help:      "Total number of refund decisions",
			},
			[]string{"decision"}, // refunded, not_refundable, already_refunded
		),
		RefundCreditsLost: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "refund",
				Name:      "provider_credits_lost_total",
				Help:      "Provider credits permanently lost to refunded tasks",
			},
		),
		RefundCreditsReturned: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "refund",
				Name:      "user_credits_returned_total",
				Help:      "User credits returned by refunds",
			},
		),

		// Pool metrics
		PoolAvailable: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "available_credits",
				Help:      "Local estimate of pooled provider credits",
			},
			[]string{"provider"},
		),
		PoolSyncs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "syncs_total",
				Help:      "Total number of pool reconciliation attempts",
			},
			[]string{"provider", "status"}, // synced, discrepancy, error
		),
		PoolDrift: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "drift_credits",
				Help:      "Absolute drift between local estimate and provider balance at last sync",
			},
			[]string{"provider"},
		),
	}
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
