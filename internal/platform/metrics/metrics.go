// Package metrics holds the process-wide Prometheus instruments for ledger
// operations. Construct once in cmd/server; services receive the value via
// an option and a nil *Metrics is inert, so tests pass nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "soulbind/pkg/domain-errors"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	operations       *prometheus.CounterVec
	operationSeconds *prometheus.HistogramVec
	liveTokens       prometheus.Gauge
	activeIdentities prometheus.Gauge
}

// New creates and registers all Prometheus metrics. Call it once per
// process; promauto registers against the default registry.
func New() *Metrics {
	return &Metrics{
		operations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "soulbind_ledger_operations_total",
			Help: "Ledger operations by kind and result (ok or error code)",
		}, []string{"op", "result"}),
		operationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "soulbind_ledger_operation_seconds",
			Help:    "Ledger operation latency by kind",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		liveTokens: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "soulbind_live_tokens",
			Help: "Tokens currently minted and not burned",
		}),
		activeIdentities: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "soulbind_active_identities",
			Help: "Wrapped identities currently active",
		}),
	}
}

// ObserveOperation records one completed operation. The result label is
// "ok" or the operation's error code.
func (m *Metrics) ObserveOperation(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(dErrors.GetCode(err))
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.operationSeconds.WithLabelValues(op).Observe(elapsed.Seconds())
}

// TokenMinted moves the live token gauge up.
func (m *Metrics) TokenMinted() {
	if m == nil {
		return
	}
	m.liveTokens.Inc()
}

// TokenBurned moves the live token gauge down.
func (m *Metrics) TokenBurned() {
	if m == nil {
		return
	}
	m.liveTokens.Dec()
}

// IdentityWrapped moves the active identity gauge up.
func (m *Metrics) IdentityWrapped() {
	if m == nil {
		return
	}
	m.activeIdentities.Inc()
}

// IdentityRevoked moves the active identity gauge down.
func (m *Metrics) IdentityRevoked() {
	if m == nil {
		return
	}
	m.activeIdentities.Dec()
}
