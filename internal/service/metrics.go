package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics collects counters for escrow transitions and wallet
// operations, exposed on /metrics.
type LedgerMetrics struct {
	transitions *prometheus.CounterVec
	walletOps   *prometheus.CounterVec
	providerDur prometheus.Histogram
}

// NewLedgerMetrics creates and registers the ledger metric set.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	m := &LedgerMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crowdwave",
			Subsystem: "ledger",
			Name:      "escrow_transitions_total",
			Help:      "Escrow state transitions applied, by transition type.",
		}, []string{"transition"}),
		walletOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crowdwave",
			Subsystem: "ledger",
			Name:      "wallet_operations_total",
			Help:      "Direct wallet operations, by operation type.",
		}, []string{"operation"}),
		providerDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crowdwave",
			Subsystem: "ledger",
			Name:      "provider_request_seconds",
			Help:      "Latency of payment provider calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.transitions, m.walletOps, m.providerDur)
	}
	return m
}

// TransitionApplied records a committed escrow transition.
func (m *LedgerMetrics) TransitionApplied(transition string) {
	m.transitions.WithLabelValues(transition).Inc()
}

// WalletOperation records a committed deposit or withdrawal.
func (m *LedgerMetrics) WalletOperation(operation string) {
	m.walletOps.WithLabelValues(operation).Inc()
}

// ObserveProviderLatency records one payment provider round trip.
func (m *LedgerMetrics) ObserveProviderLatency(seconds float64) {
	m.providerDur.Observe(seconds)
}
