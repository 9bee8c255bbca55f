// Package metrics exposes prometheus collectors for sessions, routed
// operations and transactions. A nil *Metrics records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mongotx"

const (
	RouteSession = "session"
	RoutePlain   = "plain"

	OutcomeCommitted = "committed"
	OutcomeAborted   = "aborted"
	OutcomeFailed    = "failed"
)

type Metrics struct {
	operations     *prometheus.CounterVec
	sessions       prometheus.Gauge
	transactions   *prometheus.CounterVec
	commitAttempts prometheus.Counter
	commitDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "operations_total",
				Help:      "Collection operations routed by the proxy.",
			},
			[]string{"op", "route"},
		),
		sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "open",
				Help:      "Sessions opened by managed units of work and not closed yet.",
			},
		),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "txn",
				Name:      "finished_total",
				Help:      "Finished transactions by outcome.",
			},
			[]string{"outcome"},
		),
		commitAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "txn",
				Name:      "commit_attempts_total",
				Help:      "commitTransaction calls sent, retries included.",
			},
		),
		commitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "txn",
				Name:      "commit_duration_seconds",
				Help:      "Time spent committing, retries included.",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(m.operations, m.sessions, m.transactions, m.commitAttempts, m.commitDuration)
	return m
}

func (m *Metrics) Operation(op, route string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, route).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) Transaction(outcome string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CommitAttempt() {
	if m == nil {
		return
	}
	m.commitAttempts.Inc()
}

func (m *Metrics) Commit(took time.Duration) {
	if m == nil {
		return
	}
	m.commitDuration.Observe(took.Seconds())
}
