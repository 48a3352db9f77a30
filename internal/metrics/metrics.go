// Package metrics instruments wallet operations with Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder counts orchestrator operations by outcome and times them.
type Recorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// New builds a Recorder and registers its collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "walletledger",
				Name:      "operations_total",
				Help:      "Wallet operations by operation and outcome.",
			},
			[]string{"op", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "walletledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency of wallet operations, lock wait included.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}
	reg.MustRegister(r.operations, r.duration)
	return r
}

// Nop returns a Recorder bound to a private registry, for tests and tools.
func Nop() *Recorder {
	return New(prometheus.NewRegistry())
}

// Observe records one finished operation.
func (r *Recorder) Observe(op, outcome string, took time.Duration) {
	r.operations.WithLabelValues(op, outcome).Inc()
	r.duration.WithLabelValues(op).Observe(took.Seconds())
}
