package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the broker/dispatcher Prometheus instruments, grounded on
// the teacher's shared use of github.com/prometheus/client_golang alongside
// its OTEL metric pipeline (the two coexist in the teacher: OTEL for
// exported traces/metrics, Prometheus for the in-process /metrics scrape
// endpoint).
type Metrics struct {
	CandidatesDiscovered prometheus.Histogram
	CandidatesAllowed    prometheus.Histogram
	GovernanceDecisions  *prometheus.CounterVec
	DispatchLatency      *prometheus.HistogramVec
	DispatchErrors       *prometheus.CounterVec
}

// NewMetrics registers the broker/dispatcher instrument set against reg.
// Pass prometheus.NewRegistry() for isolated tests, or
// prometheus.DefaultRegisterer for the process-wide /metrics endpoint.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CandidatesDiscovered: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "catalog",
			Subsystem: "broker",
			Name:      "candidates_discovered",
			Help:      "Number of source candidates returned by semantic discovery per query.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		CandidatesAllowed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "catalog",
			Subsystem: "broker",
			Name:      "candidates_allowed",
			Help:      "Number of candidates that survived both governance gates per query.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		GovernanceDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalog",
			Subsystem: "broker",
			Name:      "governance_decisions_total",
			Help:      "Count of governance decisions by outcome.",
		}, []string{"decision"}),
		DispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "catalog",
			Subsystem: "dispatcher",
			Name:      "dispatch_latency_ms",
			Help:      "Latency of a single source dispatch round trip, in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 12),
		}, []string{"status"}),
		DispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalog",
			Subsystem: "dispatcher",
			Name:      "dispatch_errors_total",
			Help:      "Count of dispatch failures by source URN.",
		}, []string{"source_urn"}),
	}

	reg.MustRegister(
		m.CandidatesDiscovered,
		m.CandidatesAllowed,
		m.GovernanceDecisions,
		m.DispatchLatency,
		m.DispatchErrors,
	)
	return m
}
