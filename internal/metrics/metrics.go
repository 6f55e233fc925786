// Package metrics holds the Prometheus collectors of the compiler. They are
// registered on a caller-supplied registry; nothing here serves them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/specialistvlad/ciforge/internal/include"
	"github.com/specialistvlad/ciforge/internal/source"
)

const namespace = "ciforge"

// Metrics records compilations and include fetches.
type Metrics struct {
	compilations    *prometheus.CounterVec
	compileDuration *prometheus.HistogramVec
	includeFetches  *prometheus.CounterVec
	jobs            prometheus.Histogram
}

// New creates unregistered collectors.
func New() *Metrics {
	return &Metrics{
		compilations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compilations_total",
				Help:      "Pipeline compilations by status and failure reason.",
			},
			[]string{"status", "failure_reason"},
		),
		compileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compile_duration_seconds",
				Help:      "Time spent compiling one pipeline.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"status"},
		),
		includeFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "include",
				Name:      "fetches_total",
				Help:      "Processed includes by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		jobs: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_jobs",
				Help:      "Number of jobs in successfully compiled pipelines.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
	}
}

// MustRegister registers every collector on r.
func (m *Metrics) MustRegister(r prometheus.Registerer) {
	r.MustRegister(m.compilations, m.compileDuration, m.includeFetches, m.jobs)
}

// ObserveCompilation records one finished compilation. failureReason is
// empty on success.
func (m *Metrics) ObserveCompilation(status, failureReason string, d time.Duration, jobs int) {
	if m == nil {
		return
	}
	m.compilations.WithLabelValues(status, failureReason).Inc()
	m.compileDuration.WithLabelValues(status).Observe(d.Seconds())
	if failureReason == "" {
		m.jobs.Observe(float64(jobs))
	}
}

// IncludeObserver returns an include.Observer feeding the fetch counter.
func (m *Metrics) IncludeObserver() include.Observer {
	return func(kind source.Kind, outcome include.Outcome) {
		if m == nil {
			return
		}
		m.includeFetches.WithLabelValues(string(kind), string(outcome)).Inc()
	}
}
