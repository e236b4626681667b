// Package metrics exposes Prometheus instrumentation for discovery runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder records pipeline metrics. The zero value of *Recorder (nil) is a
// no-op so callers never need to guard against missing instrumentation.
type Recorder struct {
	phaseDuration *prometheus.HistogramVec
	failures      *prometheus.CounterVec
	candidates    *prometheus.GaugeVec
	runs          *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "keyword_discovery",
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of each discovery phase.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"phase"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyword_discovery",
			Name:      "failures_total",
			Help:      "Tolerated per-item failures by phase.",
		}, []string{"phase"}),
		candidates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "keyword_discovery",
			Name:      "candidates",
			Help:      "Candidate count leaving each phase of the most recent run.",
		}, []string{"phase"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyword_discovery",
			Name:      "runs_total",
			Help:      "Discovery runs by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(r.phaseDuration, r.failures, r.candidates, r.runs)
	return r
}

// ObservePhase records the duration, output size and failure count of one
// phase.
func (r *Recorder) ObservePhase(phase string, d time.Duration, candidates, failures int) {
	if r == nil {
		return
	}
	r.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
	r.candidates.WithLabelValues(phase).Set(float64(candidates))
	if failures > 0 {
		r.failures.WithLabelValues(phase).Add(float64(failures))
	}
}

// RunFinished counts a run by outcome ("completed", "cancelled", "no_sources").
func (r *Recorder) RunFinished(outcome string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(outcome).Inc()
}
