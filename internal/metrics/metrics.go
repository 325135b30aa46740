// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles the engine collectors behind a dedicated registry so the
// monitor endpoint serves only what the engine emits. A nil Set is a no-op,
// letting tests run without instrumentation.
type Set struct {
	registry *prometheus.Registry

	epochsTotal    prometheus.Counter
	batchesTotal   prometheus.Counter
	voidTotal      prometheus.Counter
	bestLoss       prometheus.Gauge
	searchSpace    prometheus.Gauge
	batchDurations prometheus.Histogram
}

// NewSet creates and registers the engine collectors.
func NewSet() *Set {
	s := &Set{
		registry: prometheus.NewRegistry(),
		epochsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "boreal",
			Name:      "epochs_total",
			Help:      "Evaluated epochs across the run.",
		}),
		batchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "boreal",
			Name:      "batches_total",
			Help:      "Dispatched evaluation batches.",
		}),
		voidTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "boreal",
			Name:      "void_trials_total",
			Help:      "Evaluations scored at the void sentinel.",
		}),
		bestLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "boreal",
			Name:      "best_loss",
			Help:      "Best loss observed so far.",
		}),
		searchSpace: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "boreal",
			Name:      "search_space_size",
			Help:      "Estimated number of distinct candidate points.",
		}),
		batchDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "boreal",
			Name:      "batch_duration_seconds",
			Help:      "Wall time per evaluation batch.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
	s.registry.MustRegister(
		s.epochsTotal, s.batchesTotal, s.voidTotal,
		s.bestLoss, s.searchSpace, s.batchDurations,
	)
	return s
}

// Registry returns the registry backing the /metrics endpoint.
func (s *Set) Registry() *prometheus.Registry {
	if s == nil {
		return prometheus.NewRegistry()
	}
	return s.registry
}

// AddEpochs counts scored epochs.
func (s *Set) AddEpochs(n int) {
	if s != nil {
		s.epochsTotal.Add(float64(n))
	}
}

// ObserveBatch counts one batch and its duration in seconds.
func (s *Set) ObserveBatch(seconds float64) {
	if s != nil {
		s.batchesTotal.Inc()
		s.batchDurations.Observe(seconds)
	}
}

// AddVoid counts void evaluations.
func (s *Set) AddVoid(n int) {
	if s != nil && n > 0 {
		s.voidTotal.Add(float64(n))
	}
}

// SetBestLoss publishes the current best loss.
func (s *Set) SetBestLoss(v float64) {
	if s != nil {
		s.bestLoss.Set(v)
	}
}

// SetSearchSpaceSize publishes the candidate-count estimate.
func (s *Set) SetSearchSpaceSize(v float64) {
	if s != nil {
		s.searchSpace.Set(v)
	}
}
