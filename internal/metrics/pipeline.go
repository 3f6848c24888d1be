// Package metrics exposes Prometheus instrumentation for the intake pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics owns a private registry so tests and multiple servers in
// one process do not collide on the global one.
type PipelineMetrics struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	extractionTotal *prometheus.CounterVec
	matchTotal      *prometheus.CounterVec
}

// NewPipelineMetrics creates and registers the pipeline collectors.
func NewPipelineMetrics() *PipelineMetrics {
	registry := prometheus.NewRegistry()

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome and reason.",
		},
		[]string{"outcome", "reason"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "intake",
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline run duration in seconds by outcome.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"outcome"},
	)
	extractionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "extraction",
			Name:      "results_total",
			Help:      "Extraction oracle results by kind.",
		},
		[]string{"kind"},
	)
	matchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "intake",
			Subsystem: "match",
			Name:      "results_total",
			Help:      "Deterministic match results by match type.",
		},
		[]string{"match_type"},
	)

	registry.MustRegister(
		runsTotal,
		runDuration,
		extractionTotal,
		matchTotal,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return &PipelineMetrics{
		registry:        registry,
		runsTotal:       runsTotal,
		runDuration:     runDuration,
		extractionTotal: extractionTotal,
		matchTotal:      matchTotal,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *PipelineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRun counts a finished pipeline run.
func (m *PipelineMetrics) RecordRun(outcome, reason string, elapsed time.Duration) {
	if reason == "" {
		reason = "none"
	}
	m.runsTotal.WithLabelValues(outcome, reason).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// RecordExtraction counts an extraction result.
func (m *PipelineMetrics) RecordExtraction(kind string) {
	m.extractionTotal.WithLabelValues(kind).Inc()
}

// RecordMatch counts a match result.
func (m *PipelineMetrics) RecordMatch(matchType string) {
	m.matchTotal.WithLabelValues(matchType).Inc()
}
