// Package metrics exposes Prometheus instrumentation for the journey service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors tracked by the journey service. Collectors are
// registered on a private registry so independent instances can coexist in
// tests.
type Metrics struct {
	registry *prometheus.Registry

	TurnsProcessed     prometheus.Counter
	TurnDuration       prometheus.Histogram
	CheckpointWrites   *prometheus.CounterVec
	RedundantWrites    prometheus.Counter
	ExtractionFailures prometheus.Counter
	KeywordFallbacks   prometheus.Counter
	GenerationFailures prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TurnsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journey_turns_processed_total",
			Help: "Total number of conversation turns processed",
		}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "journey_turn_duration_seconds",
			Help: "Duration of full turn processing",
		}),
		CheckpointWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_checkpoint_writes_total",
			Help: "Checkpoint values recorded, labeled by write source",
		}, []string{"source"}),
		RedundantWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journey_checkpoint_redundant_writes_total",
			Help: "Checkpoint writes skipped because a value was already set",
		}),
		ExtractionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journey_extraction_failures_total",
			Help: "Extraction model calls that failed",
		}),
		KeywordFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journey_keyword_fallbacks_total",
			Help: "Turns analyzed by the keyword fallback after an extraction failure",
		}),
		GenerationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journey_generation_failures_total",
			Help: "Assistant reply generations that failed",
		}),
	}
	m.registry.MustRegister(
		m.TurnsProcessed,
		m.TurnDuration,
		m.CheckpointWrites,
		m.RedundantWrites,
		m.ExtractionFailures,
		m.KeywordFallbacks,
		m.GenerationFailures,
	)
	return m
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
