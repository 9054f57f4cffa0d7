// Package metrics exposes Prometheus counters for the classification pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the service counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Classifications     *prometheus.CounterVec
	GatewayCalls        *prometheus.CounterVec
	PipelineResults     *prometheus.CounterVec
	NotesCreated        *prometheus.CounterVec
	RemindersDispatched *prometheus.CounterVec
}

// New registers the counters with the default registry once and returns them.
//
// Metrics:
//   - micronote_classifications_total{source,note_type}
//   - micronote_llm_calls_total{operation,outcome}
//   - micronote_pipeline_results_total{outcome}
//   - micronote_notes_created_total{note_type}
//   - micronote_reminders_dispatched_total{outcome}
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			Classifications: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "micronote_classifications_total",
					Help: "Messages classified, by deciding strategy and resulting note type",
				},
				[]string{"source", "note_type"},
			),
			GatewayCalls: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "micronote_llm_calls_total",
					Help: "LLM gateway calls by operation and outcome",
				},
				[]string{"operation", "outcome"},
			),
			PipelineResults: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "micronote_pipeline_results_total",
					Help: "Ingested messages by outcome",
				},
				[]string{"outcome"},
			),
			NotesCreated: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "micronote_notes_created_total",
					Help: "Notes created by note type",
				},
				[]string{"note_type"},
			),
			RemindersDispatched: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "micronote_reminders_dispatched_total",
					Help: "Reminder deliveries by outcome",
				},
				[]string{"outcome"},
			),
		}
	})
	return globalMetrics
}

func (m *Metrics) ObserveClassification(source, noteType string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(source, noteType).Inc()
}

func (m *Metrics) ObserveGatewayCall(operation, outcome string) {
	if m == nil {
		return
	}
	m.GatewayCalls.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObservePipeline(outcome string) {
	if m == nil {
		return
	}
	m.PipelineResults.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveNote(noteType string) {
	if m == nil {
		return
	}
	m.NotesCreated.WithLabelValues(noteType).Inc()
}

func (m *Metrics) ObserveReminder(outcome string) {
	if m == nil {
		return
	}
	m.RemindersDispatched.WithLabelValues(outcome).Inc()
}
