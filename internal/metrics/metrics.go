// Package metrics exposes tracker and ingest activity as Prometheus
// collectors.
package metrics

import (
	"net/http"

	"toolwatch/internal/ingest"
	"toolwatch/internal/model"
	"toolwatch/internal/tracker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "toolwatch"

// Metrics implements tracker.Observer and ingest.Recorder.
type Metrics struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	episodes    *prometheus.CounterVec
	events      *prometheus.CounterVec
	ticks       *prometheus.CounterVec
	rejected    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Drawer state machine phase transitions.",
		}, []string{"phase"}),
		episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "episodes_total",
			Help:      "Closed drawer episodes by outcome.",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Recorded tool transactions by kind.",
		}, []string{"kind"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Producer ticks accepted for processing.",
		}, []string{"source"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_rejected_total",
			Help:      "Producer ticks rejected before processing.",
		}, []string{"source", "reason"}),
	}
	reg.MustRegister(m.transitions, m.episodes, m.events, m.ticks, m.rejected)
	return m
}

// Transition implements tracker.Observer.
func (m *Metrics) Transition(to tracker.Phase) {
	m.transitions.WithLabelValues(string(to)).Inc()
}

// Episode implements tracker.Observer.
func (m *Metrics) Episode(outcome tracker.Outcome) {
	m.episodes.WithLabelValues(string(outcome)).Inc()
}

// Event implements tracker.Observer.
func (m *Metrics) Event(kind model.EventKind) {
	m.events.WithLabelValues(string(kind)).Inc()
}

// TickAccepted implements ingest.Recorder.
func (m *Metrics) TickAccepted(source string) {
	m.ticks.WithLabelValues(source).Inc()
}

// TickRejected implements ingest.Recorder.
func (m *Metrics) TickRejected(source, reason string) {
	m.rejected.WithLabelValues(source, reason).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

var (
	_ tracker.Observer = (*Metrics)(nil)
	_ ingest.Recorder  = (*Metrics)(nil)
)
