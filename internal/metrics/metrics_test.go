package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"toolwatch/internal/model"
	"toolwatch/internal/tracker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.Transition(tracker.PhaseSettling)
	m.Transition(tracker.PhaseSettling)
	m.Episode(tracker.OutcomeCheckin)
	m.Event(model.EventCheckin)
	m.TickAccepted("http")
	m.TickRejected("mqtt", "queue_full")

	if got := testutil.ToFloat64(m.transitions.WithLabelValues(string(tracker.PhaseSettling))); got != 2 {
		t.Errorf("transitions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.episodes.WithLabelValues(string(tracker.OutcomeCheckin))); got != 1 {
		t.Errorf("episodes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("checkin")); got != 1 {
		t.Errorf("events = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ticks.WithLabelValues("http")); got != 1 {
		t.Errorf("ticks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rejected.WithLabelValues("mqtt", "queue_full")); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.TickAccepted("mqtt")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `toolwatch_ticks_total{source="mqtt"} 1`) {
		t.Errorf("exposition missing ticks counter:\n%s", body)
	}
}
