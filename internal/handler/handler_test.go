package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"toolwatch/internal/catalog"
	"toolwatch/internal/ingest"
	"toolwatch/internal/model"
	"toolwatch/internal/service"
	"toolwatch/internal/tracker"
	"toolwatch/pkg/uid"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var t0 = time.Unix(1_700_000_000, 0)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Limit int `json:"limit"`
		Count int `json:"count"`
	} `json:"meta"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
	}
	return env
}

// checkinManager returns a manager that has recorded one clamps checkin.
func checkinManager(t *testing.T) *tracker.Manager {
	t.Helper()
	m := tracker.NewManager(catalog.Default(), tracker.DefaultConfig(), zap.NewNop(),
		tracker.WithClock(func() time.Time { return t0.Add(time.Hour) }),
		tracker.WithIDGenerator(uid.Sequential("evt")),
	)
	m.Observe(model.Tick{At: t0, Drawer: &model.DrawerReading{Identifier: "clamps"}, Tools: []string{}})
	m.Observe(model.Tick{At: t0.Add(1200 * time.Millisecond), Tools: []string{"clamp 7"}, User: "Alice-a1"})
	if evs := m.Observe(model.Tick{At: t0.Add(3 * time.Second), Drawer: &model.DrawerReading{}}); len(evs) != 1 {
		t.Fatalf("setup recorded %d events, want 1", len(evs))
	}
	return m
}

func trackerRouter(h *TrackerHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/state", h.GetState)
	r.Get("/events", h.ListEvents)
	r.Get("/events/{id}", h.GetEvent)
	r.Get("/inventory", h.GetInventory)
	r.Get("/checkouts", h.ListCheckouts)
	r.Get("/overview", h.GetOverview)
	return r
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestTrackerHandler_Events(t *testing.T) {
	h := trackerRouter(NewTrackerHandler(checkinManager(t)))

	rec := get(h, "/events?limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	env := decode(t, rec)
	var events []model.Event
	if err := json.Unmarshal(env.Data, &events); err != nil {
		t.Fatalf("data: %v", err)
	}
	if len(events) != 1 || events[0].Kind != model.EventCheckin || events[0].User.ID != "a1" {
		t.Errorf("events = %+v", events)
	}
	if env.Meta == nil || env.Meta.Limit != 5 || env.Meta.Count != 1 {
		t.Errorf("meta = %+v", env.Meta)
	}
}

func TestTrackerHandler_EventsLimitValidation(t *testing.T) {
	h := trackerRouter(NewTrackerHandler(checkinManager(t)))

	for _, q := range []string{"0", "1001", "abc", "-3"} {
		rec := get(h, "/events?limit="+q)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want 400", q, rec.Code)
		}
	}
	for _, q := range []string{"1", "1000"} {
		if rec := get(h, "/events?limit="+q); rec.Code != http.StatusOK {
			t.Errorf("limit=%s status = %d, want 200", q, rec.Code)
		}
	}
}

func TestTrackerHandler_GetEvent(t *testing.T) {
	h := trackerRouter(NewTrackerHandler(checkinManager(t)))

	rec := get(h, "/events/evt-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	var ev model.Event
	if err := json.Unmarshal(decode(t, rec).Data, &ev); err != nil || ev.ID != "evt-1" {
		t.Errorf("event = %+v, %v", ev, err)
	}

	rec = get(h, "/events/missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if env := decode(t, rec); env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestTrackerHandler_Projections(t *testing.T) {
	h := trackerRouter(NewTrackerHandler(checkinManager(t)))

	var inv map[string]map[string]int
	if err := json.Unmarshal(decode(t, get(h, "/inventory")).Data, &inv); err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if inv["clamp"]["clamps"] != 1 {
		t.Errorf("inventory = %v", inv)
	}

	var ov model.Overview
	if err := json.Unmarshal(decode(t, get(h, "/overview")).Data, &ov); err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.ToolsCount != 2 || ov.UsersWithCheckedOutToolsCount != 0 || ov.ToolsUnseenInLast7DaysCount != 1 {
		t.Errorf("overview = %+v", ov)
	}

	rec := get(h, "/checkouts")
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("checkouts body = %s", rec.Body)
	}
}

func TestTrackerHandler_State(t *testing.T) {
	h := trackerRouter(NewTrackerHandler(checkinManager(t)))

	var st tracker.StateView
	if err := json.Unmarshal(decode(t, get(h, "/state")).Data, &st); err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Phase != tracker.PhaseClosed || st.CurrentUser == nil || st.CurrentUser.ID != "a1" {
		t.Errorf("state = %+v", st)
	}
}

type fakeQueue struct {
	mu    sync.Mutex
	ticks []model.Tick
	limit int
}

func (q *fakeQueue) Enqueue(t model.Tick, _ ingest.Source) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ticks) >= q.limit {
		return ingest.ErrQueueFull
	}
	q.ticks = append(q.ticks, t)
	return nil
}

func (q *fakeQueue) EnqueueBatch(ticks []model.Tick, src ingest.Source) (int, error) {
	for i, t := range ticks {
		if err := q.Enqueue(t, src); err != nil {
			return i, err
		}
	}
	return len(ticks), nil
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ticks", strings.NewReader(body)))
	return rec
}

func TestTickHandler_Ingest(t *testing.T) {
	q := &fakeQueue{limit: 1}
	h := NewTickHandler(q, 1<<20, 10, zap.NewNop())

	if rec := post(h.Ingest, `{"drawer":{"identifier":"clamps"}}`); rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	if len(q.ticks) != 1 || q.ticks[0].Drawer.Identifier != "clamps" {
		t.Errorf("queued = %+v", q.ticks)
	}
	if rec := post(h.Ingest, `{"drawer":{}}`); rec.Code != http.StatusTooManyRequests {
		t.Errorf("full queue status = %d", rec.Code)
	}
	if rec := post(h.Ingest, `{"tools":[""]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid tick status = %d", rec.Code)
	}
}

func TestTickHandler_IngestBatch(t *testing.T) {
	q := &fakeQueue{limit: 10}
	h := NewTickHandler(q, 1<<20, 2, zap.NewNop())

	rec := post(h.IngestBatch, `[{"drawer":{"identifier":"clamps"}},{"drawer":{}}]`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	if len(q.ticks) != 2 || q.ticks[1].Drawer.Open() {
		t.Errorf("queued = %+v", q.ticks)
	}

	rec = post(h.IngestBatch, `[{},{},{}]`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized batch status = %d", rec.Code)
	}
}

func TestTickHandler_BodyLimit(t *testing.T) {
	h := NewTickHandler(&fakeQueue{limit: 1}, 16, 10, zap.NewNop())
	rec := post(h.Ingest, `{"user":"`+strings.Repeat("x", 64)+`"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d", rec.Code)
	}
}

type fakeJournalReader struct {
	events []model.Event
	err    error
}

func (f fakeJournalReader) ListEvents(ctx context.Context, limit int) ([]model.Event, error) {
	return f.events, f.err
}

func TestJournalHandler(t *testing.T) {
	h := NewJournalHandler(fakeJournalReader{events: []model.Event{{ID: "e1"}}}, zap.NewNop())
	rec := get(http.HandlerFunc(h.ListEvents), "/api/v1/journal")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if env := decode(t, rec); env.Meta == nil || env.Meta.Limit != MaxListLimit || env.Meta.Count != 1 {
		t.Errorf("meta = %+v", env.Meta)
	}

	h = NewJournalHandler(fakeJournalReader{err: service.ErrJournalDisabled}, zap.NewNop())
	if rec := get(http.HandlerFunc(h.ListEvents), "/api/v1/journal"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled status = %d", rec.Code)
	}

	h = NewJournalHandler(fakeJournalReader{err: errors.New("disk")}, zap.NewNop())
	if rec := get(http.HandlerFunc(h.ListEvents), "/api/v1/journal"); rec.Code != http.StatusInternalServerError {
		t.Errorf("failure status = %d", rec.Code)
	}
}

func TestHandler_Ready(t *testing.T) {
	healthy := New("toolwatch", "1.0.0", ReadinessCheck{Name: "journal", Check: func(context.Context) error { return nil }})
	if rec := get(http.HandlerFunc(healthy.Ready), "/api/v1/ready"); rec.Code != http.StatusOK {
		t.Errorf("ready status = %d", rec.Code)
	}

	failing := New("toolwatch", "1.0.0", ReadinessCheck{Name: "journal", Check: func(context.Context) error { return errors.New("locked") }})
	rec := get(http.HandlerFunc(failing.Ready), "/api/v1/ready")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "locked") {
		t.Errorf("status %d body %s", rec.Code, rec.Body)
	}
}

func TestHandler_HealthAndStatus(t *testing.T) {
	h := New("toolwatch", "1.2.3")
	if rec := get(http.HandlerFunc(h.Health), "/api/v1/health"); !strings.Contains(rec.Body.String(), `"1.2.3"`) {
		t.Errorf("health body = %s", rec.Body)
	}
	rec := get(http.HandlerFunc(h.Status), "/api/status")
	if rec.Header().Get("Cache-Control") == "" || !strings.Contains(rec.Body.String(), `"toolwatch"`) {
		t.Errorf("status body = %s", rec.Body)
	}
}

func TestAdminHandler_GetStats(t *testing.T) {
	h := NewAdminHandler(nil, "none", map[string]StatsSource{
		"ingest": StatsFunc(func(context.Context) map[string]interface{} {
			return map[string]interface{}{"queued": 3}
		}),
	})
	rec := get(http.HandlerFunc(h.GetStats), "/api/v1/admin/stats")

	var stats map[string]interface{}
	if err := json.Unmarshal(decode(t, rec).Data, &stats); err != nil {
		t.Fatalf("data: %v", err)
	}
	if stats["db_type"] != "none" {
		t.Errorf("db_type = %v", stats["db_type"])
	}
	if ing, _ := stats["ingest"].(map[string]interface{}); ing["queued"] != float64(3) {
		t.Errorf("ingest = %v", stats["ingest"])
	}
	if jdb, _ := stats["journal_db"].(map[string]interface{}); jdb["status"] != "not_configured" {
		t.Errorf("journal_db = %v", stats["journal_db"])
	}
}
