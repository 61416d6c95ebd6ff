package handler

import (
	"errors"
	"net/http"
	"strconv"

	"toolwatch/internal/model"
	"toolwatch/internal/tracker"
	"toolwatch/pkg/apierror"
	"toolwatch/pkg/response"

	"github.com/go-chi/chi/v5"
)

// MaxListLimit is the largest accepted ?limit value.
const MaxListLimit = 1000

// TrackerReader is the read side of the tracker. *tracker.Manager implements it.
type TrackerReader interface {
	State() tracker.StateView
	Events(limit int) []model.Event
	Event(id string) (model.Event, error)
	Checkouts() []model.Checkout
	Projection() map[string]map[string]int
	Overview() model.Overview
}

// TrackerHandler serves drawer state, the event ledger and its projections.
type TrackerHandler struct {
	tracker TrackerReader
}

// NewTrackerHandler creates a new tracker handler.
func NewTrackerHandler(t TrackerReader) *TrackerHandler {
	return &TrackerHandler{tracker: t}
}

// GetState handles GET /api/v1/state
func (h *TrackerHandler) GetState(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.tracker.State())
}

// ListEvents handles GET /api/v1/events
func (h *TrackerHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	events := h.tracker.Events(limit)
	if events == nil {
		events = []model.Event{}
	}
	response.List(w, events, limit, len(events))
}

// GetEvent handles GET /api/v1/events/{id}
func (h *TrackerHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ev, err := h.tracker.Event(id)
	if errors.Is(err, tracker.ErrEventNotFound) {
		response.Error(w, apierror.NotFound("Event not found"))
		return
	}
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, ev)
}

// GetInventory handles GET /api/v1/inventory
func (h *TrackerHandler) GetInventory(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.tracker.Projection())
}

// ListCheckouts handles GET /api/v1/checkouts
func (h *TrackerHandler) ListCheckouts(w http.ResponseWriter, r *http.Request) {
	checkouts := h.tracker.Checkouts()
	if checkouts == nil {
		checkouts = []model.Checkout{}
	}
	response.OK(w, checkouts)
}

// GetOverview handles GET /api/v1/overview
func (h *TrackerHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.tracker.Overview())
}

// parseLimit reads ?limit. Absent means unlimited (0).
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > MaxListLimit {
		return 0, apierror.ValidationError("invalid limit", apierror.FieldError{
			Field:   "limit",
			Message: "must be an integer between 1 and " + strconv.Itoa(MaxListLimit),
		})
	}
	return limit, nil
}
