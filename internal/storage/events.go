// Package storage exports ledger events to analytics stores.
package storage

import (
	"time"

	"toolwatch/internal/model"
)

// EventWriter is the interface for writing tool events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *ToolEvent)
	Close()
}

// ToolEvent is the flattened analytics row of one ledger event.
type ToolEvent struct {
	EventID   string
	Timestamp time.Time
	Kind      string // "checkout" or "checkin"
	Drawer    string
	ToolID    string
	ToolName  string
	ToolType  string
	ToolCost  float64
	UserID    string
	UserName  string
	UserEmail string
	ImageURL  string
}

// NewToolEvent flattens a ledger event.
func NewToolEvent(ev model.Event) *ToolEvent {
	return &ToolEvent{
		EventID:   ev.ID,
		Timestamp: ev.Time().UTC(),
		Kind:      string(ev.Kind),
		Drawer:    ev.Drawer,
		ToolID:    ev.Tool.ID,
		ToolName:  ev.Tool.Name,
		ToolType:  ev.Tool.Type,
		ToolCost:  ev.Tool.Cost,
		UserID:    ev.User.ID,
		UserName:  ev.User.Name,
		UserEmail: ev.User.Email,
		ImageURL:  ev.ImageURL,
	}
}

// Sink publishes tracker events to an EventWriter.
type Sink struct {
	w EventWriter
}

// NewSink wraps w.
func NewSink(w EventWriter) *Sink {
	return &Sink{w: w}
}

// Publish writes ev without blocking.
func (s *Sink) Publish(ev model.Event) {
	s.w.Write(NewToolEvent(ev))
}
