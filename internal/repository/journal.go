package repository

import (
	"encoding/json"
	"fmt"

	"toolwatch/internal/model"
)

// journalRow is the column layout shared by the SQL journal stores. The full
// event is kept as a JSON payload; the other columns exist for indexing.
type journalRow struct {
	ID        string
	Timestamp int64
	Kind      string
	Drawer    string
	UserID    string
	ToolID    string
	Payload   []byte
}

func rowOf(ev model.Event) (journalRow, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return journalRow{}, fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
	}
	return journalRow{
		ID:        ev.ID,
		Timestamp: ev.Timestamp,
		Kind:      string(ev.Kind),
		Drawer:    ev.Drawer,
		UserID:    ev.User.ID,
		ToolID:    ev.Tool.ID,
		Payload:   payload,
	}, nil
}

func decodeEvent(payload []byte) (model.Event, error) {
	var ev model.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return model.Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return ev, nil
}
