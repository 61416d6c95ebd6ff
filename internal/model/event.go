package model

import "time"

// EventKind classifies an inventory event.
type EventKind string

const (
	EventCheckout EventKind = "checkout"
	EventCheckin  EventKind = "checkin"
)

// Valid reports whether k is one of the known kinds.
func (k EventKind) Valid() bool {
	return k == EventCheckout || k == EventCheckin
}

// Event is an immutable ledger entry.
type Event struct {
	ID        string    `json:"id" bson:"_id"`
	Timestamp int64     `json:"timestamp" bson:"timestamp"` // epoch seconds
	Kind      EventKind `json:"type" bson:"kind"`
	User      User      `json:"user" bson:"user"`
	Tool      Tool      `json:"tool" bson:"tool"`
	Drawer    string    `json:"drawer" bson:"drawer"`
	ImageURL  string    `json:"eventImageUrl" bson:"image_url"`
}

// Time returns the event timestamp as a time.Time.
func (e Event) Time() time.Time {
	return time.Unix(e.Timestamp, 0)
}

// Checkout is an outstanding checkout in the checked-out index.
type Checkout struct {
	ToolID    string `json:"tool_id"`
	UserID    string `json:"user_id"`
	Timestamp int64  `json:"timestamp"`
	Drawer    string `json:"drawer"`
}

// Overview is the aggregate served to the audit dashboard.
type Overview struct {
	ToolsCount                    int `json:"toolsCount"`
	UsersWithCheckedOutToolsCount int `json:"usersWithCheckedOutToolsCount"`
	ToolsUnseenInLast7DaysCount   int `json:"toolsUnseenInLast7DaysCount"`
}

// BufferedEvent is a ledger event waiting in the write-behind buffer.
type BufferedEvent struct {
	Event    Event     `json:"event"`
	QueuedAt time.Time `json:"queued_at"`
}
