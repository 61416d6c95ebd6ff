package tracker

import (
	"errors"
	"sort"
	"time"

	"toolwatch/internal/model"
)

// DefaultUnseenWindow is the trailing window for the "tools unseen" count.
const DefaultUnseenWindow = 7 * 24 * time.Hour

// ErrEventNotFound is returned when no event has the requested id.
var ErrEventNotFound = errors.New("event not found")

// Ledger is the append-only event log together with the checked-out index
// and the per-drawer inventory projection derived from it.
//
// Ledger is not safe for concurrent use; Manager serialises access.
type Ledger struct {
	events     []model.Event
	byID       map[string]int
	checkouts  map[string]model.Checkout
	projection map[string]map[string]int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		byID:       make(map[string]int),
		checkouts:  make(map[string]model.Checkout),
		projection: make(map[string]map[string]int),
	}
}

// Append records ev and applies it to the index and projection.
// Events of an unknown kind are ignored.
func (l *Ledger) Append(ev model.Event, toolClass string) {
	if !ev.Kind.Valid() {
		return
	}

	l.byID[ev.ID] = len(l.events)
	l.events = append(l.events, ev)

	counts, ok := l.projection[toolClass]
	if !ok {
		counts = make(map[string]int)
		l.projection[toolClass] = counts
	}

	switch ev.Kind {
	case model.EventCheckout:
		counts[ev.Drawer]--
		l.checkouts[ev.Tool.ID] = model.Checkout{
			ToolID:    ev.Tool.ID,
			UserID:    ev.User.ID,
			Timestamp: ev.Timestamp,
			Drawer:    ev.Drawer,
		}
	case model.EventCheckin:
		counts[ev.Drawer]++
		delete(l.checkouts, ev.Tool.ID)
	}
}

// Len returns the number of recorded events.
func (l *Ledger) Len() int { return len(l.events) }

// Events returns events newest first. limit <= 0 means all.
func (l *Ledger) Events(limit int) []model.Event {
	out := make([]model.Event, len(l.events))
	for i, ev := range l.events {
		out[len(out)-1-i] = ev
	}
	// Equal timestamps keep newest-appended first.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// Event looks up a single event by id.
func (l *Ledger) Event(id string) (model.Event, error) {
	i, ok := l.byID[id]
	if !ok {
		return model.Event{}, ErrEventNotFound
	}
	return l.events[i], nil
}

// Checkouts returns the outstanding checkouts ordered by tool id.
func (l *Ledger) Checkouts() []model.Checkout {
	out := make([]model.Checkout, 0, len(l.checkouts))
	for _, c := range l.checkouts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolID < out[j].ToolID })
	return out
}

// Projection returns a deep copy of tool class -> drawer -> count.
func (l *Ledger) Projection() map[string]map[string]int {
	out := make(map[string]map[string]int, len(l.projection))
	for class, counts := range l.projection {
		c := make(map[string]int, len(counts))
		for drawer, n := range counts {
			c[drawer] = n
		}
		out[class] = c
	}
	return out
}

// Overview derives dashboard statistics without mutating the ledger.
// toolIDs is the configured tool table.
func (l *Ledger) Overview(toolIDs []string, now time.Time, window time.Duration) model.Overview {
	users := make(map[string]struct{})
	for _, c := range l.checkouts {
		users[c.UserID] = struct{}{}
	}

	since := now.Add(-window).Unix()
	seen := make(map[string]struct{})
	for _, ev := range l.events {
		if ev.Timestamp >= since {
			seen[ev.Tool.ID] = struct{}{}
		}
	}

	unseen := 0
	for _, id := range toolIDs {
		if _, ok := seen[id]; !ok {
			unseen++
		}
	}

	return model.Overview{
		ToolsCount:                    len(toolIDs),
		UsersWithCheckedOutToolsCount: len(users),
		ToolsUnseenInLast7DaysCount:   unseen,
	}
}
