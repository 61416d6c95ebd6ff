package tracker

import (
	"strconv"
	"time"

	"toolwatch/internal/catalog"
	"toolwatch/internal/model"
)

// DefaultLookbackDelay is how far back the comparison snapshot is taken
// when a drawer closes.
const DefaultLookbackDelay = 2 * time.Second

// Outcome classifies a closed episode.
type Outcome string

const (
	OutcomeCheckout Outcome = "checkout"
	OutcomeCheckin  Outcome = "checkin"
	OutcomeNoChange Outcome = "no_change"
	OutcomeUnmapped Outcome = "unmapped_drawer"
	OutcomeNoUser   Outcome = "no_user"
)

// Detection is the result of diffing one episode.
type Detection struct {
	Outcome    Outcome
	Drawer     string
	ToolClass  string
	Removed    []string
	Added      []string
	Comparison Snapshot
	Source     LookbackSource
	Events     []model.Event
}

// Detector classifies a closing episode as checkout, check-in or no-op.
type Detector struct {
	catalog  *catalog.Catalog
	delay    time.Duration
	maxItems int
	newID    func() string
}

// NewDetector creates a detector. maxItems below one is treated as one.
func NewDetector(cat *catalog.Catalog, delay time.Duration, maxItems int, newID func() string) *Detector {
	if delay <= 0 {
		delay = DefaultLookbackDelay
	}
	if maxItems < 1 {
		maxItems = 1
	}
	return &Detector{catalog: cat, delay: delay, maxItems: maxItems, newID: newID}
}

// Detect diffs the episode's initial set against a delayed snapshot and
// builds the events to record. It does not mutate anything.
//
// Checkout takes precedence over check-in when both diffs are non-empty.
// An episode without an identified user yields no events.
func (d *Detector) Detect(open *Open, buf *RingBuffer, now time.Time, frameRef string) Detection {
	comparison, source := buf.Lookback(now, d.delay, open.Latest)

	removed := open.Initial.Minus(comparison.Tools)
	added := comparison.Tools.Minus(open.Initial)

	det := Detection{
		Drawer:     open.Drawer,
		Removed:    removed.Sorted(),
		Added:      added.Sorted(),
		Comparison: comparison,
		Source:     source,
	}

	class, ok := d.catalog.ToolClass(open.Drawer)
	if !ok {
		det.Outcome = OutcomeUnmapped
		return det
	}
	det.ToolClass = class

	var kind model.EventKind
	var changed []string
	switch {
	case !removed.Empty():
		det.Outcome, kind, changed = OutcomeCheckout, model.EventCheckout, det.Removed
	case !added.Empty():
		det.Outcome, kind, changed = OutcomeCheckin, model.EventCheckin, det.Added
	default:
		det.Outcome = OutcomeNoChange
		return det
	}

	if open.LastUser == nil {
		det.Outcome = OutcomeNoUser
		return det
	}

	n := len(changed)
	if n > d.maxItems {
		n = d.maxItems
	}

	tool := d.catalog.Tool(class)
	image := eventImage(comparison.FrameRef, frameRef, now)
	det.Events = make([]model.Event, 0, n)
	for i := 0; i < n; i++ {
		det.Events = append(det.Events, model.Event{
			ID:        d.newID(),
			Timestamp: now.Unix(),
			Kind:      kind,
			User:      *open.LastUser,
			Tool:      tool,
			Drawer:    open.Drawer,
			ImageURL:  image,
		})
	}
	return det
}

func eventImage(snapshotFrame, tickFrame string, now time.Time) string {
	if snapshotFrame != "" {
		return snapshotFrame
	}
	if tickFrame != "" {
		return tickFrame
	}
	return "https://picsum.photos/seed/" + strconv.FormatInt(now.Unix(), 10) + "/500"
}
