package tracker

import (
	"sort"
	"time"
)

// DefaultRetentionWindow bounds how long snapshots stay in the buffer.
const DefaultRetentionWindow = 2 * time.Second

// Snapshot is one recorded tool detection.
type Snapshot struct {
	At       time.Time `json:"at"`
	Tools    ToolSet   `json:"tools"`
	FrameRef string    `json:"frame_ref,omitempty"`
}

// LookbackSource says which rule produced a lookback result.
type LookbackSource string

const (
	SourceAtOrBefore      LookbackSource = "at_or_before"
	SourceNearest         LookbackSource = "nearest"
	SourceLastNonEmpty    LookbackSource = "last_non_empty"
	SourceCurrentFallback LookbackSource = "current"
)

// RingBuffer is a time-ordered, time-bounded store of detection snapshots.
// It answers "what was visible a moment ago" so that a hand blocking the
// camera at close time does not read as a removal.
//
// RingBuffer is not safe for concurrent use; Manager serialises access.
type RingBuffer struct {
	retention    time.Duration
	entries      []Snapshot
	lastNonEmpty *Snapshot
}

// NewRingBuffer creates a buffer with the given retention window.
func NewRingBuffer(retention time.Duration) *RingBuffer {
	if retention <= 0 {
		retention = DefaultRetentionWindow
	}
	return &RingBuffer{retention: retention}
}

// Record appends a snapshot and prunes everything older than the retention
// window. The newest snapshot always survives pruning.
func (b *RingBuffer) Record(tools ToolSet, frameRef string, now time.Time) {
	snap := Snapshot{At: now, Tools: tools, FrameRef: frameRef}

	// Producers are ordered, but tick timestamps may come from the edge.
	i := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].At.After(now)
	})
	b.entries = append(b.entries, Snapshot{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = snap

	if !tools.Empty() {
		if b.lastNonEmpty == nil || !snap.At.Before(b.lastNonEmpty.At) {
			s := snap
			b.lastNonEmpty = &s
		}
	}

	b.prune(now)
}

func (b *RingBuffer) prune(now time.Time) {
	cutoff := now.Add(-b.retention)
	kept := b.entries[:0]
	for _, s := range b.entries {
		if s.At.After(cutoff) {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 && len(b.entries) > 0 {
		kept = append(kept, b.entries[len(b.entries)-1])
	}
	// Clear the tail so dropped snapshots are collectable.
	for i := len(kept); i < len(b.entries); i++ {
		b.entries[i] = Snapshot{}
	}
	b.entries = kept
}

// Lookback returns the snapshot that best represents what was visible at
// now-delay:
//
//  1. the most recent snapshot at or before the target;
//  2. otherwise the snapshot nearest to the target;
//  3. if the buffer is empty, the most recent non-empty snapshot recorded;
//  4. otherwise current, with no frame reference.
//
// Record always keeps the newest snapshot, so a quiet detector still answers
// with its last reading, however old.
func (b *RingBuffer) Lookback(now time.Time, delay time.Duration, current ToolSet) (Snapshot, LookbackSource) {
	target := now.Add(-delay)
	usable := b.entries

	for i := len(usable) - 1; i >= 0; i-- {
		if !usable[i].At.After(target) {
			return usable[i], SourceAtOrBefore
		}
	}

	if len(usable) > 0 {
		best := usable[0]
		bestDist := absDuration(best.At.Sub(target))
		for _, s := range usable[1:] {
			if d := absDuration(s.At.Sub(target)); d < bestDist {
				best, bestDist = s, d
			}
		}
		return best, SourceNearest
	}

	if b.lastNonEmpty != nil {
		return *b.lastNonEmpty, SourceLastNonEmpty
	}

	return Snapshot{At: now, Tools: current}, SourceCurrentFallback
}

// Len returns the number of retained snapshots.
func (b *RingBuffer) Len() int { return len(b.entries) }

// Snapshots returns a copy of the retained snapshots, oldest first.
func (b *RingBuffer) Snapshots() []Snapshot {
	out := make([]Snapshot, len(b.entries))
	copy(out, b.entries)
	return out
}

// Reset drops all snapshots, including the non-empty fallback.
func (b *RingBuffer) Reset() {
	b.entries = nil
	b.lastNonEmpty = nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
