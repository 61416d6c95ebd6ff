package tracker

import (
	"encoding/json"
	"sort"
)

// ToolSet is an immutable set of tracked-entity identifiers.
// The zero value is an empty set.
type ToolSet struct {
	ids map[string]struct{}
}

// NewToolSet copies ids into a new set. Empty identifiers are skipped.
func NewToolSet(ids ...string) ToolSet {
	if len(ids) == 0 {
		return ToolSet{}
	}
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		m[id] = struct{}{}
	}
	return ToolSet{ids: m}
}

// Len returns the number of identifiers.
func (s ToolSet) Len() int { return len(s.ids) }

// Empty reports whether the set has no identifiers.
func (s ToolSet) Empty() bool { return len(s.ids) == 0 }

// Has reports membership.
func (s ToolSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Minus returns the identifiers in s that are not in other.
func (s ToolSet) Minus(other ToolSet) ToolSet {
	var out map[string]struct{}
	for id := range s.ids {
		if other.Has(id) {
			continue
		}
		if out == nil {
			out = make(map[string]struct{})
		}
		out[id] = struct{}{}
	}
	return ToolSet{ids: out}
}

// Equal reports whether both sets hold the same identifiers.
func (s ToolSet) Equal(other ToolSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for id := range s.ids {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Sorted returns the identifiers in ascending order as a fresh slice.
func (s ToolSet) Sorted() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s ToolSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}
