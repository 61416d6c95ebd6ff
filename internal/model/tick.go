package model

import "time"

// Tick is one producer observation handed to the tracker.
//
// Nil Drawer means the drawer sensor produced no reading this tick; a
// non-nil Drawer with an empty Identifier means "no drawer open". Nil
// Tools means no detector result; an empty non-nil slice is an empty
// reading.
type Tick struct {
	At       time.Time      `json:"at,omitempty"`
	Drawer   *DrawerReading `json:"drawer,omitempty"`
	Depth    *DepthReading  `json:"depth,omitempty"`
	Tools    []string       `json:"tools"`
	User     string         `json:"user,omitempty"`
	FrameRef string         `json:"frame_ref,omitempty"`
}

// DrawerReading is the drawer identity derived from depth samples.
type DrawerReading struct {
	Identifier string `json:"identifier,omitempty"`
}

// Open reports whether the reading names an open drawer.
func (r *DrawerReading) Open() bool {
	return r != nil && r.Identifier != ""
}

// DepthReading carries depth for the two drawer columns, either as averaged
// values or as raw sample windows. An averaged value wins over its window.
// A side with neither is an unreliable sample.
type DepthReading struct {
	Left         *int  `json:"left,omitempty"`
	Right        *int  `json:"right,omitempty"`
	LeftSamples  []int `json:"left_samples,omitempty"`
	RightSamples []int `json:"right_samples,omitempty"`
}
