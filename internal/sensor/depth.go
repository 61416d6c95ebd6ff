// Package sensor turns raw depth samples into drawer readings.
package sensor

import (
	"toolwatch/internal/catalog"
	"toolwatch/internal/model"
)

// DefaultMaxVariance is the variance above which a sample window is treated
// as straddling the drawer edge and therefore unreliable.
const DefaultMaxVariance = 150

// Classifier maps averaged depth values onto drawer identifiers.
type Classifier struct {
	cfg         catalog.DepthConfig
	maxVariance float64
}

// NewClassifier creates a classifier for the configured depth bands.
func NewClassifier(cfg catalog.DepthConfig) *Classifier {
	v := cfg.MaxVariance
	if v <= 0 {
		v = DefaultMaxVariance
	}
	return &Classifier{cfg: cfg, maxVariance: v}
}

// Classify returns the drawer reading for one depth reading. The right column
// is matched before the left. A missing side uses the configured unreliable
// value, which falls outside every band. Depths matching no band read as
// "no drawer open".
func (c *Classifier) Classify(r model.DepthReading) model.DrawerReading {
	right := c.valueOf(r.Right, r.RightSamples)
	left := c.valueOf(r.Left, r.LeftSamples)

	for _, band := range c.cfg.Right {
		if band.Contains(right) {
			return model.DrawerReading{Identifier: band.Drawer}
		}
	}
	for _, band := range c.cfg.Left {
		if band.Contains(left) {
			return model.DrawerReading{Identifier: band.Drawer}
		}
	}
	return model.DrawerReading{}
}

// Resolve fills in t.Drawer from t.Depth when the tick carries depth but no
// drawer reading. Ticks with an explicit drawer reading are returned as is.
func (c *Classifier) Resolve(t model.Tick) model.Tick {
	if t.Drawer != nil || t.Depth == nil {
		return t
	}
	d := c.Classify(*t.Depth)
	t.Drawer = &d
	return t
}

func (c *Classifier) valueOf(v *int, samples []int) int {
	if v != nil {
		return *v
	}
	if avg, ok := Average(samples, c.maxVariance); ok {
		return avg
	}
	return c.cfg.Unreliable
}

// Average returns the mean of the non-zero samples in a depth window.
// Zero samples are invalid readings and ignored. The result is unreliable
// (ok == false) when no valid sample remains or the variance exceeds
// maxVariance.
func Average(samples []int, maxVariance float64) (avg int, ok bool) {
	var sum, n float64
	for _, s := range samples {
		if s > 0 {
			sum += float64(s)
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	mean := sum / n

	var sq float64
	for _, s := range samples {
		if s > 0 {
			d := float64(s) - mean
			sq += d * d
		}
	}
	if sq/n > maxVariance {
		return 0, false
	}
	return int(mean), true
}
