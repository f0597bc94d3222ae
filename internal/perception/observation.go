// Package perception turns raw screen captures into structured observations
// the model can reason about: ordered text regions with bounding boxes in
// the surface's own pixel space.
package perception

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Box is an axis-aligned bounding box in surface pixels.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Center returns the box's midpoint, the canonical tap target for the
// element it bounds.
func (b Box) Center() (int, int) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Contains reports whether the point lies inside the box.
func (b Box) Contains(x, y int) bool {
	return x >= b.X && x < b.X+b.W && y >= b.Y && y < b.Y+b.H
}

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", b.X, b.Y, b.W, b.H)
}

// Region is one recognized text element.
type Region struct {
	Text       string  `json:"text"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// Observation is a structured snapshot of the screen at one instant. It is
// produced fresh each loop cycle and owned by that cycle.
type Observation struct {
	TakenAt time.Time `json:"taken_at"`
	// Frame is the raw PNG the regions were extracted from.
	Frame  []byte `json:"-"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	// Regions are ordered top-to-bottom, then left-to-right.
	Regions []Region `json:"regions"`
}

// Summary renders at most max regions into the compact numbered form used in
// prompts and step records.
func (o Observation) Summary(max int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "screen %dx%d, %d regions", o.Width, o.Height, len(o.Regions))
	if len(o.Regions) == 0 {
		return b.String()
	}
	b.WriteString(": ")
	n := len(o.Regions)
	if max > 0 && n > max {
		n = max
	}
	for i := 0; i < n; i++ {
		r := o.Regions[i]
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "[%d] %q box=%s conf=%.2f", i+1, r.Text, r.Box, r.Confidence)
	}
	if n < len(o.Regions) {
		fmt.Fprintf(&b, "; (+%d more)", len(o.Regions)-n)
	}
	return b.String()
}

// FindRegion locates the first region whose text contains the query,
// case-insensitively. Partial matches are intentional: UI labels rarely
// match a goal description verbatim.
func (o Observation) FindRegion(query string) (Region, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Region{}, false
	}
	for _, r := range o.Regions {
		if strings.Contains(strings.ToLower(r.Text), q) {
			return r, true
		}
	}
	return Region{}, false
}

// RegionAt returns the topmost region containing the point.
func (o Observation) RegionAt(x, y int) (Region, bool) {
	for _, r := range o.Regions {
		if r.Box.Contains(x, y) {
			return r, true
		}
	}
	return Region{}, false
}

// sortRegions orders regions top-to-bottom with a small row tolerance, then
// left-to-right, so numbering is stable across captures of the same screen.
func sortRegions(regions []Region) {
	const rowTolerance = 12
	sort.SliceStable(regions, func(i, j int) bool {
		yi, yj := regions[i].Box.Y, regions[j].Box.Y
		if di := yi - yj; di > rowTolerance || di < -rowTolerance {
			return yi < yj
		}
		return regions[i].Box.X < regions[j].Box.X
	})
}
