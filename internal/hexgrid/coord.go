// Package hexgrid provides hex grid coordinate math.
// Uses axial coordinates (q, r); the third cube coordinate s is derived so
// q + r + s = 0 always holds.
package hexgrid

import (
	"fmt"
	"math"

	"github.com/talgya/hexatlas/internal/faults"
)

// HexCoord represents a position on the hex grid using axial coordinates.
// The third cube coordinate s is derived: s = -q - r.
type HexCoord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// NewCube builds a coordinate from an explicit cube triple.
func NewCube(q, r, s int) (HexCoord, error) {
	if q+r+s != 0 {
		return HexCoord{}, faults.Config("cube", "q+r+s must be 0, got %d+%d+%d", q, r, s)
	}
	return HexCoord{Q: q, R: r}, nil
}

// S returns the implicit third cube coordinate.
func (h HexCoord) S() int {
	return -h.Q - h.R
}

// Add returns h + o component-wise.
func (h HexCoord) Add(o HexCoord) HexCoord {
	return HexCoord{Q: h.Q + o.Q, R: h.R + o.R}
}

// Sub returns h - o component-wise.
func (h HexCoord) Sub(o HexCoord) HexCoord {
	return HexCoord{Q: h.Q - o.Q, R: h.R - o.R}
}

// Scale multiplies every component by k.
func (h HexCoord) Scale(k int) HexCoord {
	return HexCoord{Q: h.Q * k, R: h.R * k}
}

func (h HexCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", h.Q, h.R, h.S())
}

// Directions defines the six neighbor offsets in axial coordinates,
// starting east and turning counter-clockwise.
var Directions = [6]HexCoord{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// Neighbor returns the adjacent coordinate in direction dir (mod 6).
func (h HexCoord) Neighbor(dir int) HexCoord {
	d := ((dir % 6) + 6) % 6
	return h.Add(Directions[d])
}

// Neighbors returns the six adjacent hex coordinates.
func (h HexCoord) Neighbors() [6]HexCoord {
	var result [6]HexCoord
	for i, dir := range Directions {
		result[i] = h.Add(dir)
	}
	return result
}

// Distance returns the number of steps between a and b along the adjacency graph.
func Distance(a, b HexCoord) int {
	d := a.Sub(b)
	return max(abs(d.Q), abs(d.R), abs(d.S()))
}

// Adjacent reports whether a and b share an edge.
func Adjacent(a, b HexCoord) bool {
	return Distance(a, b) == 1
}

// Ring returns the coordinates exactly radius steps from center, walking
// from the south-west corner. Radius 0 yields the center alone.
func Ring(center HexCoord, radius int) []HexCoord {
	if radius < 0 {
		return nil
	}
	if radius == 0 {
		return []HexCoord{center}
	}
	out := make([]HexCoord, 0, 6*radius)
	h := center.Add(Directions[4].Scale(radius))
	for side := 0; side < 6; side++ {
		for step := 0; step < radius; step++ {
			out = append(out, h)
			h = h.Neighbor(side)
		}
	}
	return out
}

// Spiral returns every coordinate within radius of center, ring by ring.
func Spiral(center HexCoord, radius int) []HexCoord {
	out := []HexCoord{center}
	for r := 1; r <= radius; r++ {
		out = append(out, Ring(center, r)...)
	}
	return out
}

// Line returns the hexes on the straight segment from a to b, inclusive.
func Line(a, b HexCoord) []HexCoord {
	n := Distance(a, b)
	if n == 0 {
		return []HexCoord{a}
	}
	out := make([]HexCoord, 0, n+1)
	// Nudge off exact edges so rounding is consistent.
	const eps = 1e-6
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		q := lerp(float64(a.Q)+eps, float64(b.Q)+eps, t)
		r := lerp(float64(a.R)+eps, float64(b.R)+eps, t)
		s := lerp(float64(a.S())-2*eps, float64(b.S())-2*eps, t)
		out = append(out, Round(q, r, s))
	}
	return out
}

// Round snaps fractional cube coordinates to the nearest hex.
func Round(q, r, s float64) HexCoord {
	rq, rr, rs := math.Round(q), math.Round(r), math.Round(s)
	dq, dr, ds := math.Abs(rq-q), math.Abs(rr-r), math.Abs(rs-s)
	switch {
	case dq > dr && dq > ds:
		rq = -rr - rs
	case dr > ds:
		rr = -rq - rs
	}
	return HexCoord{Q: int(rq), R: int(rr)}
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
