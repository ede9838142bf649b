package world

import (
	"fmt"

	"github.com/talgya/hexatlas/internal/hexgrid"
)

// Grid holds every hex of a width x height rectangle, indexed by a stable
// row-major position. Workers may write distinct hexes concurrently.
type Grid struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	hexes []Hex
	index map[hexgrid.HexCoord]int
}

// NewGrid builds the arena for a width x height rectangle centered on the
// origin. Non-positive sizes are configuration errors.
func NewGrid(width, height int) (*Grid, error) {
	coords, err := hexgrid.Rectangle(width, height)
	if err != nil {
		return nil, err
	}
	g := &Grid{
		Width:  width,
		Height: height,
		hexes:  make([]Hex, len(coords)),
		index:  make(map[hexgrid.HexCoord]int, len(coords)),
	}
	for i, c := range coords {
		g.hexes[i].Coord = c
		g.index[c] = i
	}
	return g, nil
}

// Len returns the number of hexes.
func (g *Grid) Len() int {
	return len(g.hexes)
}

// At returns the hex at position i.
func (g *Grid) At(i int) *Hex {
	return &g.hexes[i]
}

// Index returns the position of coord.
func (g *Grid) Index(coord hexgrid.HexCoord) (int, bool) {
	i, ok := g.index[coord]
	return i, ok
}

// Get returns the hex at the given coordinate, or nil if out of bounds.
func (g *Grid) Get(coord hexgrid.HexCoord) *Hex {
	i, ok := g.index[coord]
	if !ok {
		return nil
	}
	return &g.hexes[i]
}

// InBounds reports whether coord belongs to the grid.
func (g *Grid) InBounds(coord hexgrid.HexCoord) bool {
	_, ok := g.index[coord]
	return ok
}

// Coords returns all coordinates in position order.
func (g *Grid) Coords() []hexgrid.HexCoord {
	out := make([]hexgrid.HexCoord, len(g.hexes))
	for i := range g.hexes {
		out[i] = g.hexes[i].Coord
	}
	return out
}

// Neighbors returns the positions of the in-grid neighbors of position i.
func (g *Grid) Neighbors(i int) []int {
	out := make([]int, 0, 6)
	for _, n := range g.hexes[i].Coord.Neighbors() {
		if j, ok := g.index[n]; ok {
			out = append(out, j)
		}
	}
	return out
}

// Connected reports whether the positions in keep form one component under
// adjacency. An empty set is not connected.
func (g *Grid) Connected(keep []int) bool {
	if len(keep) == 0 {
		return false
	}
	in := make(map[int]bool, len(keep))
	for _, i := range keep {
		in[i] = true
	}
	seen := map[int]bool{keep[0]: true}
	queue := []int{keep[0]}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range g.Neighbors(cur) {
			if in[n] && !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	return len(seen) == len(in)
}

// Count returns how many hexes have stage s written.
func (g *Grid) Count(s Stage) int {
	n := 0
	for i := range g.hexes {
		if g.hexes[i].Has(s) {
			n++
		}
	}
	return n
}

// String returns a summary of the grid.
func (g *Grid) String() string {
	return fmt.Sprintf("Grid(%dx%d, hexes=%d)", g.Width, g.Height, g.Len())
}
