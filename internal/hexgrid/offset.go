package hexgrid

import (
	"math"

	"github.com/talgya/hexatlas/internal/faults"
)

// OffsetToCube converts odd-r offset coordinates (odd rows shifted half a hex
// right) to axial coordinates.
func OffsetToCube(col, row int) HexCoord {
	q := col - (row-(row&1))/2
	return HexCoord{Q: q, R: row}
}

// CubeToOffset is the inverse of OffsetToCube.
func CubeToOffset(h HexCoord) (col, row int) {
	return h.Q + (h.R-(h.R&1))/2, h.R
}

// MaxCells is the largest grid Rectangle will build.
const MaxCells = 1 << 24

// Cells returns width*height, or a configuration error when either side is
// non-positive or the product exceeds MaxCells. The bound is checked before
// multiplying, so huge sides cannot wrap around.
func Cells(width, height int) (int, error) {
	if width <= 0 {
		return 0, faults.Config("width", "must be positive, got %d", width)
	}
	if height <= 0 {
		return 0, faults.Config("height", "must be positive, got %d", height)
	}
	if width > MaxCells/height {
		return 0, faults.Config("size", "%dx%d grid exceeds %d hexes", width, height, MaxCells)
	}
	return width * height, nil
}

// Rectangle enumerates a width×height block of hexes in odd-r offset layout,
// centered as close to (0,0,0) as parity allows. Order is row-major: rows
// north to south, columns west to east.
func Rectangle(width, height int) ([]HexCoord, error) {
	n, err := Cells(width, height)
	if err != nil {
		return nil, err
	}

	colMin := -(width - 1) / 2
	rowMin := -(height - 1) / 2

	coords := make([]HexCoord, 0, n)
	for row := rowMin; row < rowMin+height; row++ {
		for col := colMin; col < colMin+width; col++ {
			coords = append(coords, OffsetToCube(col, row))
		}
	}
	return coords, nil
}

// Layout converts hex coordinates into planar offsets for pointy-top hexes.
// Size is the hex radius (center to corner, equal to the edge length).
type Layout struct {
	Size float64
}

// HorizontalSpacing is the center-to-center distance between hexes in a row.
func (l Layout) HorizontalSpacing() float64 {
	return l.Size * math.Sqrt(3)
}

// VerticalSpacing is the center-to-center distance between adjacent rows.
func (l Layout) VerticalSpacing() float64 {
	return l.Size * 1.5
}

// ToPlanar returns the (east, north) offset of h's center from the origin hex.
// Rows grow southward, so positive r is negative north.
func (l Layout) ToPlanar(h HexCoord) (east, north float64) {
	east = l.HorizontalSpacing() * (float64(h.Q) + float64(h.R)/2)
	north = -l.VerticalSpacing() * float64(h.R)
	return east, north
}

// FromPlanar returns the hex containing the planar point (east, north).
func (l Layout) FromPlanar(east, north float64) HexCoord {
	r := -north / l.VerticalSpacing()
	q := east/l.HorizontalSpacing() - r/2
	return Round(q, r, -q-r)
}
