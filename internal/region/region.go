// Package region partitions a connected hex set into N contiguous regions of
// roughly equal size.
//
// Segmentation runs in four steps: k-means clustering of hex centers on a
// local tangent plane, connected-component analysis of each cluster,
// contiguity repair of minority components, and boundary rebalancing toward
// the size tolerance. Contiguity is never traded for balance.
package region

import (
	"fmt"

	"github.com/talgya/hexatlas/internal/faults"
	"github.com/talgya/hexatlas/internal/geodesy"
	"github.com/talgya/hexatlas/internal/hexgrid"
)

// Site is one hex to be partitioned.
type Site struct {
	Coord  hexgrid.HexCoord
	Center geodesy.GeoPoint
}

// Region is one part of a partition. Hexes are in input order.
type Region struct {
	ID       int                `json:"id"`
	Hexes    []hexgrid.HexCoord `json:"hexes"`
	Centroid geodesy.GeoPoint   `json:"centroid"`
}

// Size returns the number of hexes in the region.
func (r Region) Size() int {
	return len(r.Hexes)
}

// Partition is the result of Segment.
type Partition struct {
	Assign  map[hexgrid.HexCoord]int `json:"-"`
	Regions []Region                 `json:"regions"`
	// Lower and Upper are the inclusive size bounds for the tolerance.
	Lower int `json:"lower"`
	Upper int `json:"upper"`
	// ToleranceMet is false when rebalancing could not bring every region
	// within bounds.
	ToleranceMet bool `json:"tolerance_met"`
	// Passes counts rebalancing moves.
	Passes int `json:"passes"`
}

// Sizes returns region sizes by id.
func (p *Partition) Sizes() []int {
	out := make([]int, len(p.Regions))
	for i, r := range p.Regions {
		out[i] = r.Size()
	}
	return out
}

// Warning returns a non-nil error wrapping faults.ErrToleranceExceeded when
// the partition is out of balance. The partition is still valid.
func (p *Partition) Warning() error {
	if p.ToleranceMet {
		return nil
	}
	return fmt.Errorf("region sizes %v outside [%d, %d]: %w", p.Sizes(), p.Lower, p.Upper, faults.ErrToleranceExceeded)
}
