// Package world holds the per-run hex arena. Each hex is filled in stages
// (center, attributes, terrain, region) and every stage is written once.
package world

import (
	"errors"
	"fmt"

	"github.com/talgya/hexatlas/internal/environment"
	"github.com/talgya/hexatlas/internal/geodesy"
	"github.com/talgya/hexatlas/internal/hexgrid"
	"github.com/talgya/hexatlas/internal/terrain"
)

// ErrAlreadySet is returned when a stage field is written a second time.
var ErrAlreadySet = errors.New("world: field already set")

// Stage identifies a write-once group of Hex fields.
type Stage uint8

const (
	StageCenter Stage = 1 << iota
	StageAttributes
	StageTerrain
	StageRegion
)

func (s Stage) String() string {
	switch s {
	case StageCenter:
		return "center"
	case StageAttributes:
		return "attributes"
	case StageTerrain:
		return "terrain"
	case StageRegion:
		return "region"
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// Hex is a single cell of the map.
type Hex struct {
	Coord hexgrid.HexCoord `json:"coord"`

	// Geographic center, set by projection.
	Center geodesy.GeoPoint `json:"center"`

	// Environmental data, set once by the provider stage.
	Attributes environment.Attributes `json:"attributes"`

	// Classification output.
	Terrain    terrain.Label `json:"terrain"`
	Confidence float64       `json:"confidence"`

	// Region id from segmentation; meaningful only when HasRegion.
	Region int `json:"region"`

	set Stage
}

// Has reports whether stage s has been written.
func (h *Hex) Has(s Stage) bool {
	return h.set&s != 0
}

func (h *Hex) mark(s Stage) error {
	if h.Has(s) {
		return fmt.Errorf("hex %v %s: %w", h.Coord, s, ErrAlreadySet)
	}
	h.set |= s
	return nil
}

// SetCenter records the projected center.
func (h *Hex) SetCenter(p geodesy.GeoPoint) error {
	if err := h.mark(StageCenter); err != nil {
		return err
	}
	h.Center = p
	return nil
}

// SetAttributes records the provider's data. The hex keeps its own copy.
func (h *Hex) SetAttributes(a environment.Attributes) error {
	if err := h.mark(StageAttributes); err != nil {
		return err
	}
	h.Attributes = a.Clone()
	return nil
}

// SetTerrain records a classification result.
func (h *Hex) SetTerrain(r terrain.Result) error {
	if err := h.mark(StageTerrain); err != nil {
		return err
	}
	h.Terrain = r.Label
	h.Confidence = r.Confidence
	return nil
}

// SetRegion records the region assignment.
func (h *Hex) SetRegion(id int) error {
	if err := h.mark(StageRegion); err != nil {
		return err
	}
	h.Region = id
	return nil
}

// RegionID returns the region and whether one was assigned.
func (h *Hex) RegionID() (int, bool) {
	return h.Region, h.Has(StageRegion)
}
