// Package atlas runs the full map pipeline: grid, projection, attributes,
// classification and segmentation.
package atlas

import (
	"encoding/json"
	"runtime"

	"github.com/talgya/hexatlas/internal/environment"
	"github.com/talgya/hexatlas/internal/geodesy"
	"github.com/talgya/hexatlas/internal/hexgrid"
	"github.com/talgya/hexatlas/internal/region"
	"github.com/talgya/hexatlas/internal/terrain"
	"github.com/talgya/hexatlas/internal/world"
)

// Request describes the map to build.
type Request struct {
	Center     geodesy.GeoPoint `json:"center" yaml:"center" msgpack:"center"`
	EdgeMeters float64          `json:"edge_meters" yaml:"edge_meters" msgpack:"edge_meters"`
	Width      int              `json:"width" yaml:"width" msgpack:"width"`
	Height     int              `json:"height" yaml:"height" msgpack:"height"`
	Regions    int              `json:"regions" yaml:"regions" msgpack:"regions"`
}

// Options tune the pipeline stages.
type Options struct {
	Workers   int `yaml:"workers" json:"workers"`
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	PoleLimit     float64 `yaml:"pole_limit" json:"pole_limit"`
	WrapLongitude bool    `yaml:"wrap_longitude" json:"wrap_longitude"`

	Terrain terrain.Config `yaml:"terrain" json:"terrain"`

	Tolerance          float64 `yaml:"tolerance" json:"tolerance"`
	MaxIterations      int     `yaml:"max_iterations" json:"max_iterations"`
	MaxRebalancePasses int     `yaml:"max_rebalance_passes" json:"max_rebalance_passes"`
}

// DefaultOptions returns the stock settings.
func DefaultOptions() Options {
	return Options{
		Workers:       runtime.NumCPU(),
		BatchSize:     environment.DefaultBatchSize,
		PoleLimit:     geodesy.DefaultPoleLimit,
		WrapLongitude: true,
		Terrain:       terrain.DefaultConfig(),
		Tolerance:     region.DefaultTolerance,
		MaxIterations: region.DefaultMaxIterations,
	}
}

// Failure is a hex that could not be projected. It is left out of every
// later stage.
type Failure struct {
	Coord hexgrid.HexCoord
	Err   error
}

// Record flattens the failure for export.
func (f Failure) Record() FailureRecord {
	return FailureRecord{Q: f.Coord.Q, R: f.Coord.R, S: f.Coord.S(), Error: f.Err.Error()}
}

func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Record())
}

// FailureRecord is the exported form of a Failure.
type FailureRecord struct {
	Q     int    `json:"q" msgpack:"q"`
	R     int    `json:"r" msgpack:"r"`
	S     int    `json:"s" msgpack:"s"`
	Error string `json:"error" msgpack:"error"`
}

// Result is a finished run. Partition is nil when segmentation was skipped;
// SegmentErr then says why.
type Result struct {
	Request    Request
	Grid       *world.Grid
	Partition  *region.Partition
	SegmentErr error
	Failures   []Failure
}
