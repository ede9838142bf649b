package atlas

import (
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/hexatlas/internal/environment"
	"github.com/talgya/hexatlas/internal/terrain"
	"github.com/talgya/hexatlas/internal/world"
)

// HexRecord is the flat, exportable view of one hex.
type HexRecord struct {
	Q             int      `json:"q" msgpack:"q" db:"q"`
	R             int      `json:"r" msgpack:"r" db:"r"`
	S             int      `json:"s" msgpack:"s" db:"s"`
	Lat           float64  `json:"lat" msgpack:"lat" db:"lat"`
	Lon           float64  `json:"lon" msgpack:"lon" db:"lon"`
	Elevation     *float64 `json:"elevation" msgpack:"elevation" db:"elevation"`
	Precipitation *float64 `json:"precipitation" msgpack:"precipitation" db:"precipitation"`
	Humidity      *float64 `json:"humidity" msgpack:"humidity" db:"humidity"`
	Slope         *float64 `json:"slope" msgpack:"slope" db:"slope"`
	Vegetation    *float64 `json:"vegetation" msgpack:"vegetation" db:"vegetation"`
	Terrain       string   `json:"terrain" msgpack:"terrain" db:"terrain"`
	Confidence    float64  `json:"confidence" msgpack:"confidence" db:"confidence"`
	Region        *int     `json:"region" msgpack:"region" db:"region"`
}

// RegionSummary describes one region.
type RegionSummary struct {
	ID              int            `json:"id" msgpack:"id" db:"id"`
	Size            int            `json:"size" msgpack:"size" db:"size"`
	CentroidLat     float64        `json:"centroid_lat" msgpack:"centroid_lat" db:"centroid_lat"`
	CentroidLon     float64        `json:"centroid_lon" msgpack:"centroid_lon" db:"centroid_lon"`
	Dominant        string         `json:"dominant_terrain" msgpack:"dominant_terrain" db:"dominant_terrain"`
	Terrain         map[string]int `json:"terrain_counts" msgpack:"terrain_counts" db:"-"`
	MeanElevation   *float64       `json:"mean_elevation" msgpack:"mean_elevation" db:"mean_elevation"`
	ElevationStdDev *float64       `json:"elevation_stddev" msgpack:"elevation_stddev" db:"elevation_stddev"`
}

// Records returns one record per projected hex, in grid order.
func (r *Result) Records() []HexRecord {
	out := make([]HexRecord, 0, r.Grid.Len())
	for i := 0; i < r.Grid.Len(); i++ {
		h := r.Grid.At(i)
		if !h.Has(world.StageCenter) {
			continue
		}
		a := h.Attributes.Clone()
		rec := HexRecord{
			Q:             h.Coord.Q,
			R:             h.Coord.R,
			S:             h.Coord.S(),
			Lat:           h.Center.Lat,
			Lon:           h.Center.Lon,
			Elevation:     a.Elevation,
			Precipitation: a.Precipitation,
			Humidity:      a.Humidity,
			Slope:         a.Slope,
			Vegetation:    a.Vegetation,
			Terrain:       h.Terrain.String(),
			Confidence:    h.Confidence,
		}
		if id, ok := h.RegionID(); ok {
			rec.Region = &id
		}
		out = append(out, rec)
	}
	return out
}

// Summaries returns one summary per region, or nil without a partition.
func (r *Result) Summaries() []RegionSummary {
	if r.Partition == nil {
		return nil
	}
	out := make([]RegionSummary, len(r.Partition.Regions))
	for k, reg := range r.Partition.Regions {
		counts := make(map[terrain.Label]int)
		var elev []float64
		for _, c := range reg.Hexes {
			h := r.Grid.Get(c)
			counts[h.Terrain]++
			if v, ok := h.Attributes.Get(environment.Elevation); ok {
				elev = append(elev, v)
			}
		}

		sum := RegionSummary{
			ID:          reg.ID,
			Size:        reg.Size(),
			CentroidLat: reg.Centroid.Lat,
			CentroidLon: reg.Centroid.Lon,
			Terrain:     make(map[string]int, len(counts)),
		}
		best, bestCount := terrain.Uncertain, 0
		for _, l := range terrain.Labels {
			if counts[l] == 0 {
				continue
			}
			sum.Terrain[l.String()] = counts[l]
			if counts[l] > bestCount {
				best, bestCount = l, counts[l]
			}
		}
		sum.Dominant = best.String()
		if len(elev) > 0 {
			mean, std := stat.MeanStdDev(elev, nil)
			sum.MeanElevation = &mean
			if len(elev) > 1 {
				sum.ElevationStdDev = &std
			}
		}
		out[k] = sum
	}
	return out
}

// TerrainCounts returns the terrain distribution over all classified hexes.
func (r *Result) TerrainCounts() map[terrain.Label]int {
	results := make([]terrain.Result, 0, r.Grid.Len())
	for i := 0; i < r.Grid.Len(); i++ {
		if h := r.Grid.At(i); h.Has(world.StageTerrain) {
			results = append(results, terrain.Result{Label: h.Terrain, Confidence: h.Confidence})
		}
	}
	return terrain.Counts(results)
}
