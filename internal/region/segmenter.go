package region

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/hexatlas/internal/faults"
	"github.com/talgya/hexatlas/internal/geodesy"
	"github.com/talgya/hexatlas/internal/hexgrid"
)

const (
	DefaultTolerance     = 0.2
	DefaultMaxIterations = 100
)

// Segmenter holds segmentation settings. The zero value is not usable; use
// New.
type Segmenter struct {
	// Tolerance is the allowed relative deviation from total/N.
	Tolerance float64
	// MaxIterations caps k-means rounds.
	MaxIterations int
	// MaxRebalancePasses caps rebalancing moves; 0 means 4 x hex count.
	MaxRebalancePasses int
	// Distance measures meters between two points when ranking donor hexes.
	Distance func(a, b geodesy.GeoPoint) float64
}

// New returns a Segmenter with default settings.
func New() *Segmenter {
	return &Segmenter{
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultMaxIterations,
		Distance:      geodesy.WGS84.Distance,
	}
}

// Bounds returns the inclusive size range allowed for n regions over total
// hexes with relative tolerance tol.
func Bounds(total, n int, tol float64) (lo, hi int) {
	ideal := float64(total) / float64(n)
	lo = int(math.Floor(ideal*(1-tol) + 1e-9))
	hi = int(math.Ceil(ideal*(1+tol) - 1e-9))
	return max(lo, 1), max(hi, lo)
}

// Segment partitions sites into n contiguous regions. Invalid input is
// rejected with a configuration error before any clustering runs. A
// partition that cannot meet the size tolerance is still returned; see
// Partition.Warning.
func (sg *Segmenter) Segment(sites []Site, n int) (*Partition, error) {
	if err := sg.validate(sites, n); err != nil {
		return nil, err
	}
	g, err := newGraph(sites)
	if err != nil {
		return nil, err
	}
	if !g.connected() {
		return nil, faults.Config("sites", "hex set is not connected")
	}

	s := newState(sites, g, n)
	s.assign, _ = Cluster(s.points, n, sg.MaxIterations)
	slog.Debug("clustered hexes", "hexes", len(sites), "regions", n)

	moved, err := s.repair()
	if err != nil {
		return nil, err
	}
	slog.Debug("repaired contiguity", "moved", moved)

	lo, hi := Bounds(len(sites), n, sg.Tolerance)
	maxPasses := sg.MaxRebalancePasses
	if maxPasses <= 0 {
		maxPasses = 4 * len(sites)
	}
	dist := sg.Distance
	if dist == nil {
		dist = geodesy.WGS84.Distance
	}
	passes, met := s.rebalance(lo, hi, maxPasses, dist)
	slog.Debug("rebalanced regions", "passes", passes, "tolerance_met", met)

	return s.partition(lo, hi, met, passes), nil
}

func (sg *Segmenter) validate(sites []Site, n int) error {
	if len(sites) == 0 {
		return faults.Config("sites", "no hexes to segment")
	}
	if n <= 0 {
		return faults.Config("regions", "must be positive, got %d", n)
	}
	if n > len(sites) {
		return faults.Config("regions", "%d regions requested for %d hexes", n, len(sites))
	}
	if math.IsNaN(sg.Tolerance) || sg.Tolerance < 0 {
		return faults.Config("tolerance", "must be a non-negative fraction, got %v", sg.Tolerance)
	}
	if sg.MaxIterations < 1 {
		return faults.Config("max_iterations", "must be positive, got %d", sg.MaxIterations)
	}
	for _, s := range sites {
		if !s.Center.Valid() {
			return faults.Config("sites", "hex %v has invalid center %v", s.Coord, s.Center)
		}
	}
	return nil
}

type state struct {
	sites  []Site
	g      *graph
	plane  geodesy.LocalPlane
	points [][]float64
	assign []int
	n      int
}

func newState(sites []Site, g *graph, n int) *state {
	lats := make([]float64, len(sites))
	lons := make([]float64, len(sites))
	ref := sites[0].Center.Lon
	for i, s := range sites {
		lats[i] = s.Center.Lat
		lons[i] = ref + geodesy.NormalizeLon(s.Center.Lon-ref)
	}
	origin := geodesy.GeoPoint{Lat: stat.Mean(lats, nil), Lon: geodesy.NormalizeLon(stat.Mean(lons, nil))}

	s := &state{sites: sites, g: g, plane: geodesy.NewLocalPlane(origin, geodesy.WGS84), n: n}
	s.points = make([][]float64, len(sites))
	for i, site := range sites {
		x, y := s.plane.ToXY(site.Center)
		s.points[i] = []float64{x, y}
	}
	return s
}

func (s *state) sizes() []int {
	out := make([]int, s.n)
	for _, a := range s.assign {
		out[a]++
	}
	return out
}

// repair dissolves every minority component into neighboring regions, one
// hex at a time, and returns the number of hexes moved. Components are
// handled by region id then lowest hex; each step moves the hex with the
// closest adjacent region centroid (ties: lowest region id, then hex).
func (s *state) repair() (int, error) {
	comps := s.g.components(s.assign, s.n)
	unsettled := make([]bool, len(s.assign))
	var queue [][]int
	for r := range comps {
		minority := comps[r][1:]
		sort.Slice(minority, func(a, b int) bool { return minority[a][0] < minority[b][0] })
		for _, c := range minority {
			queue = append(queue, c)
			for _, h := range c {
				unsettled[h] = true
			}
		}
	}
	if len(queue) == 0 {
		return 0, nil
	}

	// Centroids of the settled part of each region.
	cents := make([][]float64, s.n)
	for r := range cents {
		var xs, ys []float64
		for i, p := range s.points {
			if s.assign[i] == r && !unsettled[i] {
				xs = append(xs, p[0])
				ys = append(ys, p[1])
			}
		}
		cents[r] = []float64{stat.Mean(xs, nil), stat.Mean(ys, nil)}
	}

	moved := 0
	for len(queue) > 0 {
		comp := queue[0]
		queue = queue[1:]
		for len(comp) > 0 {
			pick, target, bestDist := -1, -1, math.Inf(1)
			for k, h := range comp {
				for _, v := range s.g.adj[h] {
					if unsettled[v] {
						continue
					}
					r := s.assign[v]
					d := floats.Distance(s.points[h], cents[r], 2)
					if d < bestDist || (d == bestDist && (r < target || (r == target && h < comp[pick]))) {
						pick, target, bestDist = k, r, d
					}
				}
			}
			if pick < 0 {
				// Surrounded by other unsettled hexes; retry after them.
				queue = append(queue, comp)
				break
			}
			h := comp[pick]
			s.assign[h] = target
			unsettled[h] = false
			comp = append(comp[:pick], comp[pick+1:]...)
			moved++
		}
	}

	for r, c := range s.g.components(s.assign, s.n) {
		if len(c) != 1 {
			return moved, fmt.Errorf("region: repair left region %d in %d pieces", r, len(c))
		}
	}
	return moved, nil
}

// rebalance moves boundary hexes from oversized toward undersized regions
// until every size is within [lo, hi], no legal move remains, or maxPasses
// moves have been made.
func (s *state) rebalance(lo, hi, maxPasses int, dist func(a, b geodesy.GeoPoint) float64) (int, bool) {
	passes := 0
	for passes < maxPasses {
		if within(s.sizes(), lo, hi) {
			return passes, true
		}
		if !s.transfer(lo, hi, dist) {
			break
		}
		passes++
	}
	return passes, within(s.sizes(), lo, hi)
}

// transfer shifts one hex's worth of area from a large region to a small
// one along the shortest chain of bordering regions. Each candidate pair is
// tried largest donor first, smallest receiver first.
func (s *state) transfer(lo, hi int, dist func(a, b geodesy.GeoPoint) float64) bool {
	sizes := s.sizes()
	order := make([]int, s.n)
	for i := range order {
		order[i] = i
	}
	donors := append([]int(nil), order...)
	sort.SliceStable(donors, func(a, b int) bool { return sizes[donors[a]] > sizes[donors[b]] })
	receivers := append([]int(nil), order...)
	sort.SliceStable(receivers, func(a, b int) bool { return sizes[receivers[a]] < sizes[receivers[b]] })

	adj := s.g.regionAdjacency(s.assign, s.n)
	cents := s.centroids()
	for _, d := range donors {
		for _, r := range receivers {
			if sizes[d]-sizes[r] < 2 {
				break
			}
			if sizes[d] <= hi && sizes[r] >= lo {
				continue
			}
			path := regionPath(adj, d, r)
			if path != nil && s.shift(path, cents, dist) {
				return true
			}
		}
	}
	return false
}

// shift moves one hex across every hop of path, starting at the receiving
// end. On failure every move of this shift is undone.
func (s *state) shift(path []int, cents []geodesy.GeoPoint, dist func(a, b geodesy.GeoPoint) float64) bool {
	type move struct{ hex, from int }
	var done []move
	for k := len(path) - 2; k >= 0; k-- {
		from, to := path[k], path[k+1]
		h := s.donorHex(from, to, cents[to], dist)
		if h < 0 {
			for i := len(done) - 1; i >= 0; i-- {
				s.assign[done[i].hex] = done[i].from
			}
			return false
		}
		s.assign[h] = to
		done = append(done, move{h, from})
	}
	return true
}

// donorHex picks the hex of from that borders to, can leave from without
// splitting it, and lies closest to to's centroid (ties: lowest index).
func (s *state) donorHex(from, to int, target geodesy.GeoPoint, dist func(a, b geodesy.GeoPoint) float64) int {
	best, bestDist := -1, math.Inf(1)
	for i, a := range s.assign {
		if a != from || !s.g.touches(s.assign, i, to) {
			continue
		}
		d := dist(s.sites[i].Center, target)
		if d >= bestDist {
			continue
		}
		if s.g.removable(s.assign, i) {
			best, bestDist = i, d
		}
	}
	return best
}

// centroids returns the geographic centroid of each region.
func (s *state) centroids() []geodesy.GeoPoint {
	out := make([]geodesy.GeoPoint, s.n)
	for r := range out {
		xs, ys := columns(s.points, s.assign, r)
		out[r] = s.plane.FromXY(stat.Mean(xs, nil), stat.Mean(ys, nil))
	}
	return out
}

func (s *state) partition(lo, hi int, met bool, passes int) *Partition {
	p := &Partition{
		Assign:       make(map[hexgrid.HexCoord]int, len(s.sites)),
		Regions:      make([]Region, s.n),
		Lower:        lo,
		Upper:        hi,
		ToleranceMet: met,
		Passes:       passes,
	}
	cents := s.centroids()
	for r := range p.Regions {
		p.Regions[r] = Region{ID: r, Centroid: cents[r]}
	}
	for i, site := range s.sites {
		r := s.assign[i]
		p.Assign[site.Coord] = r
		p.Regions[r].Hexes = append(p.Regions[r].Hexes, site.Coord)
	}
	return p
}

func within(sizes []int, lo, hi int) bool {
	for _, n := range sizes {
		if n < lo || n > hi {
			return false
		}
	}
	return true
}
