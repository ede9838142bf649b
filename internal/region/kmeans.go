package region

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Cluster runs Lloyd's k-means over 2-D points and returns a cluster id per
// point and the final centroids. Seeding is deterministic farthest-point:
// the point nearest the mean first, then repeatedly the point farthest from
// every chosen seed. An emptied cluster is re-seeded with the member of the
// largest cluster farthest from its centroid. Every returned cluster is
// non-empty. Requires 0 < k <= len(points).
func Cluster(points [][]float64, k, maxIterations int) ([]int, [][]float64) {
	if maxIterations < 1 {
		maxIterations = 1
	}
	centroids := seed(points, k)
	assign := make([]int, len(points))
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, p := range points {
			if c := nearest(p, centroids); c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if fillEmpty(points, assign, centroids) {
			changed = true
		}
		if !changed {
			break
		}
		centroids = means(points, assign, k)
	}
	fillEmpty(points, assign, centroids)
	return assign, means(points, assign, k)
}

func seed(points [][]float64, k int) [][]float64 {
	xs, ys := columns(points, nil, -1)
	mean := []float64{stat.Mean(xs, nil), stat.Mean(ys, nil)}

	chosen := make([]bool, len(points))
	first := 0
	for i, p := range points {
		if floats.Distance(p, mean, 2) < floats.Distance(points[first], mean, 2) {
			first = i
		}
	}
	chosen[first] = true
	centroids := [][]float64{clone(points[first])}

	minDist := make([]float64, len(points))
	for i, p := range points {
		minDist[i] = floats.Distance(p, points[first], 2)
	}
	for len(centroids) < k {
		next := -1
		for i := range points {
			if chosen[i] {
				continue
			}
			if next < 0 || minDist[i] > minDist[next] {
				next = i
			}
		}
		chosen[next] = true
		centroids = append(centroids, clone(points[next]))
		for i, p := range points {
			minDist[i] = math.Min(minDist[i], floats.Distance(p, points[next], 2))
		}
	}
	return centroids
}

// nearest returns the index of the closest centroid, lowest index on ties.
func nearest(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, cen := range centroids {
		if d := floats.Distance(p, cen, 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// fillEmpty moves one point into each empty cluster and reports whether it
// changed anything.
func fillEmpty(points [][]float64, assign []int, centroids [][]float64) bool {
	k := len(centroids)
	changed := false
	for {
		sizes := make([]int, k)
		for _, a := range assign {
			sizes[a]++
		}
		empty, largest := -1, 0
		for c := range sizes {
			if sizes[c] == 0 && empty < 0 {
				empty = c
			}
			if sizes[c] > sizes[largest] {
				largest = c
			}
		}
		if empty < 0 {
			return changed
		}
		cen := means(points, assign, k)[largest]
		far, farDist := -1, -1.0
		for i, p := range points {
			if assign[i] != largest {
				continue
			}
			if d := floats.Distance(p, cen, 2); d > farDist {
				far, farDist = i, d
			}
		}
		assign[far] = empty
		centroids[empty] = clone(points[far])
		changed = true
	}
}

// means returns the centroid of each cluster; an empty cluster gets NaNs.
func means(points [][]float64, assign []int, k int) [][]float64 {
	out := make([][]float64, k)
	for c := range out {
		xs, ys := columns(points, assign, c)
		if len(xs) == 0 {
			out[c] = []float64{math.NaN(), math.NaN()}
			continue
		}
		out[c] = []float64{stat.Mean(xs, nil), stat.Mean(ys, nil)}
	}
	return out
}

// columns splits the points of cluster c (all points when assign is nil)
// into x and y slices.
func columns(points [][]float64, assign []int, c int) (xs, ys []float64) {
	for i, p := range points {
		if assign != nil && assign[i] != c {
			continue
		}
		xs = append(xs, p[0])
		ys = append(ys, p[1])
	}
	return xs, ys
}

func clone(p []float64) []float64 {
	return append([]float64(nil), p...)
}
