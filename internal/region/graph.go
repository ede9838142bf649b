package region

import (
	"sort"

	"github.com/talgya/hexatlas/internal/faults"
	"github.com/talgya/hexatlas/internal/hexgrid"
)

// graph is the adjacency structure over site indices.
type graph struct {
	adj [][]int
}

func newGraph(sites []Site) (*graph, error) {
	index := make(map[hexgrid.HexCoord]int, len(sites))
	for i, s := range sites {
		if _, dup := index[s.Coord]; dup {
			return nil, faults.Config("sites", "duplicate hex %v", s.Coord)
		}
		index[s.Coord] = i
	}
	g := &graph{adj: make([][]int, len(sites))}
	for i, s := range sites {
		for _, n := range s.Coord.Neighbors() {
			if j, ok := index[n]; ok {
				g.adj[i] = append(g.adj[i], j)
			}
		}
		sort.Ints(g.adj[i])
	}
	return g, nil
}

func (g *graph) len() int {
	return len(g.adj)
}

// bfs collects the nodes reachable from start through nodes accepted by in.
func (g *graph) bfs(start int, in func(int) bool, seen []bool) []int {
	queue := []int{start}
	seen[start] = true
	for qi := 0; qi < len(queue); qi++ {
		u := queue[qi]
		for _, v := range g.adj[u] {
			if !seen[v] && in(v) {
				seen[v] = true
				queue = append(queue, v)
			}
		}
	}
	return queue
}

// connected reports whether the whole graph is one component.
func (g *graph) connected() bool {
	if g.len() == 0 {
		return false
	}
	seen := make([]bool, g.len())
	return len(g.bfs(0, func(int) bool { return true }, seen)) == g.len()
}

// components returns the connected components of each region. Each
// component is sorted ascending; a region's components are ordered largest
// first, ties by lowest member.
func (g *graph) components(assign []int, n int) [][][]int {
	out := make([][][]int, n)
	seen := make([]bool, g.len())
	for i := range assign {
		if seen[i] {
			continue
		}
		r := assign[i]
		comp := g.bfs(i, func(v int) bool { return assign[v] == r }, seen)
		sort.Ints(comp)
		out[r] = append(out[r], comp)
	}
	for r := range out {
		sort.SliceStable(out[r], func(a, b int) bool {
			return len(out[r][a]) > len(out[r][b])
		})
	}
	return out
}

// removable reports whether taking node out of its region leaves the rest
// of that region connected and non-empty.
func (g *graph) removable(assign []int, node int) bool {
	r := assign[node]
	start, size := -1, 0
	for i, a := range assign {
		if a == r && i != node {
			if start < 0 {
				start = i
			}
			size++
		}
	}
	if size == 0 {
		return false
	}
	seen := make([]bool, g.len())
	seen[node] = true
	reached := g.bfs(start, func(v int) bool { return assign[v] == r }, seen)
	return len(reached) == size
}

// touches reports whether node has a neighbor in region r.
func (g *graph) touches(assign []int, node, r int) bool {
	for _, v := range g.adj[node] {
		if assign[v] == r {
			return true
		}
	}
	return false
}

// regionAdjacency lists, for each region, the regions it borders (ascending).
func (g *graph) regionAdjacency(assign []int, n int) [][]int {
	seen := make([]map[int]bool, n)
	for r := range seen {
		seen[r] = make(map[int]bool)
	}
	for u, nbrs := range g.adj {
		for _, v := range nbrs {
			if assign[u] != assign[v] {
				seen[assign[u]][assign[v]] = true
			}
		}
	}
	out := make([][]int, n)
	for r, set := range seen {
		for o := range set {
			out[r] = append(out[r], o)
		}
		sort.Ints(out[r])
	}
	return out
}

// regionPath is the shortest chain of bordering regions from src to dst,
// preferring lower ids at each hop. Nil when dst is unreachable.
func regionPath(adj [][]int, src, dst int) []int {
	prev := make([]int, len(adj))
	for i := range prev {
		prev[i] = -1
	}
	prev[src] = src
	queue := []int{src}
	for qi := 0; qi < len(queue); qi++ {
		u := queue[qi]
		if u == dst {
			break
		}
		for _, v := range adj[u] {
			if prev[v] < 0 {
				prev[v] = u
				queue = append(queue, v)
			}
		}
	}
	if prev[dst] < 0 {
		return nil
	}
	var path []int
	for at := dst; at != src; at = prev[at] {
		path = append(path, at)
	}
	path = append(path, src)
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
