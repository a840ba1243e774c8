package graph

import (
	"math"

	"github.com/rhartert/sparsesets"
	"github.com/rhartert/yagh"
)

// AllPaths asks a search for every equal-cost path instead of a bounded number
const AllPaths = -1

// Result holds the outcome of a single-source shortest path search. For every
// vertex reached from the source it records the cost of the shortest paths and
// all the edges through which such a path enters the vertex.
type Result struct {
	g       *Graph
	src     int
	costs   []float64
	parents [][]int
}

// Search computes the shortest paths from src to every other vertex of g. A
// source that is not part of the graph yields an empty result.
func Search(g *Graph, src Vertex, w Weigher) *Result {
	i, ok := g.index[src]
	if !ok {
		return &Result{g: g, src: -1}
	}
	return search(g, i, w, nil, nil)
}

// SearchAll runs Search from every vertex of g
func SearchAll(g *Graph, w Weigher) map[Vertex]*Result {
	results := make(map[Vertex]*Result, len(g.vertices))
	for i, v := range g.vertices {
		results[v] = search(g, i, w, nil, nil)
	}
	return results
}

// search is Dijkstra's algorithm keeping every equal-cost predecessor edge.
// Edges and vertices in the exclusion sets are skipped; both sets may be nil.
func search(g *Graph, src int, w Weigher, skipEdges, skipVertices *sparsesets.Set) *Result {
	n := len(g.vertices)
	r := &Result{
		g:       g,
		src:     src,
		costs:   make([]float64, n),
		parents: make([][]int, n),
	}
	for i := range r.costs {
		r.costs[i] = math.Inf(1)
	}

	h := yagh.New[float64](n)
	h.Put(src, 0)
	r.costs[src] = 0

	for h.Size() > 0 {
		entry := h.Pop()
		u, c := entry.Elem, entry.Cost

		for _, e := range g.out[u] {
			v := g.to[e]
			if v == src || v == u {
				continue
			}
			if skipEdges != nil && skipEdges.Contains(e) {
				continue
			}
			if skipVertices != nil && skipVertices.Contains(v) {
				continue
			}

			weight := w(g.edges[e])
			if !Viable(weight) {
				continue
			}
			newCost := c + weight

			// Path src -> u -> v is worse than the best known path.
			if r.costs[v] < newCost {
				continue
			}

			// Path src -> u -> v is one of the best paths to v so far.
			if r.costs[v] == newCost {
				r.parents[v] = append(r.parents[v], e)
				continue
			}

			// Path src -> u -> v is better than the best path to v so far.
			r.costs[v] = newCost
			r.parents[v] = []int{e}
			h.Put(v, newCost)
		}
	}

	return r
}

// Source returns the vertex the search started from
func (r *Result) Source() Vertex {
	if r.src < 0 {
		return Vertex{}
	}
	return r.g.vertices[r.src]
}

// Cost returns the cost of the shortest paths to dst and whether dst was
// reached at all.
func (r *Result) Cost(dst Vertex) (float64, bool) {
	i, ok := r.g.index[dst]
	if !ok || r.src < 0 || math.IsInf(r.costs[i], 1) {
		return 0, false
	}
	return r.costs[i], true
}

// Parents returns, for every vertex reached through at least one edge, the
// edges that end a shortest path to it.
func (r *Result) Parents() map[Vertex][]Edge {
	parents := make(map[Vertex][]Edge)
	if r.src < 0 {
		return parents
	}
	for v, edges := range r.parents {
		if len(edges) == 0 {
			continue
		}
		list := make([]Edge, len(edges))
		for j, e := range edges {
			list[j] = r.g.edges[e]
		}
		parents[r.g.vertices[v]] = list
	}
	return parents
}

// Reached returns every vertex other than the source that the search reached
func (r *Result) Reached() []Vertex {
	var reached []Vertex
	if r.src < 0 {
		return reached
	}
	for v, edges := range r.parents {
		if len(edges) > 0 {
			reached = append(reached, r.g.vertices[v])
		}
	}
	return reached
}

// Paths enumerates the shortest paths from the source to dst, at most
// maxPaths of them unless maxPaths is AllPaths. The source itself and
// unreached vertices have no paths.
func (r *Result) Paths(dst Vertex, maxPaths int) []Path {
	d, ok := r.g.index[dst]
	if !ok {
		return nil
	}

	var paths []Path
	for _, edges := range r.edgePaths(d, maxPaths) {
		path := Path{Edges: make([]Edge, len(edges)), Cost: r.costs[d]}
		for i, e := range edges {
			path.Edges[i] = r.g.edges[e]
		}
		paths = append(paths, path)
	}
	return paths
}

// edgePaths enumerates shortest paths to d as edge index sequences
func (r *Result) edgePaths(d int, maxPaths int) [][]int {
	if r.src < 0 || d == r.src || len(r.parents[d]) == 0 || maxPaths == 0 {
		return nil
	}

	var (
		paths  [][]int
		stack  []int
		onPath = make([]bool, len(r.g.vertices))
	)

	// walk goes backwards from v to the source along parent edges. It
	// returns false once enough paths were collected.
	var walk func(v int) bool
	walk = func(v int) bool {
		if v == r.src {
			edges := make([]int, len(stack))
			for i := range stack {
				edges[i] = stack[len(stack)-1-i]
			}
			paths = append(paths, edges)
			return maxPaths < 0 || len(paths) < maxPaths
		}

		for _, e := range r.parents[v] {
			u := r.g.from[e]
			if onPath[u] {
				continue
			}
			onPath[u] = true
			stack = append(stack, e)
			more := walk(u)
			stack = stack[:len(stack)-1]
			onPath[u] = false
			if !more {
				return false
			}
		}
		return true
	}

	onPath[d] = true
	walk(d)
	return paths
}
