// Package graph provides the directed graph used to compute topologies and
// the search algorithms that run over it: equal-cost shortest paths, strongly
// connected components, k shortest paths and disjoint path pairs.
package graph

import (
	"fmt"
	"sort"

	"github.com/norncorp/mimir/internal/model"
)

// Vertex is a device in the graph
type Vertex struct {
	ID model.DeviceID
}

// Edge is a directed link between two vertices
type Edge struct {
	Src  Vertex
	Dst  Vertex
	Link model.Link
}

// NewEdge creates the edge backing a link
func NewEdge(link model.Link) Edge {
	return Edge{
		Src:  Vertex{ID: link.Src.Device},
		Dst:  Vertex{ID: link.Dst.Device},
		Link: link,
	}
}

// Weigher assigns a cost to an edge. A negative cost marks the edge as not
// viable: searches behave as if it did not exist.
type Weigher func(Edge) float64

// Viable reports whether a weight allows traversal
func Viable(weight float64) bool {
	return weight >= 0
}

// UnitWeigher gives every edge a cost of one
func UnitWeigher(Edge) float64 {
	return 1
}

// Graph is an immutable directed graph. Vertices are kept sorted by device
// identifier so that every search over the same input visits them in the
// same order.
type Graph struct {
	vertices []Vertex
	index    map[Vertex]int
	edges    []Edge
	from     []int
	to       []int
	out      [][]int
}

// New builds a graph from its vertices and edges. Every edge endpoint must be
// one of the vertices; New panics otherwise. Edges are ordered by their link
// ends and duplicate links are dropped.
func New(vertices []Vertex, edges []Edge) *Graph {
	g := &Graph{
		index: make(map[Vertex]int, len(vertices)),
	}

	sorted := make([]Vertex, 0, len(vertices))
	for _, v := range vertices {
		if _, ok := g.index[v]; ok {
			continue
		}
		g.index[v] = -1
		sorted = append(sorted, v)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for i, v := range sorted {
		g.index[v] = i
	}
	g.vertices = sorted

	g.edges = make([]Edge, 0, len(edges))
	g.from = make([]int, 0, len(edges))
	g.to = make([]int, 0, len(edges))
	g.out = make([][]int, len(sorted))
	ordered := make([]Edge, len(edges))
	copy(ordered, edges)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Link, ordered[j].Link
		if a.Src != b.Src {
			return a.Src.Less(b.Src)
		}
		return a.Dst.Less(b.Dst)
	})

	seen := make(map[model.LinkKey]struct{}, len(edges))
	for _, e := range ordered {
		key := e.Link.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		src, ok := g.index[e.Src]
		if !ok {
			panic(fmt.Sprintf("edge %s references unknown source vertex %s", key, e.Src.ID))
		}
		dst, ok := g.index[e.Dst]
		if !ok {
			panic(fmt.Sprintf("edge %s references unknown destination vertex %s", key, e.Dst.ID))
		}

		g.out[src] = append(g.out[src], len(g.edges))
		g.edges = append(g.edges, e)
		g.from = append(g.from, src)
		g.to = append(g.to, dst)
	}

	return g
}

// Vertices returns the vertices of the graph, sorted by identifier
func (g *Graph) Vertices() []Vertex {
	result := make([]Vertex, len(g.vertices))
	copy(result, g.vertices)
	return result
}

// Edges returns the edges of the graph
func (g *Graph) Edges() []Edge {
	result := make([]Edge, len(g.edges))
	copy(result, g.edges)
	return result
}

// VertexCount returns the number of vertices
func (g *Graph) VertexCount() int {
	return len(g.vertices)
}

// EdgeCount returns the number of edges
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Contains reports whether the vertex is part of the graph
func (g *Graph) Contains(v Vertex) bool {
	_, ok := g.index[v]
	return ok
}

// EdgesFrom returns the edges leaving the vertex
func (g *Graph) EdgesFrom(v Vertex) []Edge {
	i, ok := g.index[v]
	if !ok {
		return nil
	}
	result := make([]Edge, len(g.out[i]))
	for j, e := range g.out[i] {
		result[j] = g.edges[e]
	}
	return result
}

// Path is a sequence of edges found by a search, with its total cost
type Path struct {
	Edges []Edge
	Cost  float64
}

// Src returns the first vertex of the path
func (p Path) Src() Vertex {
	if len(p.Edges) == 0 {
		return Vertex{}
	}
	return p.Edges[0].Src
}

// Dst returns the last vertex of the path
func (p Path) Dst() Vertex {
	if len(p.Edges) == 0 {
		return Vertex{}
	}
	return p.Edges[len(p.Edges)-1].Dst
}

// Links returns the links along the path
func (p Path) Links() []model.Link {
	links := make([]model.Link, len(p.Edges))
	for i, e := range p.Edges {
		links[i] = e.Link
	}
	return links
}

func pathCost(edges []Edge, w Weigher) float64 {
	var cost float64
	for _, e := range edges {
		cost += w(e)
	}
	return cost
}
