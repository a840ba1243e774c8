package graph

import (
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/rhartert/sparsesets"
)

// KShortestPaths returns the loop-free paths from src to dst in order of
// non-decreasing cost, computed lazily with Yen's algorithm. Each iteration
// over the returned sequence starts the search afresh; stopping early skips
// the remaining work. Unknown endpoints or src == dst yield no paths.
func KShortestPaths(g *Graph, src, dst Vertex, w Weigher) iter.Seq[Path] {
	return func(yield func(Path) bool) {
		s, ok := g.index[src]
		if !ok {
			return
		}
		d, ok := g.index[dst]
		if !ok || s == d {
			return
		}

		y := &yen{
			g:            g,
			w:            w,
			dst:          d,
			skipEdges:    sparsesets.New(len(g.edges)),
			skipVertices: sparsesets.New(len(g.vertices)),
			seen:         make(map[string]struct{}),
		}

		first, ok := y.shortest(s)
		if !ok {
			return
		}
		y.accept(first)
		if !yield(y.toPath(first)) {
			return
		}

		for {
			y.spurFrom(y.accepted[len(y.accepted)-1])
			if len(y.candidates) == 0 {
				return
			}
			next := y.candidates[0]
			y.candidates = y.candidates[1:]
			y.accept(next)
			if !yield(y.toPath(next)) {
				return
			}
		}
	}
}

// KShortestPathsN collects at most k paths of KShortestPaths
func KShortestPathsN(g *Graph, src, dst Vertex, w Weigher, k int) []Path {
	var paths []Path
	if k <= 0 {
		return paths
	}
	for p := range KShortestPaths(g, src, dst, w) {
		paths = append(paths, p)
		if len(paths) == k {
			break
		}
	}
	return paths
}

// candidate is a path expressed as edge indices
type candidate struct {
	edges []int
	cost  float64
}

type yen struct {
	g            *Graph
	w            Weigher
	dst          int
	skipEdges    *sparsesets.Set
	skipVertices *sparsesets.Set
	accepted     []candidate
	candidates   []candidate
	seen         map[string]struct{}
}

func (y *yen) shortest(from int) (candidate, bool) {
	return y.shortestAvoiding(from, nil, nil)
}

func (y *yen) shortestAvoiding(from int, skipEdges, skipVertices *sparsesets.Set) (candidate, bool) {
	r := search(y.g, from, y.w, skipEdges, skipVertices)
	paths := r.edgePaths(y.dst, 1)
	if len(paths) == 0 {
		return candidate{}, false
	}
	return candidate{edges: paths[0], cost: r.costs[y.dst]}, true
}

func (y *yen) accept(c candidate) {
	y.seen[key(c.edges)] = struct{}{}
	y.accepted = append(y.accepted, c)
}

// spurFrom adds to the candidate list every deviation of the last accepted
// path that is not already known.
func (y *yen) spurFrom(last candidate) {
	for i := range last.edges {
		root := last.edges[:i]
		spur := y.g.from[last.edges[i]]

		y.skipEdges.Clear()
		y.skipVertices.Clear()

		// Forbid the next edge of every accepted path sharing this root.
		for _, p := range y.accepted {
			if len(p.edges) > i && slices.Equal(p.edges[:i], root) {
				y.skipEdges.Insert(p.edges[i])
			}
		}
		// Forbid the root's vertices so the spur cannot loop back into it.
		for _, e := range root {
			y.skipVertices.Insert(y.g.from[e])
		}

		spurPath, ok := y.shortestAvoiding(spur, y.skipEdges, y.skipVertices)
		if !ok {
			continue
		}

		edges := make([]int, 0, len(root)+len(spurPath.edges))
		edges = append(edges, root...)
		edges = append(edges, spurPath.edges...)
		k := key(edges)
		if _, dup := y.seen[k]; dup {
			continue
		}
		y.seen[k] = struct{}{}

		var rootCost float64
		for _, e := range root {
			rootCost += y.w(y.g.edges[e])
		}
		y.insert(candidate{edges: edges, cost: rootCost + spurPath.cost})
	}
}

// insert keeps the candidates sorted by cost, then hop count
func (y *yen) insert(c candidate) {
	i, _ := slices.BinarySearchFunc(y.candidates, c, func(a, b candidate) int {
		switch {
		case a.cost < b.cost:
			return -1
		case a.cost > b.cost:
			return 1
		case len(a.edges) < len(b.edges):
			return -1
		case len(a.edges) > len(b.edges):
			return 1
		default:
			return 0
		}
	})
	y.candidates = slices.Insert(y.candidates, i, c)
}

func (y *yen) toPath(c candidate) Path {
	edges := make([]Edge, len(c.edges))
	for i, e := range c.edges {
		edges[i] = y.g.edges[e]
	}
	return Path{Edges: edges, Cost: c.cost}
}

func key(edges []int) string {
	var sb strings.Builder
	for i, e := range edges {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(e))
	}
	return sb.String()
}
