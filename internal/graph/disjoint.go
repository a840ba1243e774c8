package graph

import (
	"math"

	"github.com/norncorp/mimir/internal/model"
)

// DisjointPair is a primary path and a backup path between the same
// vertices that share no edge.
type DisjointPair struct {
	Primary Path
	Backup  Path
}

// Cost returns the combined cost of both paths
func (p DisjointPair) Cost() float64 {
	return p.Primary.Cost + p.Backup.Cost
}

// DisjointPaths finds the pair of edge-disjoint paths from src to dst with
// the smallest combined cost (Suurballe's problem), solved as a two-unit
// minimum cost flow with successive shortest paths. It reports false when no
// such pair exists.
func DisjointPaths(g *Graph, src, dst Vertex, w Weigher) (DisjointPair, bool) {
	s, ok := g.index[src]
	if !ok {
		return DisjointPair{}, false
	}
	d, ok := g.index[dst]
	if !ok || s == d {
		return DisjointPair{}, false
	}

	weights := make([]float64, len(g.edges))
	for e := range g.edges {
		weights[e] = -1
		if g.from[e] != g.to[e] {
			weights[e] = w(g.edges[e])
		}
	}

	flow := make([]bool, len(g.edges))
	for unit := 0; unit < 2; unit++ {
		if !augment(g, s, d, weights, flow) {
			return DisjointPair{}, false
		}
	}

	first := extractPath(g, s, d, weights, flow)
	second := extractPath(g, s, d, weights, flow)
	if first == nil || second == nil {
		return DisjointPair{}, false
	}

	p1 := Path{Edges: first, Cost: pathCost(first, w)}
	p2 := Path{Edges: second, Cost: pathCost(second, w)}
	if p2.Cost < p1.Cost || (p2.Cost == p1.Cost && len(p2.Edges) < len(p1.Edges)) {
		p1, p2 = p2, p1
	}
	return DisjointPair{Primary: p1, Backup: p2}, true
}

// augment pushes one unit of flow along the cheapest residual path using
// Bellman-Ford, since cancelled edges carry negative residual costs.
func augment(g *Graph, s, d int, weights []float64, flow []bool) bool {
	n := len(g.vertices)
	dist := make([]float64, n)
	via := make([]int, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		via[i] = -1
	}
	dist[s] = 0

	for round := 0; round < n-1; round++ {
		changed := false
		for e := range g.edges {
			if !Viable(weights[e]) {
				continue
			}
			u, v, c := g.from[e], g.to[e], weights[e]
			if flow[e] {
				u, v, c = v, u, -c
			}
			if math.IsInf(dist[u], 1) || dist[u]+c >= dist[v] {
				continue
			}
			dist[v] = dist[u] + c
			via[v] = e
			changed = true
		}
		if !changed {
			break
		}
	}

	if math.IsInf(dist[d], 1) {
		return false
	}

	for v, steps := d, 0; v != s; steps++ {
		if steps > n {
			return false
		}
		e := via[v]
		if flow[e] {
			v = g.to[e]
		} else {
			v = g.from[e]
		}
		flow[e] = !flow[e]
	}
	return true
}

// extractPath follows edges carrying flow from s to d, consuming them, and
// cuts out any cycle it walks through.
func extractPath(g *Graph, s, d int, weights []float64, flow []bool) []Edge {
	var (
		edges []int
		at    = map[int]int{s: 0}
	)
	for v := s; v != d; {
		next := -1
		for _, e := range g.out[v] {
			if flow[e] && Viable(weights[e]) {
				next = e
				break
			}
		}
		if next < 0 {
			return nil
		}
		flow[next] = false
		edges = append(edges, next)
		v = g.to[next]

		if pos, loop := at[v]; loop {
			for _, e := range edges[pos:] {
				delete(at, g.to[e])
			}
			edges = edges[:pos]
		}
		at[v] = len(edges)
	}

	path := make([]Edge, len(edges))
	for i, e := range edges {
		path[i] = g.edges[e]
	}
	return path
}

// DefaultRiskCandidates bounds how many shortest paths a risk-aware disjoint
// search examines.
const DefaultRiskCandidates = 64

// RiskDisjointPaths finds the cheapest pair of paths from src to dst sharing
// neither a link nor a shared risk group. Risk groups come from the profile;
// links missing from it carry no risk. The pair is chosen among the first
// maxCandidates shortest paths.
func RiskDisjointPaths(g *Graph, src, dst Vertex, w Weigher,
	profile map[model.LinkKey]string, maxCandidates int) (DisjointPair, bool) {
	if maxCandidates <= 0 {
		maxCandidates = DefaultRiskCandidates
	}

	var (
		seen  []Path
		risks []map[string]struct{}
		best  DisjointPair
		found bool
	)

	for p := range KShortestPaths(g, src, dst, w) {
		// Paths come in non-decreasing cost order: once the cheapest path
		// plus this one cannot beat the best pair, nothing later can.
		if found && len(seen) > 0 && seen[0].Cost+p.Cost >= best.Cost() {
			break
		}

		groups := riskGroups(p, profile)
		for i, q := range seen {
			if !disjoint(q, p, risks[i], groups) {
				continue
			}
			pair := DisjointPair{Primary: q, Backup: p}
			if !found || pair.Cost() < best.Cost() {
				best, found = pair, true
			}
		}

		seen = append(seen, p)
		risks = append(risks, groups)
		if len(seen) == maxCandidates {
			break
		}
	}

	return best, found
}

func riskGroups(p Path, profile map[model.LinkKey]string) map[string]struct{} {
	groups := make(map[string]struct{})
	for _, e := range p.Edges {
		if g, ok := profile[e.Link.Key()]; ok {
			groups[g] = struct{}{}
		}
	}
	return groups
}

func disjoint(a, b Path, ra, rb map[string]struct{}) bool {
	links := make(map[model.LinkKey]struct{}, len(a.Edges))
	for _, e := range a.Edges {
		links[e.Link.Key()] = struct{}{}
	}
	for _, e := range b.Edges {
		if _, shared := links[e.Link.Key()]; shared {
			return false
		}
	}
	for g := range rb {
		if _, shared := ra[g]; shared {
			return false
		}
	}
	return true
}
