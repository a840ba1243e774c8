package graph

// SCCResult is the partition of a graph into strongly connected components,
// as seen through a weigher: only viable edges connect vertices.
type SCCResult struct {
	vertices [][]Vertex
	edges    [][]Edge
}

// ClusterCount returns the number of components
func (r *SCCResult) ClusterCount() int {
	return len(r.vertices)
}

// ClusterVertices returns the vertices of component i
func (r *SCCResult) ClusterVertices(i int) []Vertex {
	return r.vertices[i]
}

// ClusterEdges returns the viable edges joining two vertices of component i
func (r *SCCResult) ClusterEdges(i int) []Edge {
	return r.edges[i]
}

// Tarjan partitions g into strongly connected components using only the
// edges that w marks as viable. Components are numbered densely from zero in
// the order Tarjan's algorithm completes them. A vertex without viable
// edges forms a component on its own.
func Tarjan(g *Graph, w Weigher) *SCCResult {
	n := len(g.vertices)

	viable := make([]bool, len(g.edges))
	for e := range g.edges {
		viable[e] = g.from[e] != g.to[e] && Viable(w(g.edges[e]))
	}

	const unvisited = -1
	var (
		counter   int
		index     = make([]int, n)
		low       = make([]int, n)
		onStack   = make([]bool, n)
		component = make([]int, n)
		stack     []int
		result    = &SCCResult{}
	)
	for i := range index {
		index[i] = unvisited
	}

	// Each frame remembers how far the scan of the vertex's edges got, which
	// replaces the recursion of the textbook algorithm.
	type frame struct {
		v    int
		next int
	}

	visit := func(v int) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true
	}

	for root := 0; root < n; root++ {
		if index[root] != unvisited {
			continue
		}

		visit(root)
		calls := []frame{{v: root}}

		for len(calls) > 0 {
			top := len(calls) - 1
			v := calls[top].v

			if calls[top].next < len(g.out[v]) {
				e := g.out[v][calls[top].next]
				calls[top].next++
				if !viable[e] {
					continue
				}

				u := g.to[e]
				if index[u] == unvisited {
					visit(u)
					calls = append(calls, frame{v: u})
				} else if onStack[u] {
					low[v] = min(low[v], index[u])
				}
				continue
			}

			calls = calls[:top]
			if top > 0 {
				parent := calls[top-1].v
				low[parent] = min(low[parent], low[v])
			}

			if low[v] != index[v] {
				continue
			}

			id := len(result.vertices)
			var members []Vertex
			for {
				u := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[u] = false
				component[u] = id
				members = append(members, g.vertices[u])
				if u == v {
					break
				}
			}
			result.vertices = append(result.vertices, members)
		}
	}

	result.edges = make([][]Edge, len(result.vertices))
	for e := range g.edges {
		if !viable[e] {
			continue
		}
		c := component[g.from[e]]
		if c == component[g.to[e]] {
			result.edges[c] = append(result.edges[c], g.edges[e])
		}
	}

	return result
}
