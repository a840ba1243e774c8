package topology

import (
	"github.com/norncorp/mimir/internal/graph"
	"github.com/norncorp/mimir/internal/model"
)

const (
	// hopWeight is the cost of traversing an active direct link
	hopWeight = 1

	// nonViable marks a link that searches must not traverse
	nonViable = -1
)

// LinkWeigher assigns a traversal cost to a link. A negative cost excludes
// the link from the search.
type LinkWeigher func(model.Link) float64

// HopCountWeigher counts hops. Indirect links cost indirectCost, which is
// normally the number of devices in the topology so that any direct route is
// preferred; inactive links are not viable.
func HopCountWeigher(indirectCost float64) LinkWeigher {
	return func(l model.Link) float64 {
		if l.State == model.LinkInactive {
			return nonViable
		}
		if l.Type == model.LinkIndirect {
			return indirectCost
		}
		return hopWeight
	}
}

// NoIndirectWeigher only lets active, non-indirect links through. It is the
// view of the graph used to find clusters.
func NoIndirectWeigher(l model.Link) float64 {
	if l.State == model.LinkInactive || l.Type == model.LinkIndirect {
		return nonViable
	}
	return hopWeight
}

// adapt turns a link weigher into a graph edge weigher
func adapt(w LinkWeigher) graph.Weigher {
	return func(e graph.Edge) float64 {
		return w(e.Link)
	}
}
