package topology

import (
	"fmt"

	"github.com/norncorp/mimir/internal/graph"
	"github.com/norncorp/mimir/internal/model"
)

// ClusterID identifies a cluster within one topology. IDs are dense and
// start at zero; they are only meaningful for the topology that issued them.
type ClusterID int

// Cluster is a maximal set of devices that reach each other over active
// direct links.
type Cluster struct {
	ID          ClusterID
	DeviceCount int
	LinkCount   int
	Root        model.DeviceID
}

// String returns a string representation of the cluster
func (c Cluster) String() string {
	return fmt.Sprintf("cluster %d (root %s, %d devices, %d links)",
		c.ID, c.Root, c.DeviceCount, c.LinkCount)
}

// findRoot returns the vertex with the lexicographically smallest device
// identifier.
func findRoot(vertices []graph.Vertex) graph.Vertex {
	var root graph.Vertex
	for i, v := range vertices {
		if i == 0 || v.ID < root.ID {
			root = v
		}
	}
	return root
}
