package service

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/norncorp/mimir/internal/graph"
	"github.com/norncorp/mimir/internal/model"
	"github.com/norncorp/mimir/internal/topology"
)

// ErrClusterNotFound is returned for a cluster ID the topology does not have
var ErrClusterNotFound = errors.New("cluster not found")

// CurrentTopology returns the latest published topology
func (m *Manager) CurrentTopology() *topology.Topology {
	return m.current.Load()
}

// IsLatest reports whether topo is the current topology
func (m *Manager) IsLatest(topo *topology.Topology) (bool, error) {
	if topo == nil {
		return false, ErrNilTopology
	}
	return m.current.Load() == topo, nil
}

// GetGraph returns the graph of topo
func (m *Manager) GetGraph(topo *topology.Topology) (*graph.Graph, error) {
	if topo == nil {
		return nil, ErrNilTopology
	}
	return topo.Graph(), nil
}

// GetPaths returns the equal-cost shortest paths from src to dst. Without a
// weigher the precomputed hop-count paths are returned, unless a default
// weigher has been set.
func (m *Manager) GetPaths(topo *topology.Topology, src, dst model.DeviceID,
	w topology.LinkWeigher) ([]model.Path, error) {
	if err := checkPair(topo, src, dst); err != nil {
		return nil, err
	}
	if w == nil {
		w = m.defaultWeigher()
	}
	return topo.PathsWith(src, dst, w), nil
}

// GetKShortestPaths returns a lazy sequence of the paths from src to dst in
// order of non-decreasing cost. The sequence is computed on demand each time
// it is ranged over.
func (m *Manager) GetKShortestPaths(topo *topology.Topology, src, dst model.DeviceID,
	w topology.LinkWeigher) (iter.Seq[model.Path], error) {
	if err := checkPair(topo, src, dst); err != nil {
		return nil, err
	}
	if w == nil {
		w = m.defaultWeigher()
	}
	return topo.KShortestPaths(src, dst, w), nil
}

// GetKShortestPathsN returns at most k paths from src to dst in order of
// non-decreasing cost
func (m *Manager) GetKShortestPathsN(topo *topology.Topology, src, dst model.DeviceID, k int,
	w topology.LinkWeigher) ([]model.Path, error) {
	if k < 0 {
		return nil, fmt.Errorf("invalid path count %d", k)
	}
	paths, err := m.GetKShortestPaths(topo, src, dst, w)
	if err != nil {
		return nil, err
	}

	result := []model.Path{}
	if k == 0 {
		return result, nil
	}
	for p := range paths {
		result = append(result, p)
		if len(result) == k {
			break
		}
	}
	return result, nil
}

// GetDisjointPaths returns the cheapest pair of link-disjoint paths from src
// to dst. With a risk profile the paths also share no risk group. The result
// is empty when no such pair exists.
func (m *Manager) GetDisjointPaths(topo *topology.Topology, src, dst model.DeviceID,
	w topology.LinkWeigher, profile map[model.LinkKey]string) ([]model.DisjointPath, error) {
	if err := checkPair(topo, src, dst); err != nil {
		return nil, err
	}

	if len(profile) > 0 {
		if w == nil {
			w = m.defaultWeigher()
		}
		return topo.RiskDisjointPaths(src, dst, w, profile), nil
	}
	if w != nil {
		return topo.DisjointPaths(src, dst, w), nil
	}

	dw, gen := m.defaultWeigherGen()
	key := cacheKey{topo: topo, weigherGen: gen, src: src, dst: dst}
	if paths, ok := m.cache.Get(key); ok {
		return slices.Clone(paths), nil
	}
	paths := topo.DisjointPaths(src, dst, dw)
	m.cache.Add(key, paths)
	return slices.Clone(paths), nil
}

// GetClusters returns all clusters of topo
func (m *Manager) GetClusters(topo *topology.Topology) ([]topology.Cluster, error) {
	if topo == nil {
		return nil, ErrNilTopology
	}
	return topo.Clusters(), nil
}

// GetCluster returns a cluster by ID
func (m *Manager) GetCluster(topo *topology.Topology, id topology.ClusterID) (topology.Cluster, error) {
	if topo == nil {
		return topology.Cluster{}, ErrNilTopology
	}
	c, ok := topo.Cluster(id)
	if !ok {
		return topology.Cluster{}, fmt.Errorf("%w: %d", ErrClusterNotFound, id)
	}
	return c, nil
}

// GetClusterOf returns the cluster a device belongs to
func (m *Manager) GetClusterOf(topo *topology.Topology, device model.DeviceID) (topology.Cluster, error) {
	if err := checkDevice(topo, device); err != nil {
		return topology.Cluster{}, err
	}
	c, ok := topo.ClusterOf(device)
	if !ok {
		return topology.Cluster{}, fmt.Errorf("%w %s", topology.ErrNoCluster, device)
	}
	return c, nil
}

// GetClusterDevices returns the devices of a cluster
func (m *Manager) GetClusterDevices(topo *topology.Topology, id topology.ClusterID) ([]model.DeviceID, error) {
	if _, err := m.GetCluster(topo, id); err != nil {
		return nil, err
	}
	return topo.ClusterDevices(id), nil
}

// GetClusterLinks returns the links inside a cluster
func (m *Manager) GetClusterLinks(topo *topology.Topology, id topology.ClusterID) ([]model.Link, error) {
	if _, err := m.GetCluster(topo, id); err != nil {
		return nil, err
	}
	return topo.ClusterLinks(id), nil
}

// IsInfrastructure reports whether the connect point terminates a link
func (m *Manager) IsInfrastructure(topo *topology.Topology, cp model.ConnectPoint) (bool, error) {
	if err := checkDevice(topo, cp.Device); err != nil {
		return false, err
	}
	return topo.IsInfrastructure(cp), nil
}

// IsBroadcastPoint reports whether the connect point may flood broadcast
// traffic
func (m *Manager) IsBroadcastPoint(topo *topology.Topology, cp model.ConnectPoint) (bool, error) {
	if err := checkDevice(topo, cp.Device); err != nil {
		return false, err
	}
	return topo.IsBroadcastPoint(cp)
}

// BroadcastPoints returns the broadcast set of a cluster, sorted
func (m *Manager) BroadcastPoints(topo *topology.Topology, id topology.ClusterID) ([]model.ConnectPoint, error) {
	if _, err := m.GetCluster(topo, id); err != nil {
		return nil, err
	}
	points := topo.BroadcastPoints(id)
	slices.SortFunc(points, func(a, b model.ConnectPoint) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return points, nil
}

func checkDevice(topo *topology.Topology, device model.DeviceID) error {
	if topo == nil {
		return ErrNilTopology
	}
	if device == "" {
		return ErrInvalidDevice
	}
	return nil
}

func checkPair(topo *topology.Topology, src, dst model.DeviceID) error {
	if err := checkDevice(topo, src); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := checkDevice(topo, dst); err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	return nil
}
