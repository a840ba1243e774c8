// Package topology computes immutable network topology snapshots: the graph
// of devices and links, the shortest paths between every pair of devices, the
// clusters of devices joined by active direct links and the connect points
// allowed to flood broadcast traffic.
package topology

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/norncorp/mimir/internal/graph"
	"github.com/norncorp/mimir/internal/model"
)

// ErrNoCluster is returned when a device that should belong to a cluster
// does not, which means the topology is inconsistent.
var ErrNoCluster = errors.New("no cluster found for device")

type devicePair struct {
	src model.DeviceID
	dst model.DeviceID
}

// Topology is an immutable snapshot of the network. Everything it exposes is
// computed by New; it is safe for concurrent use.
type Topology struct {
	time         time.Time
	creationTime time.Time
	computeCost  time.Duration

	graph    *graph.Graph
	hopCount LinkWeigher
	results  map[graph.Vertex]*graph.Result
	paths    map[devicePair][]model.Path

	clusters         []Cluster
	clusterOf        map[model.DeviceID]ClusterID
	devicesByCluster [][]model.DeviceID
	linksByCluster   [][]model.Link

	infrastructure map[model.ConnectPoint]struct{}
	broadcastSets  []map[model.ConnectPoint]struct{}
	broadcastFunc  func(model.ConnectPoint) bool
}

// Option configures a Topology
type Option func(*Topology)

// WithBroadcastFunc replaces the broadcast point rules with fn
func WithBroadcastFunc(fn func(model.ConnectPoint) bool) Option {
	return func(t *Topology) {
		t.broadcastFunc = fn
	}
}

// New computes a topology from a description. The steps run in a fixed
// order because each one feeds the next.
func New(desc Description, opts ...Option) *Topology {
	start := time.Now()
	t := &Topology{
		time:         desc.Time,
		creationTime: start,
	}
	for _, opt := range opts {
		opt(t)
	}

	t.graph = buildGraph(desc)
	t.hopCount = HopCountWeigher(float64(t.graph.VertexCount()))

	t.results = graph.SearchAll(t.graph, adapt(t.hopCount))
	t.buildPathIndex()

	scc := graph.Tarjan(t.graph, adapt(NoIndirectWeigher))
	t.buildClusters(scc)
	t.buildBroadcastSets()
	t.buildInfrastructure()

	t.computeCost = time.Since(start)
	return t
}

func buildGraph(desc Description) *graph.Graph {
	vertices := make([]graph.Vertex, len(desc.Devices))
	for i, d := range desc.Devices {
		vertices[i] = graph.Vertex{ID: d}
	}
	edges := make([]graph.Edge, len(desc.Links))
	for i, l := range desc.Links {
		edges[i] = graph.NewEdge(l)
	}
	return graph.New(vertices, edges)
}

// buildPathIndex materializes every equal-cost shortest path between every
// pair of devices.
func (t *Topology) buildPathIndex() {
	t.paths = make(map[devicePair][]model.Path)
	for src, result := range t.results {
		for _, dst := range result.Reached() {
			paths := networkPaths(result.Paths(dst, graph.AllPaths))
			t.paths[devicePair{src: src.ID, dst: dst.ID}] = paths
		}
	}
}

func (t *Topology) buildClusters(scc *graph.SCCResult) {
	n := scc.ClusterCount()
	t.clusters = make([]Cluster, n)
	t.clusterOf = make(map[model.DeviceID]ClusterID, t.graph.VertexCount())
	t.devicesByCluster = make([][]model.DeviceID, n)
	t.linksByCluster = make([][]model.Link, n)

	for i := 0; i < n; i++ {
		id := ClusterID(i)
		vertices := scc.ClusterVertices(i)
		edges := scc.ClusterEdges(i)

		t.clusters[i] = Cluster{
			ID:          id,
			DeviceCount: len(vertices),
			LinkCount:   len(edges),
			Root:        findRoot(vertices).ID,
		}

		for _, v := range vertices {
			t.clusterOf[v.ID] = id
			t.devicesByCluster[i] = append(t.devicesByCluster[i], v.ID)
		}
		for _, e := range edges {
			t.linksByCluster[i] = append(t.linksByCluster[i], e.Link)
		}
	}
}

// buildBroadcastSets collects, for each cluster, the ends of the links that
// lie on the shortest path tree rooted at the cluster root. Parent links
// leading outside the cluster are ignored; where several parent links tie,
// the one with the smallest ends is used.
func (t *Topology) buildBroadcastSets() {
	t.broadcastSets = make([]map[model.ConnectPoint]struct{}, len(t.clusters))
	for i, c := range t.clusters {
		points := make(map[model.ConnectPoint]struct{})
		result := t.results[graph.Vertex{ID: c.Root}]

		for v, parents := range result.Parents() {
			if id, ok := t.clusterOf[v.ID]; !ok || id != c.ID {
				continue
			}
			if len(parents) == 0 {
				continue
			}

			link := parents[0].Link
			for _, e := range parents[1:] {
				if lessLink(e.Link, link) {
					link = e.Link
				}
			}
			points[link.Src] = struct{}{}
			points[link.Dst] = struct{}{}
		}
		t.broadcastSets[i] = points
	}
}

func lessLink(a, b model.Link) bool {
	if a.Src != b.Src {
		return a.Src.Less(b.Src)
	}
	return a.Dst.Less(b.Dst)
}

func (t *Topology) buildInfrastructure() {
	t.infrastructure = make(map[model.ConnectPoint]struct{})
	for _, e := range t.graph.Edges() {
		t.infrastructure[e.Link.Src] = struct{}{}
		t.infrastructure[e.Link.Dst] = struct{}{}
	}
}

// Time returns the timestamp of the description the topology was built from
func (t *Topology) Time() time.Time {
	return t.time
}

// CreationTime returns when the computation started
func (t *Topology) CreationTime() time.Time {
	return t.creationTime
}

// ComputeCost returns how long the computation took
func (t *Topology) ComputeCost() time.Duration {
	return t.computeCost
}

// Graph returns the topology graph
func (t *Topology) Graph() *graph.Graph {
	return t.graph
}

// DeviceCount returns the number of devices
func (t *Topology) DeviceCount() int {
	return t.graph.VertexCount()
}

// LinkCount returns the number of links
func (t *Topology) LinkCount() int {
	return t.graph.EdgeCount()
}

// ClusterCount returns the number of clusters
func (t *Topology) ClusterCount() int {
	return len(t.clusters)
}

// SearchResult returns the hop-count shortest path search rooted at the
// device, or nil if the device is not part of the topology.
func (t *Topology) SearchResult(src model.DeviceID) *graph.Result {
	return t.results[graph.Vertex{ID: src}]
}

// Clusters returns all clusters, ordered by ID
func (t *Topology) Clusters() []Cluster {
	result := make([]Cluster, len(t.clusters))
	copy(result, t.clusters)
	return result
}

// Cluster returns the cluster with the given ID
func (t *Topology) Cluster(id ClusterID) (Cluster, bool) {
	if id < 0 || int(id) >= len(t.clusters) {
		return Cluster{}, false
	}
	return t.clusters[id], true
}

// ClusterOf returns the cluster the device belongs to
func (t *Topology) ClusterOf(device model.DeviceID) (Cluster, bool) {
	id, ok := t.clusterOf[device]
	if !ok {
		return Cluster{}, false
	}
	return t.clusters[id], true
}

// ClusterDevices returns the devices of a cluster
func (t *Topology) ClusterDevices(id ClusterID) []model.DeviceID {
	if _, ok := t.Cluster(id); !ok {
		return nil
	}
	result := make([]model.DeviceID, len(t.devicesByCluster[id]))
	copy(result, t.devicesByCluster[id])
	return result
}

// ClusterLinks returns the links joining devices of a cluster
func (t *Topology) ClusterLinks(id ClusterID) []model.Link {
	if _, ok := t.Cluster(id); !ok {
		return nil
	}
	result := make([]model.Link, len(t.linksByCluster[id]))
	copy(result, t.linksByCluster[id])
	return result
}

// IsInfrastructure reports whether the connect point terminates a link
func (t *Topology) IsInfrastructure(cp model.ConnectPoint) bool {
	_, ok := t.infrastructure[cp]
	return ok
}

// IsBroadcastPoint reports whether the connect point may flood broadcast
// traffic. Edge points always may. An infrastructure point may if its cluster
// has no broadcast set or if it is part of that set.
func (t *Topology) IsBroadcastPoint(cp model.ConnectPoint) (bool, error) {
	if t.broadcastFunc != nil {
		return t.broadcastFunc(cp), nil
	}

	if !t.IsInfrastructure(cp) {
		return true, nil
	}

	id, ok := t.clusterOf[cp.Device]
	if !ok {
		return false, fmt.Errorf("%w %s", ErrNoCluster, cp.Device)
	}

	points := t.broadcastSets[id]
	if len(points) == 0 {
		return true, nil
	}
	_, ok = points[cp]
	return ok, nil
}

// BroadcastPoints returns the broadcast set of a cluster
func (t *Topology) BroadcastPoints(id ClusterID) []model.ConnectPoint {
	if _, ok := t.Cluster(id); !ok {
		return nil
	}
	points := make([]model.ConnectPoint, 0, len(t.broadcastSets[id]))
	for cp := range t.broadcastSets[id] {
		points = append(points, cp)
	}
	return points
}

// BroadcastSetSize returns the size of the broadcast set of a cluster
func (t *Topology) BroadcastSetSize(id ClusterID) int {
	if _, ok := t.Cluster(id); !ok {
		return 0
	}
	return len(t.broadcastSets[id])
}

// Paths returns the precomputed equal-cost shortest paths between two
// devices under the hop-count weigher. Unknown or unreachable devices yield
// no paths.
func (t *Topology) Paths(src, dst model.DeviceID) []model.Path {
	paths := t.paths[devicePair{src: src, dst: dst}]
	result := make([]model.Path, len(paths))
	copy(result, paths)
	return result
}

// PathsWith computes the equal-cost shortest paths between two devices
// under w. A nil weigher uses the precomputed hop-count paths.
func (t *Topology) PathsWith(src, dst model.DeviceID, w LinkWeigher) []model.Path {
	if w == nil {
		return t.Paths(src, dst)
	}
	srcV, dstV := graph.Vertex{ID: src}, graph.Vertex{ID: dst}
	if !t.graph.Contains(srcV) || !t.graph.Contains(dstV) {
		return []model.Path{}
	}
	result := graph.Search(t.graph, srcV, adapt(w))
	return networkPaths(result.Paths(dstV, graph.AllPaths))
}

// KShortestPaths lazily yields the paths between two devices in order of
// non-decreasing cost under w, or the hop-count weigher when w is nil.
func (t *Topology) KShortestPaths(src, dst model.DeviceID, w LinkWeigher) iter.Seq[model.Path] {
	w = t.weigher(w)
	paths := graph.KShortestPaths(t.graph, graph.Vertex{ID: src}, graph.Vertex{ID: dst}, adapt(w))
	return func(yield func(model.Path) bool) {
		for p := range paths {
			if !yield(networkPath(p)) {
				return
			}
		}
	}
}

// DisjointPaths returns the cheapest pair of link-disjoint paths between two
// devices under w, or the hop-count weigher when w is nil. The result is
// empty when no such pair exists.
func (t *Topology) DisjointPaths(src, dst model.DeviceID, w LinkWeigher) []model.DisjointPath {
	pair, ok := graph.DisjointPaths(t.graph, graph.Vertex{ID: src}, graph.Vertex{ID: dst}, adapt(t.weigher(w)))
	if !ok {
		return []model.DisjointPath{}
	}
	return []model.DisjointPath{networkDisjointPath(pair)}
}

// RiskDisjointPaths is DisjointPaths with the additional constraint that the
// two paths share no risk group of the profile.
func (t *Topology) RiskDisjointPaths(src, dst model.DeviceID, w LinkWeigher,
	profile map[model.LinkKey]string) []model.DisjointPath {
	pair, ok := graph.RiskDisjointPaths(t.graph, graph.Vertex{ID: src}, graph.Vertex{ID: dst},
		adapt(t.weigher(w)), profile, graph.DefaultRiskCandidates)
	if !ok {
		return []model.DisjointPath{}
	}
	return []model.DisjointPath{networkDisjointPath(pair)}
}

func (t *Topology) weigher(w LinkWeigher) LinkWeigher {
	if w == nil {
		return t.hopCount
	}
	return w
}

// String returns a summary of the topology
func (t *Topology) String() string {
	return fmt.Sprintf("topology{time=%s, computeCost=%s, clusters=%d, devices=%d, links=%d}",
		t.time.Format(time.RFC3339Nano), t.computeCost, t.ClusterCount(), t.DeviceCount(), t.LinkCount())
}

func networkPath(p graph.Path) model.Path {
	return model.Path{Links: p.Links(), Cost: p.Cost}
}

func networkPaths(paths []graph.Path) []model.Path {
	result := make([]model.Path, len(paths))
	for i, p := range paths {
		result[i] = networkPath(p)
	}
	model.SortPaths(result)
	return result
}

func networkDisjointPath(p graph.DisjointPair) model.DisjointPath {
	return model.DisjointPath{
		Primary: networkPath(p.Primary),
		Backup:  networkPath(p.Backup),
	}
}
