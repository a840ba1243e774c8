// Package service publishes topology snapshots and answers queries against
// them.
package service

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/arc/v2"
	"go.uber.org/zap"

	"github.com/norncorp/mimir/internal/model"
	"github.com/norncorp/mimir/internal/topology"
)

// DefaultCacheSize is the number of disjoint path results kept
const DefaultCacheSize = 1024

var (
	// ErrNilTopology is returned when a query is given no topology
	ErrNilTopology = errors.New("topology must not be nil")

	// ErrInvalidDevice is returned when a query is given an empty device
	ErrInvalidDevice = errors.New("device id must not be empty")

	// ErrStaleTopology is returned when a description is older than the
	// published topology
	ErrStaleTopology = topology.ErrStaleDescription
)

// EventType represents the kind of topology event
type EventType string

// TopologyChanged indicates a new topology was published
const TopologyChanged EventType = "topology-changed"

// Event announces a newly published topology together with the inventory
// events that caused it. Reasons is empty for a forced recompute.
type Event struct {
	Type     EventType
	Topology *topology.Topology
	Reasons  []model.Event
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithTopologyOptions sets the options every published topology is built
// with
func WithTopologyOptions(opts ...topology.Option) Option {
	return func(m *Manager) {
		m.topologyOpts = opts
	}
}

// WithCacheSize sets the size of the disjoint path cache
func WithCacheSize(n int) Option {
	return func(m *Manager) {
		m.cacheSize = n
	}
}

type cacheKey struct {
	topo       *topology.Topology
	weigherGen uint64
	src        model.DeviceID
	dst        model.DeviceID
}

// Manager holds the current topology. Queries run against an explicit
// snapshot and never lock; publication is serialized.
type Manager struct {
	logger       *zap.Logger
	topologyOpts []topology.Option
	cacheSize    int

	current atomic.Pointer[topology.Topology]
	publish sync.Mutex

	mu         sync.RWMutex
	listeners  map[uint64]func(Event)
	nextID     uint64
	watchers   map[chan Event]struct{}
	weigher    topology.LinkWeigher
	weigherGen uint64

	cache *arc.ARCCache[cacheKey, []model.DisjointPath]
}

// NewManager creates a Manager holding an empty topology
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{
		logger:    zap.NewNop(),
		cacheSize: DefaultCacheSize,
		listeners: make(map[uint64]func(Event)),
		watchers:  make(map[chan Event]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	cache, err := arc.NewARC[cacheKey, []model.DisjointPath](m.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating disjoint path cache: %w", err)
	}
	m.cache = cache

	m.current.Store(topology.New(topology.Description{}, m.topologyOpts...))
	return m, nil
}

// TopologyChanged builds a topology from desc and publishes it. A
// description older than the current topology is rejected with
// ErrStaleTopology and the current topology stays in place.
func (m *Manager) TopologyChanged(desc topology.Description, reasons []model.Event) error {
	topo := topology.New(desc, m.topologyOpts...)

	m.publish.Lock()
	defer m.publish.Unlock()

	current := m.current.Load()
	if topo.Time().Before(current.Time()) {
		return fmt.Errorf("description from %s, current topology from %s: %w",
			topo.Time(), current.Time(), ErrStaleTopology)
	}
	m.current.Store(topo)
	m.cache.Purge()

	m.logger.Info("topology published",
		zap.Int("devices", topo.DeviceCount()),
		zap.Int("links", topo.LinkCount()),
		zap.Int("clusters", topo.ClusterCount()),
		zap.Int("reasons", len(reasons)),
		zap.Duration("compute_cost", topo.ComputeCost()))

	// Events leave in publication order.
	m.notify(Event{Type: TopologyChanged, Topology: topo, Reasons: reasons})
	return nil
}

// Subscribe registers fn for every topology event and returns a function
// that removes it. Listeners run inside publication and must not call
// TopologyChanged.
func (m *Manager) Subscribe(fn func(Event)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Watch returns a channel that receives topology events until cancel is
// called. Events are dropped while the channel is full.
func (m *Manager) Watch(buffer int) (events <-chan Event, cancel func()) {
	ch := make(chan Event, buffer)

	m.mu.Lock()
	m.watchers[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, ch)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// notify sends an event to every listener and watcher
func (m *Manager) notify(event Event) {
	m.mu.RLock()
	listeners := make([]func(Event), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	for ch := range m.watchers {
		select {
		case ch <- event:
		default:
			m.logger.Warn("topology watcher is full, event dropped")
		}
	}
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn(event)
	}
}

// SetDefaultWeigher sets the weigher used by path queries that do not supply
// their own. A nil weigher restores the hop count index.
func (m *Manager) SetDefaultWeigher(w topology.LinkWeigher) {
	m.mu.Lock()
	m.weigher = w
	m.weigherGen++
	m.mu.Unlock()
	m.cache.Purge()
}

func (m *Manager) defaultWeigher() topology.LinkWeigher {
	w, _ := m.defaultWeigherGen()
	return w
}

func (m *Manager) defaultWeigherGen() (topology.LinkWeigher, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.weigher, m.weigherGen
}
