package serf

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/serf/serf"
	"go.uber.org/zap"

	"github.com/norncorp/mimir/internal/inventory"
	"github.com/norncorp/mimir/internal/model"
)

const (
	// RoleTag is the member tag that tells devices apart from other nodes
	RoleTag = "mimir_role"

	// RoleObserver marks a member that runs mimir itself and is not a device
	RoleObserver = "observer"
)

// MeshConfig contains configuration for creating a new Mesh
type MeshConfig struct {
	// NodeName is the name of this node in the mesh
	NodeName string

	// BindAddr is the address to bind the gossip listener to
	BindAddr string

	// BindPort is the port to bind the gossip listener to
	BindPort int

	// Tags are metadata tags for this node
	Tags map[string]string

	// JoinAddrs are addresses of existing nodes to join
	JoinAddrs []string

	// Logger receives mesh activity. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Member represents a member in the mesh
type Member struct {
	// Name is the unique name of the member
	Name string

	// Addr is the address of the member
	Addr string

	// Port is the port of the member
	Port uint16

	// Tags are metadata tags for the member
	Tags map[string]string

	// Status is the status of the member (alive, leaving, left, failed)
	Status string
}

// IsDevice reports whether the member stands for a network device
func (m *Member) IsDevice() bool {
	return !FilterByTag(RoleTag, RoleObserver)(m)
}

// Device returns the device the member stands for
func (m *Member) Device() model.Device {
	return model.Device{
		ID:        model.DeviceID(m.Name),
		Available: m.Status == serf.StatusAlive.String(),
	}
}

// Mesh feeds the device and link inventory from a Serf gossip mesh. Members
// become devices; topology user events announce the links leaving a member.
type Mesh struct {
	serf    *serf.Serf
	config  MeshConfig
	logger  *zap.Logger
	devices *inventory.DeviceStore
	links   *inventory.LinkStore

	// Event handlers
	handlers []EventHandler
	mu       sync.RWMutex

	// Event channel for processing events
	eventCh chan serf.Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped bool
	stopMu  sync.Mutex
}

// NewMesh creates a new Mesh that writes into the given stores
func NewMesh(config MeshConfig, devices *inventory.DeviceStore, links *inventory.LinkStore) (*Mesh, error) {
	if config.NodeName == "" {
		return nil, fmt.Errorf("node name is required")
	}
	if devices == nil || links == nil {
		return nil, fmt.Errorf("device and link stores are required")
	}

	if config.BindAddr == "" {
		config.BindAddr = "0.0.0.0"
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Mesh{
		config:  config,
		logger:  logger.With(zap.String("node", config.NodeName)),
		devices: devices,
		links:   links,
		eventCh: make(chan serf.Event, 256),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	return m, nil
}

// Start initializes and starts the Serf mesh
func (m *Mesh) Start(ctx context.Context) error {
	conf := serf.DefaultConfig()
	conf.NodeName = m.config.NodeName
	conf.MemberlistConfig.BindAddr = m.config.BindAddr
	conf.MemberlistConfig.BindPort = m.config.BindPort
	conf.Tags = m.config.Tags
	conf.EventCh = m.eventCh

	s, err := serf.Create(conf)
	if err != nil {
		return fmt.Errorf("failed to create serf instance: %w", err)
	}

	m.serf = s

	go m.processEvents(ctx)

	if len(m.config.JoinAddrs) > 0 {
		n, err := m.serf.Join(m.config.JoinAddrs, false)
		if err != nil {
			return fmt.Errorf("failed to join cluster: %w", err)
		}
		m.logger.Info("joined mesh", zap.Int("contacted", n))
	}

	return nil
}

// Stop leaves the mesh and shuts it down
func (m *Mesh) Stop() error {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()

	if m.stopped {
		return nil
	}

	if m.serf == nil {
		m.stopped = true
		return nil
	}

	m.stopped = true

	err := m.serf.Leave()
	if err != nil {
		return fmt.Errorf("failed to leave cluster: %w", err)
	}

	err = m.serf.Shutdown()
	if err != nil {
		return fmt.Errorf("failed to shutdown serf: %w", err)
	}

	close(m.stopCh)
	<-m.doneCh
	return nil
}

// Members returns a list of all members in the mesh
func (m *Mesh) Members() []*Member {
	if m.serf == nil {
		return nil
	}

	serfMembers := m.serf.Members()
	members := make([]*Member, 0, len(serfMembers))
	for _, sm := range serfMembers {
		members = append(members, newMember(sm))
	}

	return members
}

// AnnounceLinks gossips the complete set of links leaving this node
func (m *Mesh) AnnounceLinks(links []model.Link) error {
	if m.serf == nil {
		return fmt.Errorf("mesh not started")
	}

	payload, err := EncodeAnnouncement(model.DeviceID(m.config.NodeName), links)
	if err != nil {
		return err
	}

	if err := m.serf.UserEvent(TopologyEventName, payload, false); err != nil {
		return fmt.Errorf("failed to announce links: %w", err)
	}
	return nil
}

// OnEvent registers a handler called for every membership event
func (m *Mesh) OnEvent(fn EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, fn)
}

// processEvents processes Serf events from the event channel
func (m *Mesh) processEvents(ctx context.Context) {
	defer close(m.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case e := <-m.eventCh:
			m.handleEvent(e)
		}
	}
}

// handleEvent handles a single Serf event
func (m *Mesh) handleEvent(e serf.Event) {
	switch e.EventType() {
	case serf.EventMemberJoin:
		m.handleMembers(e.(serf.MemberEvent), EventTypeJoin)
	case serf.EventMemberLeave:
		m.handleMembers(e.(serf.MemberEvent), EventTypeLeave)
	case serf.EventMemberFailed:
		m.handleMembers(e.(serf.MemberEvent), EventTypeFailed)
	case serf.EventMemberUpdate:
		m.handleMembers(e.(serf.MemberEvent), EventTypeUpdate)
	case serf.EventMemberReap:
		m.handleMembers(e.(serf.MemberEvent), EventTypeReap)
	case serf.EventUser:
		m.handleUserEvent(e.(serf.UserEvent))
	}
}

// handleMembers applies a membership change to the inventory, then runs the
// handlers. Handlers see the inventory already updated.
func (m *Mesh) handleMembers(e serf.MemberEvent, typ EventType) {
	m.mu.RLock()
	handlers := m.handlers
	m.mu.RUnlock()

	for _, sm := range e.Members {
		member := newMember(sm)
		if member.IsDevice() {
			m.applyMember(member, typ)
		}

		for _, fn := range handlers {
			fn(Event{Type: typ, Member: member})
		}
	}
}

func (m *Mesh) applyMember(member *Member, typ EventType) {
	id := model.DeviceID(member.Name)
	switch typ {
	case EventTypeJoin, EventTypeUpdate:
		m.devices.Upsert(member.Device())
	case EventTypeFailed:
		m.devices.SetAvailable(id, false)
	case EventTypeLeave, EventTypeReap:
		removed := m.links.RemoveDevice(id)
		m.devices.Remove(id)
		m.logger.Debug("device removed", zap.String("device", member.Name), zap.Int("links", removed))
	}
}

// handleUserEvent handles link announcements
func (m *Mesh) handleUserEvent(e serf.UserEvent) {
	if e.Name != TopologyEventName {
		return
	}

	node, links, err := DecodeAnnouncement(e.Payload)
	if err != nil {
		m.logger.Warn("dropping topology event", zap.Error(err))
		return
	}

	m.links.ReplaceEgress(node, links)
	m.logger.Debug("links announced", zap.String("device", string(node)), zap.Int("links", len(links)))
}

func newMember(sm serf.Member) *Member {
	return &Member{
		Name:   sm.Name,
		Addr:   sm.Addr.String(),
		Port:   sm.Port,
		Tags:   sm.Tags,
		Status: sm.Status.String(),
	}
}
