// Package provider turns device and link changes into topology recomputes.
// Changes are batched, and each batch rebuilds the topology from the full
// inventory on a bounded pool of workers.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/norncorp/mimir/internal/accumulator"
	"github.com/norncorp/mimir/internal/inventory"
	"github.com/norncorp/mimir/internal/model"
	"github.com/norncorp/mimir/internal/topology"
)

// DefaultWorkers is the number of recomputes that may run at once
const DefaultWorkers = 8

// Sink receives every freshly described topology
type Sink interface {
	TopologyChanged(desc topology.Description, reasons []model.Event) error
}

// Option configures a Provider
type Option func(*Provider)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics the provider records into
func WithMetrics(m *Metrics) Option {
	return func(p *Provider) {
		p.metrics = m
	}
}

// WithMaxEvents sets the batch size that forces a recompute. With a value of
// 1 or less every event triggers its own recompute.
func WithMaxEvents(n int) Option {
	return func(p *Provider) {
		p.maxEvents = n
	}
}

// WithMaxIdle sets the quiet period that closes a batch
func WithMaxIdle(d time.Duration) Option {
	return func(p *Provider) {
		p.maxIdle = d
	}
}

// WithMaxBatch sets the maximum age of a batch
func WithMaxBatch(d time.Duration) Option {
	return func(p *Provider) {
		p.maxBatch = d
	}
}

// WithWorkers sets the size of the recompute pool
func WithWorkers(n int) Option {
	return func(p *Provider) {
		p.workers = n
	}
}

// WithInactiveLinks controls whether inactive links are part of the
// description
func WithInactiveLinks(include bool) Option {
	return func(p *Provider) {
		p.includeInactive = include
	}
}

// Provider listens to the inventory and keeps the sink supplied with
// topology descriptions
type Provider struct {
	devices *inventory.DeviceStore
	links   *inventory.LinkStore
	sink    Sink
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time

	maxEvents       int
	maxIdle         time.Duration
	maxBatch        time.Duration
	workers         int
	includeInactive bool

	acc    *accumulator.Accumulator[model.Event]
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	started  bool
	stopped  bool
	register sync.Once

	stampMu   sync.Mutex
	lastStamp time.Time
}

// New creates a Provider. It does nothing until Start is called.
func New(devices *inventory.DeviceStore, links *inventory.LinkStore, sink Sink, opts ...Option) *Provider {
	p := &Provider{
		devices:         devices,
		links:           links,
		sink:            sink,
		logger:          zap.NewNop(),
		now:             time.Now,
		maxEvents:       accumulator.DefaultMaxItems,
		maxIdle:         accumulator.DefaultMaxIdle,
		maxBatch:        accumulator.DefaultMaxBatch,
		workers:         DefaultWorkers,
		includeInactive: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(prometheus.NewRegistry())
	}
	if p.workers < 1 {
		p.workers = 1
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.sem = semaphore.NewWeighted(int64(p.workers))
	p.acc = accumulator.New(p.submit,
		accumulator.WithMaxItems(p.maxEvents),
		accumulator.WithMaxIdle(p.maxIdle),
		accumulator.WithMaxBatch(p.maxBatch),
		accumulator.WithReady(p.isStarted),
	)
	return p
}

// Start subscribes to the inventory and schedules an initial recompute
func (p *Provider) Start() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("provider already stopped")
	}
	p.started = true
	p.mu.Unlock()

	p.register.Do(func() {
		p.devices.OnEvent(func(e model.DeviceEvent) { p.handle(e) })
		p.links.OnEvent(func(e model.LinkEvent) { p.handle(e) })
	})

	p.logger.Info("topology provider started",
		zap.Int("max_events", p.maxEvents),
		zap.Duration("max_idle", p.maxIdle),
		zap.Duration("max_batch", p.maxBatch),
		zap.Int("workers", p.workers))

	p.TriggerRecompute()
	return nil
}

// Stop drops pending events and waits for running recomputes to finish
func (p *Provider) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.started = false
	p.mu.Unlock()

	p.acc.Stop()
	p.cancel()
	p.wg.Wait()
	p.logger.Info("topology provider stopped")
}

// TriggerRecompute schedules a recompute that has no triggering events
func (p *Provider) TriggerRecompute() {
	p.submit(nil)
}

func (p *Provider) isStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

func (p *Provider) handle(event model.Event) {
	if !p.isStarted() {
		return
	}
	p.logger.Debug("inventory event", zap.Stringer("event", event))

	if p.maxEvents <= 1 {
		p.submit([]model.Event{event})
		return
	}
	p.acc.Add(event)
}

// submit queues a recompute on the worker pool. Each call waits on the
// semaphore in its own goroutine, so recomputes may start in any order.
func (p *Provider) submit(reasons []model.Event) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	p.metrics.Pending.Inc()
	go func() {
		defer p.wg.Done()

		err := p.sem.Acquire(p.ctx, 1)
		p.metrics.Pending.Dec()
		if err != nil {
			return
		}
		defer p.sem.Release(1)

		p.recompute(reasons)
	}()
}

func (p *Provider) recompute(reasons []model.Event) {
	start := time.Now()
	result := ResultOK
	defer func() {
		if r := recover(); r != nil {
			result = ResultPanic
			p.logger.Error("topology recompute panicked",
				zap.Any("panic", r),
				zap.Int("reasons", len(reasons)))
		}
		p.metrics.Recomputes.WithLabelValues(result).Inc()
		p.metrics.Duration.Observe(time.Since(start).Seconds())
		p.metrics.BatchSize.Observe(float64(len(reasons)))
	}()

	desc := p.describe()
	err := p.sink.TopologyChanged(desc, reasons)
	switch {
	case err == nil:
		p.logger.Debug("topology recomputed",
			zap.Int("devices", len(desc.Devices)),
			zap.Int("links", len(desc.Links)),
			zap.Int("reasons", len(reasons)),
			zap.Duration("took", time.Since(start)))
	case errors.Is(err, topology.ErrStaleDescription):
		result = ResultStale
		p.logger.Debug("stale topology dropped", zap.Time("time", desc.Time))
	default:
		result = ResultError
		p.logger.Error("topology recompute failed",
			zap.Error(err),
			zap.Int("reasons", len(reasons)))
	}
}

// describe reads the inventory into a description. The time is taken before
// the reads, so a description never claims to be newer than a change it
// missed.
func (p *Provider) describe() topology.Description {
	at := p.stamp()
	devices := p.devices.Devices()

	var links []model.Link
	if p.includeInactive {
		links = p.links.Links()
	} else {
		links = p.links.ActiveLinks()
	}

	return topology.NewDescription(at, devices, links)
}

// stamp returns a description time strictly after every earlier one
func (p *Provider) stamp() time.Time {
	now := p.now()

	p.stampMu.Lock()
	defer p.stampMu.Unlock()
	if !now.After(p.lastStamp) {
		now = p.lastStamp.Add(time.Nanosecond)
	}
	p.lastStamp = now
	return now
}
