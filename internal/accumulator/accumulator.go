// Package accumulator batches items that arrive at a high rate so that they
// can be processed together.
package accumulator

import (
	"sync"
	"time"
)

const (
	// DefaultMaxItems is the batch size that forces processing
	DefaultMaxItems = 1000

	// DefaultMaxIdle is the quiet period after the last item that flushes
	// the batch
	DefaultMaxIdle = 10 * time.Millisecond

	// DefaultMaxBatch is the age of a batch that forces processing
	DefaultMaxBatch = 50 * time.Millisecond
)

// Option configures an Accumulator
type Option func(*config)

type config struct {
	maxItems int
	maxIdle  time.Duration
	maxBatch time.Duration
	ready    func() bool
}

// WithMaxItems sets the number of items that triggers processing
func WithMaxItems(n int) Option {
	return func(c *config) {
		c.maxItems = n
	}
}

// WithMaxIdle sets how long the accumulator waits for another item
func WithMaxIdle(d time.Duration) Option {
	return func(c *config) {
		c.maxIdle = d
	}
}

// WithMaxBatch sets the maximum time between the first item of a batch and
// its processing
func WithMaxBatch(d time.Duration) Option {
	return func(c *config) {
		c.maxBatch = d
	}
}

// WithReady sets a check consulted when a timer expires. While it returns
// false the batch keeps growing and the idle timer is re-armed.
func WithReady(ready func() bool) Option {
	return func(c *config) {
		c.ready = ready
	}
}

// Accumulator collects items and hands them to a processor in batches. A
// batch is processed when it reaches the maximum size, when no item arrived
// for the idle period, or when it gets older than the maximum batch age,
// whichever happens first. Every item is processed in exactly one batch.
type Accumulator[T any] struct {
	config
	process func([]T)

	mu         sync.Mutex
	items      []T
	generation uint64
	idleSeq    uint64
	idleTimer  *time.Timer
	batchTimer *time.Timer
	stopped    bool
}

// New creates an Accumulator that passes each batch to process
func New[T any](process func([]T), opts ...Option) *Accumulator[T] {
	a := &Accumulator[T]{
		config: config{
			maxItems: DefaultMaxItems,
			maxIdle:  DefaultMaxIdle,
			maxBatch: DefaultMaxBatch,
		},
		process: process,
	}
	for _, opt := range opts {
		opt(&a.config)
	}
	if a.maxItems < 1 {
		a.maxItems = 1
	}
	return a
}

// Add appends an item to the current batch. When the batch is full it is
// processed on the calling goroutine.
func (a *Accumulator[T]) Add(item T) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}

	a.items = append(a.items, item)
	if len(a.items) >= a.maxItems {
		batch := a.takeLocked()
		a.mu.Unlock()
		a.process(batch)
		return
	}

	a.armIdleLocked()
	if a.batchTimer == nil {
		gen := a.generation
		a.batchTimer = time.AfterFunc(a.maxBatch, func() { a.expire(gen, 0, false) })
	}
	a.mu.Unlock()
}

// Flush processes the pending items now, if there are any
func (a *Accumulator[T]) Flush() {
	a.mu.Lock()
	if len(a.items) == 0 {
		a.mu.Unlock()
		return
	}
	batch := a.takeLocked()
	a.mu.Unlock()
	a.process(batch)
}

// Pending returns the number of items waiting to be processed
func (a *Accumulator[T]) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// Stop cancels the timers and drops pending items. Items added afterwards
// are ignored.
func (a *Accumulator[T]) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.takeLocked()
	a.stopped = true
}

func (a *Accumulator[T]) armIdleLocked() {
	if a.idleTimer != nil {
		a.idleTimer.Stop()
	}
	a.idleSeq++
	gen, seq := a.generation, a.idleSeq
	a.idleTimer = time.AfterFunc(a.maxIdle, func() { a.expire(gen, seq, true) })
}

// takeLocked detaches the current batch and invalidates its timers
func (a *Accumulator[T]) takeLocked() []T {
	if a.idleTimer != nil {
		a.idleTimer.Stop()
		a.idleTimer = nil
	}
	if a.batchTimer != nil {
		a.batchTimer.Stop()
		a.batchTimer = nil
	}
	a.generation++

	batch := a.items
	a.items = nil
	return batch
}

// expire runs when a timer fires. Timers that belong to an earlier batch, or
// idle timers that were re-armed since, do nothing.
func (a *Accumulator[T]) expire(gen, seq uint64, idle bool) {
	a.mu.Lock()
	if a.stopped || gen != a.generation || (idle && seq != a.idleSeq) || len(a.items) == 0 {
		a.mu.Unlock()
		return
	}

	if a.ready != nil && !a.ready() {
		a.armIdleLocked()
		a.mu.Unlock()
		return
	}

	batch := a.takeLocked()
	a.mu.Unlock()
	a.process(batch)
}
