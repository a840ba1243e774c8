package provider

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/norncorp/mimir/internal/inventory"
	"github.com/norncorp/mimir/internal/model"
	"github.com/norncorp/mimir/internal/service"
	"github.com/norncorp/mimir/internal/topology"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type call struct {
	desc    topology.Description
	reasons []model.Event
}

// sink records every description it is handed
type sink struct {
	mu    sync.Mutex
	calls []call
	fail  func(call) error
}

func (s *sink) TopologyChanged(desc topology.Description, reasons []model.Event) error {
	c := call{desc: desc, reasons: reasons}
	s.mu.Lock()
	s.calls = append(s.calls, c)
	fail := s.fail
	s.mu.Unlock()

	if fail != nil {
		return fail(c)
	}
	return nil
}

func (s *sink) snapshot() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]call, len(s.calls))
	copy(result, s.calls)
	return result
}

func (s *sink) count() int {
	return len(s.snapshot())
}

func cp(device string, port int) model.ConnectPoint {
	return model.NewConnectPoint(model.DeviceID(device), model.PortNumber(port))
}

type fixture struct {
	devices  *inventory.DeviceStore
	links    *inventory.LinkStore
	sink     *sink
	metrics  *Metrics
	provider *Provider
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	f := &fixture{
		devices: inventory.NewDeviceStore(),
		links:   inventory.NewLinkStore(),
		sink:    &sink{},
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t)),
		WithMetrics(f.metrics),
	}, opts...)
	f.provider = New(f.devices, f.links, f.sink, opts...)
	t.Cleanup(f.provider.Stop)
	return f
}

func (f *fixture) start(t *testing.T) {
	require.NoError(t, f.provider.Start())
	require.Eventually(t, func() bool { return f.sink.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestProviderInitialRecompute(t *testing.T) {
	f := newFixture(t)
	f.devices.Upsert(model.Device{ID: "a", Available: true})
	f.devices.Upsert(model.Device{ID: "b", Available: true})
	f.devices.Upsert(model.Device{ID: "c"})
	f.links.Upsert(model.NewLink(cp("a", 1), cp("b", 1)))

	time.Sleep(30 * time.Millisecond)
	require.Zero(t, f.sink.count(), "events before start are ignored")

	f.start(t)

	c := f.sink.snapshot()[0]
	require.Empty(t, c.reasons)
	require.Equal(t, []model.DeviceID{"a", "b"}, c.desc.Devices)
	require.Equal(t, []model.Link{model.NewLink(cp("a", 1), cp("b", 1))}, c.desc.Links)
	require.False(t, c.desc.Time.IsZero())
}

func TestProviderBatchesEvents(t *testing.T) {
	f := newFixture(t,
		WithMaxEvents(3),
		WithMaxIdle(time.Second),
		WithMaxBatch(5*time.Second),
	)
	f.start(t)

	f.devices.Upsert(model.Device{ID: "a", Available: true})
	f.devices.Upsert(model.Device{ID: "b", Available: true})
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, 1, f.sink.count(), "batch is not full yet")

	f.links.Upsert(model.NewLink(cp("a", 1), cp("b", 1)))
	require.Eventually(t, func() bool { return f.sink.count() == 2 }, time.Second, 5*time.Millisecond)

	c := f.sink.snapshot()[1]
	require.Len(t, c.reasons, 3)
	require.IsType(t, model.DeviceEvent{}, c.reasons[0])
	require.IsType(t, model.LinkEvent{}, c.reasons[2])
	require.Len(t, c.desc.Links, 1)
}

func TestProviderIdleFlush(t *testing.T) {
	f := newFixture(t,
		WithMaxEvents(100),
		WithMaxIdle(20*time.Millisecond),
		WithMaxBatch(time.Second),
	)
	f.start(t)

	f.devices.Upsert(model.Device{ID: "a", Available: true})
	require.Eventually(t, func() bool { return f.sink.count() == 2 }, time.Second, 5*time.Millisecond)
	require.Len(t, f.sink.snapshot()[1].reasons, 1)
}

func TestProviderImmediateDispatch(t *testing.T) {
	f := newFixture(t, WithMaxEvents(1))
	f.start(t)

	f.devices.Upsert(model.Device{ID: "a", Available: true})
	f.devices.Upsert(model.Device{ID: "b", Available: true})
	require.Eventually(t, func() bool { return f.sink.count() == 3 }, time.Second, 5*time.Millisecond)

	for _, c := range f.sink.snapshot()[1:] {
		require.Len(t, c.reasons, 1)
	}
}

func TestProviderInactiveLinks(t *testing.T) {
	down := model.NewLink(cp("a", 1), cp("b", 1))
	down.State = model.LinkInactive
	up := model.NewLink(cp("b", 1), cp("a", 1))

	for _, include := range []bool{true, false} {
		t.Run(fmt.Sprintf("include=%t", include), func(t *testing.T) {
			f := newFixture(t, WithInactiveLinks(include))
			f.devices.Upsert(model.Device{ID: "a", Available: true})
			f.devices.Upsert(model.Device{ID: "b", Available: true})
			f.links.Upsert(down)
			f.links.Upsert(up)
			f.start(t)

			links := f.sink.snapshot()[0].desc.Links
			if include {
				require.Equal(t, []model.Link{down, up}, links)
			} else {
				require.Equal(t, []model.Link{up}, links)
			}
		})
	}
}

func TestProviderRecomputeFailures(t *testing.T) {
	f := newFixture(t, WithMaxEvents(1))
	f.sink.fail = func(c call) error {
		if len(c.reasons) == 0 {
			return nil
		}
		switch c.reasons[0].(model.DeviceEvent).Device.ID {
		case "boom":
			panic("sink exploded")
		case "old":
			return fmt.Errorf("publish: %w", topology.ErrStaleDescription)
		default:
			return errors.New("sink failed")
		}
	}
	f.start(t)

	f.devices.Upsert(model.Device{ID: "boom", Available: true})
	f.devices.Upsert(model.Device{ID: "old", Available: true})
	f.devices.Upsert(model.Device{ID: "bad", Available: true})

	recomputes := f.metrics.Recomputes
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(recomputes.WithLabelValues(ResultOK)) == 1 &&
			testutil.ToFloat64(recomputes.WithLabelValues(ResultPanic)) == 1 &&
			testutil.ToFloat64(recomputes.WithLabelValues(ResultStale)) == 1 &&
			testutil.ToFloat64(recomputes.WithLabelValues(ResultError)) == 1
	}, time.Second, 5*time.Millisecond)

	// The provider keeps working after a failed recompute.
	f.provider.TriggerRecompute()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(recomputes.WithLabelValues(ResultOK)) == 2
	}, time.Second, 5*time.Millisecond)
	require.Zero(t, testutil.ToFloat64(f.metrics.Pending))
}

func TestProviderBoundedWorkers(t *testing.T) {
	f := newFixture(t, WithWorkers(2))

	release := make(chan struct{})
	var mu sync.Mutex
	running, peak := 0, 0
	f.sink.fail = func(call) error {
		mu.Lock()
		running++
		peak = max(peak, running)
		mu.Unlock()

		<-release

		mu.Lock()
		running--
		mu.Unlock()
		return nil
	}

	require.NoError(t, f.provider.Start())
	for i := 0; i < 5; i++ {
		f.provider.TriggerRecompute()
	}
	require.Eventually(t, func() bool { return f.sink.count() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.Pending) == 4
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool { return f.sink.count() == 6 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, peak)
}

func TestProviderStaleRecompute(t *testing.T) {
	manager, err := service.NewManager(service.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	devices, links := inventory.NewDeviceStore(), inventory.NewLinkStore()
	devices.Upsert(model.Device{ID: "a", Available: true})
	devices.Upsert(model.Device{ID: "b", Available: true})

	metrics := NewMetrics(prometheus.NewRegistry())
	p := New(devices, links, manager,
		WithLogger(zaptest.NewLogger(t)),
		WithMetrics(metrics),
		WithMaxEvents(1),
	)
	t.Cleanup(p.Stop)

	// The second clock read stalls until released.
	var reads atomic.Int32
	stalled := make(chan struct{})
	release := make(chan struct{})
	p.now = func() time.Time {
		if reads.Add(1) == 2 {
			close(stalled)
			<-release
		}
		return time.Now()
	}

	require.NoError(t, p.Start())
	require.Eventually(t, func() bool {
		return manager.CurrentTopology().DeviceCount() == 2
	}, time.Second, 5*time.Millisecond)

	p.TriggerRecompute()
	select {
	case <-stalled:
	case <-time.After(time.Second):
		t.Fatal("recompute never read the clock")
	}

	links.Upsert(model.NewLink(cp("a", 1), cp("b", 1)))
	require.Eventually(t, func() bool {
		return manager.CurrentTopology().LinkCount() == 1
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.Recomputes.WithLabelValues(ResultOK))+
			testutil.ToFloat64(metrics.Recomputes.WithLabelValues(ResultStale)) == 3
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 1, manager.CurrentTopology().LinkCount(), "delayed recompute must not publish an older inventory")
}

func TestProviderStampsIncrease(t *testing.T) {
	f := newFixture(t, WithWorkers(1))
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.provider.now = func() time.Time { return frozen }

	f.start(t)
	f.provider.TriggerRecompute()
	f.provider.TriggerRecompute()
	require.Eventually(t, func() bool { return f.sink.count() == 3 }, time.Second, 5*time.Millisecond)

	calls := f.sink.snapshot()
	require.True(t, calls[0].desc.Time.Equal(frozen))
	for i := 1; i < len(calls); i++ {
		require.True(t, calls[i].desc.Time.After(calls[i-1].desc.Time))
	}
}

func TestProviderStop(t *testing.T) {
	f := newFixture(t, WithMaxIdle(time.Second), WithMaxBatch(time.Second))
	f.start(t)

	f.devices.Upsert(model.Device{ID: "a", Available: true})
	f.provider.Stop()
	f.provider.TriggerRecompute()
	f.devices.Upsert(model.Device{ID: "b", Available: true})

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, 1, f.sink.count())
	require.Error(t, f.provider.Start())
}
