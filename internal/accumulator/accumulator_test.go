package accumulator

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder collects the batches handed to the processor
type recorder struct {
	mu      sync.Mutex
	batches [][]int
}

func (r *recorder) process(batch []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
}

func (r *recorder) snapshot() [][]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([][]int, len(r.batches))
	copy(result, r.batches)
	return result
}

func (r *recorder) count() int {
	return len(r.snapshot())
}

func TestAccumulatorMaxItems(t *testing.T) {
	rec := &recorder{}
	acc := New(rec.process,
		WithMaxItems(3),
		WithMaxIdle(time.Second),
		WithMaxBatch(5*time.Second),
	)
	defer acc.Stop()

	acc.Add(1)
	acc.Add(2)
	require.Zero(t, rec.count())
	require.Equal(t, 2, acc.Pending())

	acc.Add(3)
	require.Equal(t, [][]int{{1, 2, 3}}, rec.snapshot())
	require.Zero(t, acc.Pending())

	// The timers of the processed batch must not fire a second time.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, rec.count())
}

func TestAccumulatorMaxIdle(t *testing.T) {
	rec := &recorder{}
	acc := New(rec.process,
		WithMaxItems(3),
		WithMaxIdle(50*time.Millisecond),
		WithMaxBatch(5*time.Second),
	)
	defer acc.Stop()

	acc.Add(1)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	require.Equal(t, [][]int{{1}}, rec.snapshot())
}

func TestAccumulatorIdleRestartsOnAdd(t *testing.T) {
	rec := &recorder{}
	acc := New(rec.process,
		WithMaxIdle(100*time.Millisecond),
		WithMaxBatch(5*time.Second),
	)
	defer acc.Stop()

	acc.Add(1)
	time.Sleep(60 * time.Millisecond)
	acc.Add(2)
	time.Sleep(60 * time.Millisecond)
	require.Zero(t, rec.count(), "each add postpones the idle flush")

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, [][]int{{1, 2}}, rec.snapshot())
}

func TestAccumulatorMaxBatch(t *testing.T) {
	rec := &recorder{}
	acc := New(rec.process,
		WithMaxIdle(time.Second),
		WithMaxBatch(80*time.Millisecond),
	)
	defer acc.Stop()

	// Items keep arriving faster than the idle period, so only the batch
	// age can flush them.
	deadline := time.Now().Add(400 * time.Millisecond)
	for i := 0; time.Now().Before(deadline); i++ {
		acc.Add(i)
		time.Sleep(10 * time.Millisecond)
	}

	require.GreaterOrEqual(t, rec.count(), 2)
	acc.Flush()

	seen := 0
	for _, batch := range rec.snapshot() {
		for _, item := range batch {
			require.Equal(t, seen, item, "items are processed once, in order")
			seen++
		}
	}
}

func TestAccumulatorFlush(t *testing.T) {
	rec := &recorder{}
	acc := New(rec.process, WithMaxIdle(time.Second), WithMaxBatch(time.Second))
	defer acc.Stop()

	acc.Flush()
	require.Zero(t, rec.count())

	acc.Add(1)
	acc.Add(2)
	acc.Flush()
	require.Equal(t, [][]int{{1, 2}}, rec.snapshot())
}

func TestAccumulatorReady(t *testing.T) {
	rec := &recorder{}
	var ready atomic.Bool
	acc := New(rec.process,
		WithMaxIdle(20*time.Millisecond),
		WithMaxBatch(40*time.Millisecond),
		WithReady(ready.Load),
	)
	defer acc.Stop()

	acc.Add(1)
	time.Sleep(100 * time.Millisecond)
	require.Zero(t, rec.count())

	acc.Add(2)
	ready.Store(true)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, [][]int{{1, 2}}, rec.snapshot())
}

func TestAccumulatorStop(t *testing.T) {
	rec := &recorder{}
	acc := New(rec.process, WithMaxIdle(20*time.Millisecond))

	acc.Add(1)
	acc.Stop()
	acc.Add(2)

	time.Sleep(100 * time.Millisecond)
	require.Zero(t, rec.count())
	require.Zero(t, acc.Pending())
}

func TestAccumulatorNoBatching(t *testing.T) {
	rec := &recorder{}
	acc := New(rec.process, WithMaxItems(0))
	defer acc.Stop()

	acc.Add(1)
	acc.Add(2)
	require.Equal(t, [][]int{{1}, {2}}, rec.snapshot())
}

func TestAccumulatorConcurrentAdds(t *testing.T) {
	rec := &recorder{}
	acc := New(rec.process,
		WithMaxItems(10),
		WithMaxIdle(20*time.Millisecond),
		WithMaxBatch(50*time.Millisecond),
	)
	defer acc.Stop()

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				acc.Add(p*100 + i)
			}
		}(p)
	}
	wg.Wait()
	acc.Flush()

	seen := make(map[int]bool)
	for _, batch := range rec.snapshot() {
		require.LessOrEqual(t, len(batch), 10)
		for _, item := range batch {
			require.False(t, seen[item], "item %d processed twice", item)
			seen[item] = true
		}
	}
	require.Len(t, seen, 800)
}
