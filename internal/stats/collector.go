package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Collector aggregates run statistics for presenters. Counters are atomic so
// the presenter goroutine can feed it while the controller reads snapshots.
type Collector struct {
	itemsDone      atomic.Int64
	itemsFailed    atomic.Int64
	itemsSkipped   atomic.Int64
	bytesCopied    atomic.Int64
	deleted        atomic.Int64
	targetSwitches atomic.Int64
	targetIndex    atomic.Int64
	startTime      time.Time

	// Ring buffer, written only by the presenter's Tick().
	mu          sync.Mutex
	throughput  [ringSize]int64 // bytes delta per second
	itemsPerSec [ringSize]int64
	ringIdx     int
	ringCount   int // samples written, capped at ringSize
	lastBytes   int64
	lastItems   int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetProgress records the engine's cumulative run totals.
func (c *Collector) SetProgress(items, bytes int64) {
	c.itemsDone.Store(items)
	c.bytesCopied.Store(bytes)
}

// SetTarget records the index of the active target.
func (c *Collector) SetTarget(index int) {
	c.targetIndex.Store(int64(index))
}

func (c *Collector) AddFailed(n int64)         { c.itemsFailed.Add(n) }
func (c *Collector) AddSkipped(n int64)        { c.itemsSkipped.Add(n) }
func (c *Collector) AddDeleted(n int64)        { c.deleted.Add(n) }
func (c *Collector) AddTargetSwitches(n int64) { c.targetSwitches.Add(n) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	ItemsDone      int64
	ItemsFailed    int64
	ItemsSkipped   int64
	BytesCopied    int64
	Deleted        int64
	TargetSwitches int64
	TargetIndex    int
	Elapsed        time.Duration
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		ItemsDone:      c.itemsDone.Load(),
		ItemsFailed:    c.itemsFailed.Load(),
		ItemsSkipped:   c.itemsSkipped.Load(),
		BytesCopied:    c.bytesCopied.Load(),
		Deleted:        c.deleted.Load(),
		TargetSwitches: c.targetSwitches.Load(),
		TargetIndex:    int(c.targetIndex.Load()),
		Elapsed:        c.Elapsed(),
	}
}

// Tick snapshots byte/item deltas into the ring buffer. Called 1/sec by the presenter.
func (c *Collector) Tick() {
	currentBytes := c.bytesCopied.Load()
	currentItems := c.itemsDone.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = currentBytes - c.lastBytes
	c.itemsPerSec[c.ringIdx] = currentItems - c.lastItems
	c.lastBytes = currentBytes
	c.lastItems = currentItems

	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.throughput[:], seconds)
}

// RollingItemsPerSec returns average items/sec over the last n seconds.
func (c *Collector) RollingItemsPerSec(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.itemsPerSec[:], seconds)
}

func (c *Collector) rollingAvg(buf []int64, n int) float64 {
	count := min(n, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += buf[idx]
	}
	return float64(sum) / float64(count)
}

// SparklineData returns up to n throughput samples, oldest first.
func (c *Collector) SparklineData(n int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(n, c.ringCount)
	if count <= 0 {
		return nil
	}
	data := make([]float64, count)
	for i := range count {
		idx := (c.ringIdx - count + i + ringSize) % ringSize
		data[i] = float64(c.throughput[idx])
	}
	return data
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"items=%d failed=%d skipped=%d bytes=%d deleted=%d switches=%d target=%d",
		s.ItemsDone, s.ItemsFailed, s.ItemsSkipped,
		s.BytesCopied, s.Deleted, s.TargetSwitches, s.TargetIndex,
	)
}
