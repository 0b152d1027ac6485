package pipeline

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"
)

// latencyWindow is how many recent frame latencies are kept for the
// statistics snapshot
const latencyWindow = 256

// Stats is a point-in-time snapshot of the pipeline counters
type Stats struct {
	// Accepted is the number of frames handed to the worker
	Accepted uint64
	// DroppedBusy counts frames dropped because the worker was occupied
	DroppedBusy uint64
	// DroppedThrottled counts frames dropped by the inter-frame interval
	DroppedThrottled uint64
	// Skipped counts frames that entered processing but failed
	Skipped uint64
	// Processed counts frames that completed the full pipeline
	Processed uint64
	// MeanLatency is the mean end-to-end frame latency over the recent
	// window
	MeanLatency time.Duration
	// P90Latency is the 90th percentile latency over the recent window
	P90Latency time.Duration
}

// statsCollector accumulates counters on the hot path with atomics and
// keeps a small ring of recent latencies for the snapshot
type statsCollector struct {
	accepted         atomic.Uint64
	droppedBusy      atomic.Uint64
	droppedThrottled atomic.Uint64
	skipped          atomic.Uint64
	processed        atomic.Uint64

	mu        sync.Mutex
	latencies []float64
	next      int
	filled    bool
}

func newStatsCollector() *statsCollector {
	return &statsCollector{
		latencies: make([]float64, latencyWindow),
	}
}

// observe records one completed frame's latency
func (c *statsCollector) observe(d time.Duration) {

	c.processed.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.latencies[c.next] = d.Seconds()
	c.next++

	if c.next == len(c.latencies) {
		c.next = 0
		c.filled = true
	}
}

// snapshot computes the current statistics.  Latency figures are zero until
// at least one frame has completed.
func (c *statsCollector) snapshot() Stats {

	s := Stats{
		Accepted:         c.accepted.Load(),
		DroppedBusy:      c.droppedBusy.Load(),
		DroppedThrottled: c.droppedThrottled.Load(),
		Skipped:          c.skipped.Load(),
		Processed:        c.processed.Load(),
	}

	c.mu.Lock()

	n := c.next

	if c.filled {
		n = len(c.latencies)
	}

	window := make([]float64, n)
	copy(window, c.latencies[:n])

	c.mu.Unlock()

	if len(window) == 0 {
		return s
	}

	s.MeanLatency = time.Duration(stat.Mean(window, nil) * float64(time.Second))

	sort.Float64s(window)
	s.P90Latency = time.Duration(
		stat.Quantile(0.9, stat.Empirical, window, nil) * float64(time.Second))

	return s
}
