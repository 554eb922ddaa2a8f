package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

const rollingWindowSize = 256

// Metrics aggregates the security counters for one proxy instance. Counters
// are monotone; latency keeps a bounded rolling window for the status
// snapshot and a cumulative histogram for prometheus.
type Metrics struct {
	total     atomic.Uint64
	forwarded atomic.Uint64
	blocked   atomic.Uint64
	replay    atomic.Uint64
	tamper    atomic.Uint64
	reorder   atomic.Uint64
	flood     atomic.Uint64
	suppress  atomic.Uint64
	latency   latencyTracker
}

// Snapshot is the point-in-time counter view served by /status and logged
// by the periodic reporter.
type Snapshot struct {
	Total        uint64  `json:"total"`
	Forwarded    uint64  `json:"forwarded"`
	Blocked      uint64  `json:"blocked"`
	Replay       uint64  `json:"replay"`
	Tamper       uint64  `json:"tamper"`
	Reorder      uint64  `json:"reorder"`
	Flood        uint64  `json:"flood"`
	Suppress     uint64  `json:"suppress"`
	LatencyCount uint64  `json:"latencyCount"`
	LatencyAvgMs float64 `json:"latencyAvgMs"`
	LatencyMaxMs float64 `json:"latencyMaxMs"`
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncTotal()     { m.total.Add(1) }
func (m *Metrics) IncForwarded() { m.forwarded.Add(1) }
func (m *Metrics) IncBlocked()   { m.blocked.Add(1) }
func (m *Metrics) IncReplay()    { m.replay.Add(1) }
func (m *Metrics) IncTamper()    { m.tamper.Add(1) }
func (m *Metrics) IncReorder()   { m.reorder.Add(1) }
func (m *Metrics) IncFlood()     { m.flood.Add(1) }
func (m *Metrics) IncSuppress()  { m.suppress.Add(1) }

// ObserveLatency records one forward round-trip duration.
func (m *Metrics) ObserveLatency(d time.Duration) {
	m.latency.observe(d)
}

func (m *Metrics) Snapshot() Snapshot {
	count, avg, max := m.latency.rollingStats()
	return Snapshot{
		Total:        m.total.Load(),
		Forwarded:    m.forwarded.Load(),
		Blocked:      m.blocked.Load(),
		Replay:       m.replay.Load(),
		Tamper:       m.tamper.Load(),
		Reorder:      m.reorder.Load(),
		Flood:        m.flood.Load(),
		Suppress:     m.suppress.Load(),
		LatencyCount: count,
		LatencyAvgMs: float64(avg) / float64(time.Millisecond),
		LatencyMaxMs: float64(max) / float64(time.Millisecond),
	}
}

// latencyBuckets are the histogram upper bounds in seconds.
var latencyBuckets = []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

type latencyTracker struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int

	// cumulative histogram state, monotone for prometheus
	count   uint64
	sum     time.Duration
	buckets []uint64
	max     time.Duration
}

func (t *latencyTracker) observe(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.buckets == nil {
		t.buckets = make([]uint64, len(latencyBuckets))
	}
	if len(t.samples) < rollingWindowSize {
		t.samples = append(t.samples, d)
	} else {
		t.samples[t.next] = d
		t.next = (t.next + 1) % rollingWindowSize
	}

	t.count++
	t.sum += d
	if d > t.max {
		t.max = d
	}
	secs := d.Seconds()
	for i, bound := range latencyBuckets {
		if secs <= bound {
			t.buckets[i]++
		}
	}
}

// rollingStats returns the total observation count plus average and max over
// the rolling window.
func (t *latencyTracker) rollingStats() (uint64, time.Duration, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) == 0 {
		return t.count, 0, 0
	}
	var sum, max time.Duration
	for _, d := range t.samples {
		sum += d
		if d > max {
			max = d
		}
	}
	return t.count, sum / time.Duration(len(t.samples)), max
}

// histogramState returns cumulative count, sum and per-bucket counts.
func (t *latencyTracker) histogramState() (uint64, float64, map[float64]uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	buckets := make(map[float64]uint64, len(latencyBuckets))
	for i, bound := range latencyBuckets {
		if t.buckets == nil {
			buckets[bound] = 0
		} else {
			buckets[bound] = t.buckets[i]
		}
	}
	return t.count, t.sum.Seconds(), buckets
}
