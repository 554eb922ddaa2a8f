package metrics

import (
	"sync"
	"time"

	"github.com/oddbit-project/chargebridge/log"
)

const DefaultReportInterval = 30 * time.Second

// Reporter emits a structured log line with the current snapshot, rate
// limited so per-message call sites stay cheap.
type Reporter struct {
	mu       sync.Mutex
	metrics  *Metrics
	logger   *log.Logger
	interval time.Duration
	clock    func() time.Time
	last     time.Time
}

func NewReporter(m *Metrics, logger *log.Logger, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	return &Reporter{
		metrics:  m,
		logger:   logger,
		interval: interval,
		clock:    time.Now,
	}
}

// MaybeReport logs the snapshot when at least one interval elapsed since the
// previous report.
func (r *Reporter) MaybeReport() {
	r.mu.Lock()
	now := r.clock()
	if !r.last.IsZero() && now.Sub(r.last) < r.interval {
		r.mu.Unlock()
		return
	}
	r.last = now
	r.mu.Unlock()

	s := r.metrics.Snapshot()
	r.logger.Info("security counters", log.KV{
		"total":          s.Total,
		"forwarded":      s.Forwarded,
		"blocked":        s.Blocked,
		"replay":         s.Replay,
		"tamper":         s.Tamper,
		"reorder":        s.Reorder,
		"flood":          s.Flood,
		"suppress":       s.Suppress,
		"latency_avg_ms": s.LatencyAvgMs,
		"latency_max_ms": s.LatencyMaxMs,
	})
}
