package watchdog

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/oddbit-project/chargebridge/utils"
)

const (
	DefaultScanIntervalSeconds = 5
	DefaultIdleTimeoutSeconds  = 30

	ErrNilConfig       = utils.Error("config is nil")
	ErrInvalidInterval = utils.Error("scan interval must be positive")
	ErrInvalidTimeout  = utils.Error("idle timeout must be positive")
	ErrNilSnapshot     = utils.Error("snapshot function is nil")
	ErrNilExpire       = utils.Error("expire function is nil")
)

type Config struct {
	ScanIntervalSeconds int `json:"scanIntervalSeconds"`
	IdleTimeoutSeconds  int `json:"idleTimeoutSeconds"`
}

func NewConfig() *Config {
	return &Config{
		ScanIntervalSeconds: DefaultScanIntervalSeconds,
		IdleTimeoutSeconds:  DefaultIdleTimeoutSeconds,
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.ScanIntervalSeconds <= 0 {
		return ErrInvalidInterval
	}
	if c.IdleTimeoutSeconds <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// Target is one monitored connection as seen at snapshot time.
type Target struct {
	ID       string
	LastSeen time.Time
}

// SnapshotFunc returns the current set of monitored connections.
type SnapshotFunc func() []Target

// ExpireFunc is invoked for every target whose idle time exceeded the
// configured timeout.
type ExpireFunc func(id string, idle time.Duration)

// Watchdog periodically sweeps connection liveness and expires silent ones.
// It holds no connection state of its own; everything comes through the
// injected snapshot.
type Watchdog struct {
	interval  time.Duration
	timeout   time.Duration
	snapshot  SnapshotFunc
	expire    ExpireFunc
	clock     func() time.Time
	done      chan struct{}
	stopped   chan struct{}
	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

type Option func(*Watchdog)

// WithClock injects a time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(w *Watchdog) {
		w.clock = clock
	}
}

// WithScanInterval overrides the configured interval, allowing sub-second
// ticks in tests.
func WithScanInterval(interval time.Duration) Option {
	return func(w *Watchdog) {
		w.interval = interval
	}
}

func New(cfg *Config, snapshot SnapshotFunc, expire ExpireFunc, opts ...Option) (*Watchdog, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, ErrNilSnapshot
	}
	if expire == nil {
		return nil, ErrNilExpire
	}
	w := &Watchdog{
		interval: time.Duration(cfg.ScanIntervalSeconds) * time.Second,
		timeout:  time.Duration(cfg.IdleTimeoutSeconds) * time.Second,
		snapshot: snapshot,
		expire:   expire,
		clock:    time.Now,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start launches the scan loop. Subsequent calls are no-ops.
func (w *Watchdog) Start() {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.loop()
	})
}

// Shutdown stops the loop and waits for a scan in progress to finish.
// Safe to call multiple times and without a prior Start.
func (w *Watchdog) Shutdown() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

// Scan performs one sweep, expiring every target idle for longer than the
// timeout. Exposed so tests can drive sweeps synchronously.
func (w *Watchdog) Scan() {
	now := w.clock()
	for _, target := range w.snapshot() {
		idle := now.Sub(target.LastSeen)
		if idle > w.timeout {
			w.expire(target.ID, idle)
		}
	}
}

func (w *Watchdog) loop() {
	defer close(w.stopped)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.Scan()
		}
	}
}
