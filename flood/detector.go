package flood

import (
	"sync"
	"time"

	"github.com/oddbit-project/chargebridge/utils"
)

const (
	DefaultWindowSeconds = 2
	DefaultLimit         = 5

	ErrNilConfig     = utils.Error("config is nil")
	ErrInvalidWindow = utils.Error("flood window must be positive")
	ErrInvalidLimit  = utils.Error("flood limit must be positive")
)

type Config struct {
	WindowSeconds int `json:"windowSeconds"`
	Limit         int `json:"limit"`
}

func NewConfig() *Config {
	return &Config{
		WindowSeconds: DefaultWindowSeconds,
		Limit:         DefaultLimit,
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.WindowSeconds <= 0 {
		return ErrInvalidWindow
	}
	if c.Limit <= 0 {
		return ErrInvalidLimit
	}
	return nil
}

// Detector tracks message arrival times over a sliding window. Each session
// owns one detector; the relay calls Allow once per inbound device frame.
type Detector struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	stamps []time.Time
}

func NewDetector(cfg *Config) (*Detector, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		window: time.Duration(cfg.WindowSeconds) * time.Second,
		limit:  cfg.Limit,
	}, nil
}

// Allow records an arrival at now and reports whether the message is within
// the flood limit. It returns false exactly on the message that pushes the
// in-window count past the limit.
func (d *Detector) Allow(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stamps = append(d.stamps, now)

	// keep arrivals strictly younger than the window
	idx := 0
	for idx < len(d.stamps) && now.Sub(d.stamps[idx]) >= d.window {
		idx++
	}
	if idx > 0 {
		d.stamps = append(d.stamps[:0], d.stamps[idx:]...)
	}
	return len(d.stamps) <= d.limit
}

// Count returns the number of arrivals currently inside the window.
func (d *Detector) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.stamps)
}
