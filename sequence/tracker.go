package sequence

import (
	"sync"

	"github.com/oddbit-project/chargebridge/utils"
)

const (
	ErrNilConfig       = utils.Error("config is nil")
	ErrDuplicateAction = utils.Error("expected order contains duplicate action")
)

// DefaultExpectedOrder is the charge point session lifecycle enforced when
// no explicit order is configured.
var DefaultExpectedOrder = []string{
	"BootNotification",
	"Heartbeat",
	"StartTransaction",
	"StopTransaction",
}

type Config struct {
	ExpectedOrder []string `json:"expectedOrder"`
}

func NewConfig() *Config {
	order := make([]string, len(DefaultExpectedOrder))
	copy(order, DefaultExpectedOrder)
	return &Config{ExpectedOrder: order}
}

func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	seen := make(map[string]bool, len(c.ExpectedOrder))
	for _, action := range c.ExpectedOrder {
		if seen[action] {
			return ErrDuplicateAction
		}
		seen[action] = true
	}
	return nil
}

// Tracker enforces a monotonically advancing position over the expected
// action order. Actions outside the list pass through without moving the
// position; repeats of the current phase are allowed. Each session owns one
// tracker.
type Tracker struct {
	mu    sync.Mutex
	index map[string]int
	last  int
}

func NewTracker(cfg *Config) (*Tracker, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	index := make(map[string]int, len(cfg.ExpectedOrder))
	for i, action := range cfg.ExpectedOrder {
		index[action] = i
	}
	return &Tracker{
		index: index,
		last:  -1,
	}, nil
}

// Allow reports whether action may occur at the current position. A known
// action earlier in the order than the furthest one seen is a reordering
// violation.
func (t *Tracker) Allow(action string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, known := t.index[action]
	if !known {
		return true
	}
	if idx < t.last {
		return false
	}
	t.last = idx
	return true
}

// Position returns the furthest action seen so far; ok is false before any
// known action has been observed.
func (t *Tracker) Position() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.last < 0 {
		return "", false
	}
	for action, idx := range t.index {
		if idx == t.last {
			return action, true
		}
	}
	return "", false
}
