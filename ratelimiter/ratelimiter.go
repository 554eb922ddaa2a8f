package ratelimiter

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/oddbit-project/chargebridge/utils"
)

const (
	ErrInvalidRateLimit       = utils.Error("rate limit must be positive")
	ErrInvalidBurst           = utils.Error("burst must be positive")
	ErrInvalidTTL             = utils.Error("TTL must be positive")
	ErrInvalidCleanupInterval = utils.Error("cleanup interval must be positive")
)

// Config tunes connection admission. RateLimit and Burst feed each host's
// token bucket; TTL and CleanupInterval bound how long idle hosts stay
// tracked.
type Config struct {
	RateLimit       rate.Limit `json:"rateLimit"`
	Burst           int        `json:"burst"`
	TTL             int        `json:"ttl"`             // seconds
	CleanupInterval int        `json:"cleanupInterval"` // seconds
}

// NewConfig returns defaults tuned for connection admission: a device may
// retry in short bursts but sustained hammering gets throttled.
func NewConfig() *Config {
	return &Config{
		RateLimit:       2,
		Burst:           5,
		TTL:             300,
		CleanupInterval: 60,
	}
}

func (c *Config) Validate() error {
	if c.RateLimit <= 0 {
		return ErrInvalidRateLimit
	}
	if c.Burst <= 0 {
		return ErrInvalidBurst
	}
	if c.TTL <= 0 {
		return ErrInvalidTTL
	}
	if c.CleanupInterval <= 0 {
		return ErrInvalidCleanupInterval
	}
	return nil
}

// bucket pairs a host's token bucket with its last admission attempt.
type bucket struct {
	tokens  *rate.Limiter
	touched time.Time
}

// RateLimiter admits or rejects connection attempts per remote host. Buckets
// for hosts that stay away longer than the TTL are dropped by a background
// sweep.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	limit rate.Limit
	burst int
	ttl   time.Duration
	sweep time.Duration
	clock func() time.Time

	done      chan struct{}
	stopped   chan struct{}
	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewRateLimiter(cfg *Config) (*RateLimiter, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   cfg.RateLimit,
		burst:   cfg.Burst,
		ttl:     time.Duration(cfg.TTL) * time.Second,
		sweep:   time.Duration(cfg.CleanupInterval) * time.Second,
		clock:   time.Now,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Start launches the sweep loop. Subsequent calls are no-ops.
func (r *RateLimiter) Start() {
	r.startOnce.Do(func() {
		r.started.Store(true)
		go r.loop()
	})
}

// GetLimiter returns the host's token bucket, creating it on first sight.
func (r *RateLimiter) GetLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.buckets[key]
	if b == nil {
		b = &bucket{tokens: rate.NewLimiter(r.limit, r.burst)}
		r.buckets[key] = b
	}
	b.touched = r.clock()
	return b.tokens
}

// Allow reports whether the key may act now, consuming a token if so.
func (r *RateLimiter) Allow(key string) bool {
	return r.GetLimiter(key).Allow()
}

// AllowAddr applies the limit to the host part of a remote address, so all
// connections from one device share a bucket regardless of source port.
func (r *RateLimiter) AllowAddr(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return r.Allow(host)
}

// Size returns the number of tracked hosts.
func (r *RateLimiter) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

// expire drops buckets whose last admission attempt is past the TTL.
func (r *RateLimiter) expire() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock().Add(-r.ttl)
	for host, b := range r.buckets {
		if b.touched.Before(cutoff) {
			delete(r.buckets, host)
		}
	}
}

func (r *RateLimiter) loop() {
	defer close(r.stopped)

	ticker := time.NewTicker(r.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.expire()
		}
	}
}

// Shutdown stops the sweep loop and waits for it to exit. Safe to call
// multiple times and without a prior Start.
func (r *RateLimiter) Shutdown() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
	if r.started.Load() {
		<-r.stopped
	}
}

// ShutdownWithContext stops the sweep loop, waiting up to the context
// deadline for it to exit.
func (r *RateLimiter) ShutdownWithContext(ctx context.Context) error {
	r.stopOnce.Do(func() {
		close(r.done)
	})
	if !r.started.Load() {
		return nil
	}
	select {
	case <-r.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
