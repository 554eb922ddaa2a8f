package store

import (
	"time"

	"github.com/oddbit-project/chargebridge/provider/redis"
	"github.com/oddbit-project/chargebridge/utils"
)

const (
	DefaultTTL             = time.Minute * 5
	DefaultCleanupInterval = time.Minute
	DefaultMaxSize         = 10000 // ~1.4Mb of uuid nonces
)

// Nonce cache scopes; a global cache rejects a nonce replayed on any
// connection, a session cache only rejects replays within one connection
const (
	ScopeGlobal  = "global"
	ScopeSession = "session"
)

const (
	ErrNilConfig      = utils.Error("Config is nil")
	ErrInvalidTTL     = utils.Error("ttlSeconds must be > 0")
	ErrInvalidMaxSize = utils.Error("maxEntries must be > 0")
	ErrInvalidScope   = utils.Error("scope must be 'global' or 'session'")
	ErrScopeConflict  = utils.Error("redis backend requires global scope")
)

// NonceStore tracks consumed nonces for replay detection
type NonceStore interface {
	// AddIfNotExists atomically consumes a nonce; returns true if the nonce
	// was fresh, false if it was already seen
	AddIfNotExists(nonce string) bool
	Close() error
}

// Config nonce cache settings
type Config struct {
	TTLSeconds             int           `json:"ttlSeconds"`
	MaxEntries             int           `json:"maxEntries"`
	CleanupIntervalSeconds int           `json:"cleanupIntervalSeconds"`
	Scope                  string        `json:"scope"`
	Redis                  *redis.Config `json:"redis,omitempty"` // optional shared backend for multi-instance deployments
}

// NewConfig returns the default nonce cache configuration
func NewConfig() *Config {
	return &Config{
		TTLSeconds:             int(DefaultTTL.Seconds()),
		MaxEntries:             DefaultMaxSize,
		CleanupIntervalSeconds: int(DefaultCleanupInterval.Seconds()),
		Scope:                  ScopeGlobal,
	}
}

// Validate Config
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.TTLSeconds <= 0 {
		return ErrInvalidTTL
	}
	if c.MaxEntries <= 0 {
		return ErrInvalidMaxSize
	}
	if c.Scope != ScopeGlobal && c.Scope != ScopeSession {
		return ErrInvalidScope
	}
	if c.Redis != nil {
		// a shared redis cache would collapse per-session scoping
		if c.Scope == ScopeSession {
			return ErrScopeConflict
		}
		return c.Redis.Validate()
	}
	return nil
}

// NewNonceStore builds a nonce store from the configuration; a redis-backed
// store is returned when a redis backend is configured, an in-memory store
// otherwise
func NewNonceStore(cfg *Config) (NonceStore, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if cfg.Redis != nil {
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisNonceStore(client, ttl), nil
	}
	return NewMemoryNonceStore(
		WithTTL(ttl),
		WithMaxSize(cfg.MaxEntries),
		WithCleanupInterval(time.Duration(cfg.CleanupIntervalSeconds)*time.Second),
	), nil
}
