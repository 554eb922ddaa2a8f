package store

import (
	"context"
	"time"

	"github.com/oddbit-project/chargebridge/provider/redis"
)

// redisStore implements NonceStore using redis as the backend, so multiple
// proxy instances can share one replay cache
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

type RedisStoreOption func(*redisStore)

// WithPrefix sets a key prefix for nonce storage
func WithPrefix(prefix string) RedisStoreOption {
	return func(rs *redisStore) {
		rs.prefix = prefix
	}
}

// NewRedisNonceStore creates a new redis-backed nonce store
func NewRedisNonceStore(client *redis.Client, ttl time.Duration, opts ...RedisStoreOption) NonceStore {
	store := &redisStore{
		client: client,
		ttl:    ttl,
		prefix: "nonce:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// AddIfNotExists atomically consumes a nonce via SETNX.
// Returns false if the nonce already exists or on any error; failing closed
// keeps replays rejected during redis connectivity problems.
func (r *redisStore) AddIfNotExists(nonce string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.client.Timeout())
	defer cancel()

	key := r.client.Key(r.prefix + nonce)
	success, err := r.client.Redis.SetNX(ctx, key, "1", r.ttl).Result()
	if err != nil {
		return false
	}
	return success
}

// Close closes the underlying redis client
func (r *redisStore) Close() error {
	return r.client.Close()
}
