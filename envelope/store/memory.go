package store

import (
	"sync"
	"time"
)

// nonceEntry pairs a nonce with the expiry it was inserted with, so stale
// queue entries left behind by eviction or re-insertion can be recognized
type nonceEntry struct {
	nonce   string
	expires time.Time
}

type memStore struct {
	sync.Mutex
	nonces          map[string]time.Time
	order           []nonceEntry // insertion order, oldest first
	maxSize         int
	ttl             time.Duration
	cleanupInterval time.Duration
	done            chan struct{}
	closeOnce       sync.Once
	now             func() time.Time
}

type MemStoreOption func(*memStore)

func WithTTL(ttl time.Duration) MemStoreOption {
	return func(store *memStore) {
		store.ttl = ttl
	}
}

func WithMaxSize(maxSize int) MemStoreOption {
	return func(store *memStore) {
		store.maxSize = maxSize
	}
}

// WithCleanupInterval sets the background cleanup period; a zero or negative
// interval disables the background loop, leaving pruning to AddIfNotExists
func WithCleanupInterval(interval time.Duration) MemStoreOption {
	return func(store *memStore) {
		store.cleanupInterval = interval
	}
}

// WithClock overrides the time source, mainly for tests
func WithClock(now func() time.Time) MemStoreOption {
	return func(store *memStore) {
		store.now = now
	}
}

func NewMemoryNonceStore(opts ...MemStoreOption) NonceStore {
	store := &memStore{
		nonces:          make(map[string]time.Time),
		ttl:             DefaultTTL,
		cleanupInterval: DefaultCleanupInterval,
		maxSize:         DefaultMaxSize,
		done:            make(chan struct{}),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}

	if store.cleanupInterval > 0 {
		go store.cleanupLoop()
	}
	return store
}

// AddIfNotExists consumes a nonce. Expired entries are pruned first, then the
// oldest entries are evicted if the cache is at capacity; only then is the
// membership check performed, so a nonce older than the TTL can be reused.
func (ns *memStore) AddIfNotExists(nonce string) bool {
	ns.Lock()
	defer ns.Unlock()

	now := ns.now()
	ns.pruneLocked(now)

	if len(ns.nonces) >= ns.maxSize {
		ns.evictOldestLocked()
	}

	if _, exists := ns.nonces[nonce]; exists {
		return false
	}

	expires := now.Add(ns.ttl)
	ns.nonces[nonce] = expires
	ns.order = append(ns.order, nonceEntry{nonce: nonce, expires: expires})
	return true
}

// Len returns the number of live nonces
func (ns *memStore) Len() int {
	ns.Lock()
	defer ns.Unlock()
	return len(ns.nonces)
}

func (ns *memStore) Close() error {
	ns.closeOnce.Do(func() {
		close(ns.done)
	})
	return nil
}

// pruneLocked removes expired entries from the head of the insertion queue.
// Entries share a TTL, so expiry times are monotonic in insertion order and
// the walk can stop at the first live entry.
func (ns *memStore) pruneLocked(now time.Time) {
	for len(ns.order) > 0 {
		head := ns.order[0]
		expires, ok := ns.nonces[head.nonce]
		if !ok || !expires.Equal(head.expires) {
			// stale queue entry, the nonce was evicted or re-inserted
			ns.order = ns.order[1:]
			continue
		}
		if now.After(expires) {
			delete(ns.nonces, head.nonce)
			ns.order = ns.order[1:]
			continue
		}
		break
	}
}

// evictOldestLocked drops oldest-inserted entries until below capacity
func (ns *memStore) evictOldestLocked() {
	for len(ns.nonces) >= ns.maxSize && len(ns.order) > 0 {
		head := ns.order[0]
		ns.order = ns.order[1:]
		if expires, ok := ns.nonces[head.nonce]; ok && expires.Equal(head.expires) {
			delete(ns.nonces, head.nonce)
		}
	}
}

func (ns *memStore) cleanupLoop() {
	ticker := time.NewTicker(ns.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ns.Lock()
			ns.pruneLocked(ns.now())
			ns.Unlock()
		case <-ns.done:
			return
		}
	}
}
