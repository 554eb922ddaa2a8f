package envelope

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/oddbit-project/chargebridge/crypt/secure"
	"github.com/oddbit-project/chargebridge/envelope/store"
)

const (
	// DefaultAllowedSkew is the accepted clock drift between peers
	DefaultAllowedSkew = 60 * time.Second
)

// Codec signs outbound payloads into envelopes and verifies inbound ones.
// The signing secret is held encrypted in memory and only materialized for
// the duration of each HMAC computation.
type Codec struct {
	secret   *secure.Credential
	nonces   store.NonceStore
	skew     time.Duration
	clock    func() time.Time
	newNonce func() string
}

type CodecOption func(*Codec)

// WithAllowedSkew overrides the accepted timestamp drift.
func WithAllowedSkew(skew time.Duration) CodecOption {
	return func(c *Codec) {
		c.skew = skew
	}
}

// WithNonceStore replaces the default in-memory replay cache.
func WithNonceStore(s store.NonceStore) CodecOption {
	return func(c *Codec) {
		c.nonces = s
	}
}

// WithClock injects a time source for tests.
func WithClock(clock func() time.Time) CodecOption {
	return func(c *Codec) {
		c.clock = clock
	}
}

// WithNonceGenerator injects a nonce source for tests.
func WithNonceGenerator(gen func() string) CodecOption {
	return func(c *Codec) {
		c.newNonce = gen
	}
}

// NewCodec creates a codec around the shared secret. Without options it uses
// a process-local nonce store, the system clock, uuid nonces and the default
// skew window.
func NewCodec(secret *secure.Credential, opts ...CodecOption) *Codec {
	c := &Codec{
		secret:   secret,
		skew:     DefaultAllowedSkew,
		clock:    time.Now,
		newNonce: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.nonces == nil {
		c.nonces = store.NewMemoryNonceStore()
	}
	return c
}

// WithStore returns a codec sharing this codec's secret, skew and clock but
// bound to a different nonce store. Used for per-session replay caches.
func (c *Codec) WithStore(s store.NonceStore) *Codec {
	clone := *c
	clone.nonces = s
	return &clone
}

// sign computes hex(HMAC-SHA256(secret, canonical(payload)+nonce+timestamp)),
// the timestamp rendered as a decimal string.
func (c *Codec) sign(payload string, nonce string, timestamp int64) (string, error) {
	key, err := c.secret.GetBytes()
	if err != nil {
		return "", err
	}
	canonical, _ := Canonicalize(payload)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(canonical))
	mac.Write([]byte(nonce))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Wrap signs payload into a fresh envelope. The payload travels verbatim;
// only the signature is computed over its canonical form.
func (c *Codec) Wrap(payload string) (*Envelope, error) {
	nonce := c.newNonce()
	timestamp := c.clock().Unix()
	signature, err := c.sign(payload, nonce, timestamp)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Version:   Version,
		Nonce:     nonce,
		Timestamp: timestamp,
		Signature: signature,
		Payload:   payload,
	}, nil
}

// Seal wraps payload and serializes the envelope in one step.
func (c *Codec) Seal(payload string) ([]byte, error) {
	env, err := c.Wrap(payload)
	if err != nil {
		return nil, err
	}
	return env.Encode()
}

// Verify checks envelope freshness and authenticity. The nonce is consumed
// before the signature is checked, so a fresh nonce on a message that later
// fails signature verification is still burned and cannot be retried.
func (c *Codec) Verify(env *Envelope) error {
	if env == nil {
		return ErrMalformed
	}
	now := c.clock().Unix()
	drift := now - env.Timestamp
	if drift < 0 {
		drift = -drift
	}
	if drift > int64(c.skew/time.Second) {
		return ErrTimestampSkew
	}
	if !c.nonces.AddIfNotExists(env.Nonce) {
		return ErrNonceReplayed
	}
	expected, err := c.sign(env.Payload, env.Nonce, env.Timestamp)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(env.Signature), []byte(expected)) {
		return ErrSignatureMismatch
	}
	return nil
}

// Unwrap decodes and verifies raw envelope bytes, returning the inner
// payload on success.
func (c *Codec) Unwrap(data []byte) (string, error) {
	env, err := Decode(data)
	if err != nil {
		return "", err
	}
	if err = c.Verify(env); err != nil {
		return "", err
	}
	return env.Payload, nil
}
