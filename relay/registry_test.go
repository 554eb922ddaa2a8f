package relay

import (
	"fmt"
	"testing"
	"time"

	"github.com/oddbit-project/chargebridge/audit"
	"github.com/oddbit-project/chargebridge/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bareSession(id string) *Session {
	return &Session{
		id:      id,
		pending: make(map[string]chan string),
		done:    make(chan struct{}),
	}
}

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.Count())

	s := bareSession("CP001")
	require.Nil(t, r.Add(s))
	assert.Equal(t, 1, r.Count())

	got, ok := r.Get("CP001")
	require.True(t, ok)
	assert.Same(t, s, got)

	r.Remove(s)
	assert.Equal(t, 0, r.Count())
	_, ok = r.Get("CP001")
	assert.False(t, ok)
}

func TestRegistrySupersede(t *testing.T) {
	r := NewRegistry()
	first := bareSession("CP001")
	second := bareSession("CP001")

	require.Nil(t, r.Add(first))
	prev := r.Add(second)
	assert.Same(t, first, prev)
	assert.Equal(t, 1, r.Count())

	// removing the stale session must not evict its replacement
	r.Remove(first)
	got, ok := r.Get("CP001")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry()
	a := bareSession("CP-A")
	a.Touch(time.Unix(1700000000, 0))
	b := bareSession("CP-B")
	b.Touch(time.Unix(1700000100, 0))
	r.Add(a)
	r.Add(b)

	targets := r.Snapshot()
	require.Len(t, targets, 2)

	seen := make(map[string]time.Time, len(targets))
	for _, target := range targets {
		seen[target.ID] = target.LastSeen
	}
	assert.True(t, seen["CP-A"].Equal(time.Unix(1700000000, 0)))
	assert.True(t, seen["CP-B"].Equal(time.Unix(1700000100, 0)))
}

func TestSessionReplyRouting(t *testing.T) {
	s := bareSession("CP001")

	ch := s.awaitReply("msg-1")
	require.True(t, s.routeReply("msg-1", `[3,"msg-1",{}]`))
	assert.Equal(t, `[3,"msg-1",{}]`, <-ch)

	// a routed id is consumed
	assert.False(t, s.routeReply("msg-1", "late"))

	// a dropped id no longer routes
	s.awaitReply("msg-2")
	s.dropReply("msg-2")
	assert.False(t, s.routeReply("msg-2", "orphan"))

	assert.False(t, s.routeReply("never-registered", "x"))
}

func TestSessionIDFromPath(t *testing.T) {
	assert.Equal(t, "CP001", sessionID("/CP001"))
	assert.Equal(t, "CP001", sessionID("/CP001/"))
	assert.Equal(t, "site-a/CP001", sessionID("/site-a/CP001"))

	// devices that connect without a path still get a usable id
	assert.NotEmpty(t, sessionID("/"))
	assert.NotEmpty(t, sessionID(""))
	assert.NotEqual(t, sessionID(""), sessionID(""))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"replay", envelope.ErrNonceReplayed, CloseReplay, audit.KindReplayDetected},
		{"skew", envelope.ErrTimestampSkew, CloseTamper, audit.KindTamperDetected},
		{"signature", envelope.ErrSignatureMismatch, CloseTamper, audit.KindTamperDetected},
		{"flood", ErrFloodDetected, CloseFlood, audit.KindFloodDetected},
		{"reorder", ErrReorderDetected, CloseReorder, audit.KindReorderDetected},
		{"suppression", ErrSuppressionDetected, CloseSuppression, audit.KindSuppressionDetected},
		{"malformed", envelope.ErrMalformed, CloseProtocolError, audit.KindProtocolError},
		{"wrapped", fmt.Errorf("verify: %w", envelope.ErrNonceReplayed), CloseReplay, audit.KindReplayDetected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := classify(tt.err)
			assert.Equal(t, tt.code, v.code)
			assert.Equal(t, tt.kind, v.kind)
			assert.Equal(t, tt.err, v.err)
		})
	}
}

func TestCloseReason(t *testing.T) {
	assert.Equal(t, "replay detected", closeReason(audit.KindReplayDetected))
	assert.Equal(t, "tampering detected", closeReason(audit.KindTamperDetected))
	assert.Equal(t, "flood detected", closeReason(audit.KindFloodDetected))
	assert.Equal(t, "reordering detected", closeReason(audit.KindReorderDetected))
	assert.Equal(t, "heartbeat timeout", closeReason(audit.KindSuppressionDetected))
	assert.Equal(t, "protocol error", closeReason(audit.KindProtocolError))
}

func TestRelayConfigValidate(t *testing.T) {
	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.Validate(), ErrNilConfig)

	cfg := NewConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultResponseWaitSeconds, cfg.ResponseWaitSeconds)

	cfg.ResponseWaitSeconds = -1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidResponseWait)

	// zero disables the bounded wait entirely
	cfg.ResponseWaitSeconds = 0
	assert.NoError(t, cfg.Validate())
}
