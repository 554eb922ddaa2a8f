package relay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oddbit-project/chargebridge/envelope"
	"github.com/oddbit-project/chargebridge/envelope/store"
	"github.com/oddbit-project/chargebridge/flood"
	"github.com/oddbit-project/chargebridge/sequence"
	"github.com/oddbit-project/chargebridge/ws"
)

// Session is the per-connection context: the device and upstream conns, the
// codec bound to this session's replay cache, the flood and order state, and
// the liveness timestamp read by the watchdog.
type Session struct {
	id        string
	remote    string
	device    *ws.Conn
	upstream  *ws.Conn
	codec     *envelope.Codec
	flood     *flood.Detector
	order     *sequence.Tracker
	nonces    store.NonceStore // owned session-scoped cache, nil when the cache is global
	createdAt time.Time
	lastSeen  atomic.Int64 // unix nanos

	pendingMu sync.Mutex
	pending   map[string]chan string

	closeOnce   sync.Once
	closeMu     sync.Mutex
	closeCode   int
	closeReason string
	done        chan struct{}
}

func newSession(id string, device, upstream *ws.Conn, codec *envelope.Codec,
	floodDet *flood.Detector, order *sequence.Tracker, nonces store.NonceStore,
	now time.Time) *Session {
	s := &Session{
		id:        id,
		remote:    device.RemoteAddr(),
		device:    device,
		upstream:  upstream,
		codec:     codec,
		flood:     floodDet,
		order:     order,
		nonces:    nonces,
		createdAt: now,
		pending:   make(map[string]chan string),
		done:      make(chan struct{}),
	}
	s.Touch(now)
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) RemoteAddr() string {
	return s.remote
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Touch records device activity for liveness tracking
func (s *Session) Touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// awaitReply registers interest in the correlated response. The returned
// channel receives at most one payload; the caller must dropReply when done.
func (s *Session) awaitReply(correlationID string) chan string {
	ch := make(chan string, 1)
	s.pendingMu.Lock()
	s.pending[correlationID] = ch
	s.pendingMu.Unlock()
	return ch
}

// routeReply hands an upstream response to the pump waiting on its
// correlation id; returns false when nobody is waiting
func (s *Session) routeReply(correlationID string, payload string) bool {
	s.pendingMu.Lock()
	ch, ok := s.pending[correlationID]
	if ok {
		delete(s.pending, correlationID)
	}
	s.pendingMu.Unlock()
	if !ok {
		return false
	}
	ch <- payload
	return true
}

func (s *Session) dropReply(correlationID string) {
	s.pendingMu.Lock()
	delete(s.pending, correlationID)
	s.pendingMu.Unlock()
}

// terminate closes both connections exactly once. The device side carries the
// given close code; the upstream side is closed normally. Subsequent calls
// are no-ops, so the first terminal condition wins.
func (s *Session) terminate(code int, reason string) {
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		s.closeCode = code
		s.closeReason = reason
		s.closeMu.Unlock()
		close(s.done)
		_ = s.device.CloseWithCode(code, reason)
		_ = s.upstream.CloseWithCode(websocket.CloseNormalClosure, "session closed")
	})
}

// terminated reports whether terminate ran
func (s *Session) terminated() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// CloseState returns the recorded close code and reason; zero values before
// termination
func (s *Session) CloseState() (int, string) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closeCode, s.closeReason
}

// teardown releases session-owned resources after both pumps have exited
func (s *Session) teardown() {
	if s.nonces != nil {
		_ = s.nonces.Close()
	}
}
