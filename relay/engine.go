package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oddbit-project/chargebridge/alert"
	"github.com/oddbit-project/chargebridge/audit"
	"github.com/oddbit-project/chargebridge/envelope"
	"github.com/oddbit-project/chargebridge/envelope/store"
	"github.com/oddbit-project/chargebridge/flood"
	"github.com/oddbit-project/chargebridge/log"
	"github.com/oddbit-project/chargebridge/metrics"
	"github.com/oddbit-project/chargebridge/ocpp"
	"github.com/oddbit-project/chargebridge/sequence"
	"github.com/oddbit-project/chargebridge/utils"
	"github.com/oddbit-project/chargebridge/ws"
)

const (
	// DefaultResponseWaitSeconds bounds the wait for a correlated upstream
	// response after forwarding a call
	DefaultResponseWaitSeconds = 2

	auditTimeout = 5 * time.Second
)

const (
	ErrNilConfig           = utils.Error("Config is nil")
	ErrNilCodec            = utils.Error("codec is nil")
	ErrNilDialer           = utils.Error("dialer is nil")
	ErrInvalidResponseWait = utils.Error("responseWaitSeconds cannot be negative")
)

// Config relay engine settings
type Config struct {
	ResponseWaitSeconds int `json:"responseWaitSeconds"`
}

// NewConfig returns relay defaults
func NewConfig() *Config {
	return &Config{
		ResponseWaitSeconds: DefaultResponseWaitSeconds,
	}
}

// Validate Config
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.ResponseWaitSeconds < 0 {
		return ErrInvalidResponseWait
	}
	return nil
}

// Engine owns the session lifecycle: it accepts device connections, dials
// the central system, runs the two per-session pumps and applies the
// detection pipeline to every device frame.
type Engine struct {
	cfg      *Config
	codec    *envelope.Codec
	dialer   *ws.Dialer
	registry *Registry
	logger   *log.Logger
	metrics  *metrics.Metrics
	reporter *metrics.Reporter
	sink     audit.Sink
	notifier alert.Notifier
	floodCfg *flood.Config
	orderCfg *sequence.Config
	storeCfg *store.Config // per-session replay caches when scope is session
	wait     time.Duration
	clock    func() time.Time
}

type EngineOption func(*Engine)

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithReporter(r *metrics.Reporter) EngineOption {
	return func(e *Engine) {
		e.reporter = r
	}
}

func WithAuditSink(s audit.Sink) EngineOption {
	return func(e *Engine) {
		e.sink = s
	}
}

func WithNotifier(n alert.Notifier) EngineOption {
	return func(e *Engine) {
		e.notifier = n
	}
}

func WithFloodConfig(cfg *flood.Config) EngineOption {
	return func(e *Engine) {
		e.floodCfg = cfg
	}
}

func WithOrderConfig(cfg *sequence.Config) EngineOption {
	return func(e *Engine) {
		e.orderCfg = cfg
	}
}

// WithNonceScope passes the replay cache settings; when scope is session each
// session gets its own in-memory cache instead of the codec's shared one
func WithNonceScope(cfg *store.Config) EngineOption {
	return func(e *Engine) {
		e.storeCfg = cfg
	}
}

// WithClock injects a time source for tests
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) {
		e.clock = clock
	}
}

func NewEngine(cfg *Config, codec *envelope.Codec, dialer *ws.Dialer, logger *log.Logger, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if codec == nil {
		return nil, ErrNilCodec
	}
	if dialer == nil {
		return nil, ErrNilDialer
	}
	if logger == nil {
		logger = log.New("relay")
	}
	e := &Engine{
		cfg:      cfg,
		codec:    codec,
		dialer:   dialer,
		registry: NewRegistry(),
		logger:   logger,
		wait:     time.Duration(cfg.ResponseWaitSeconds) * time.Second,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	if e.sink == nil {
		e.sink = audit.NopSink{}
	}
	if e.notifier == nil {
		e.notifier = alert.NopNotifier{}
	}
	if e.floodCfg == nil {
		e.floodCfg = flood.NewConfig()
	}
	if e.orderCfg == nil {
		e.orderCfg = sequence.NewConfig()
	}
	if err := e.floodCfg.Validate(); err != nil {
		return nil, err
	}
	if err := e.orderCfg.Validate(); err != nil {
		return nil, err
	}
	if e.storeCfg != nil {
		if err := e.storeCfg.Validate(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Registry exposes the live session registry
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Metrics exposes the engine counters
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// Handle runs one device connection to completion; it is the ws server
// handler
func (e *Engine) Handle(conn *ws.Conn) {
	id := sessionID(conn.Path())
	logger := e.logger.WithField("session_id", id)

	upstream, err := e.dialer.Dial(context.Background(), id)
	if err != nil {
		logger.Error(err, "upstream dial failed", log.KV{"remote": conn.RemoteAddr()})
		e.recordEvent(audit.Event{
			Timestamp:  e.clock(),
			Kind:       audit.KindUpstreamUnavailable,
			Severity:   audit.SeverityWarning,
			SessionID:  id,
			RemoteAddr: conn.RemoteAddr(),
			Detail:     err.Error(),
		})
		_ = conn.CloseWithCode(websocket.CloseInternalServerErr, "upstream unavailable")
		return
	}

	s, err := e.newSession(id, conn, upstream)
	if err != nil {
		logger.Error(err, "session setup failed")
		_ = conn.CloseWithCode(websocket.CloseInternalServerErr, "session setup failed")
		_ = upstream.Close()
		return
	}

	if prev := e.registry.Add(s); prev != nil {
		logger.Warn("superseding stale session", log.KV{"remote": prev.RemoteAddr()})
		prev.terminate(websocket.CloseNormalClosure, "session superseded")
	}

	logger.Info("session started", log.KV{"remote": s.RemoteAddr()})
	e.recordEvent(audit.Event{
		Timestamp:  e.clock(),
		Kind:       audit.KindSessionStarted,
		Severity:   audit.SeverityInfo,
		SessionID:  id,
		RemoteAddr: s.RemoteAddr(),
	})

	upstreamDone := make(chan struct{})
	go func() {
		defer close(upstreamDone)
		e.upstreamPump(s, logger)
	}()

	e.devicePump(s, logger)

	// make sure both conns are closed so the upstream pump unblocks
	s.terminate(websocket.CloseNormalClosure, "device disconnected")
	<-upstreamDone

	e.registry.Remove(s)
	s.teardown()

	code, reason := s.CloseState()
	logger.Info("session closed", log.KV{"code": code, "reason": reason})
	e.recordEvent(audit.Event{
		Timestamp:  e.clock(),
		Kind:       audit.KindSessionClosed,
		Severity:   audit.SeverityInfo,
		SessionID:  id,
		RemoteAddr: s.RemoteAddr(),
		CloseCode:  code,
		Detail:     reason,
	})
}

// Shutdown terminates every live session
func (e *Engine) Shutdown() {
	for _, s := range e.registry.Sessions() {
		s.terminate(websocket.CloseGoingAway, "server shutting down")
	}
}

// ExpireIdleSession is the watchdog callback for sessions that stopped
// sending heartbeats
func (e *Engine) ExpireIdleSession(id string, idle time.Duration) {
	s, ok := e.registry.Get(id)
	if !ok {
		return
	}
	logger := e.logger.WithField("session_id", id)
	err := fmt.Errorf("%w: silent for %s", ErrSuppressionDetected, idle.Truncate(time.Millisecond))
	e.violation(s, logger, classify(err), "", "")
}

func (e *Engine) newSession(id string, device, upstream *ws.Conn) (*Session, error) {
	floodDet, err := flood.NewDetector(e.floodCfg)
	if err != nil {
		return nil, err
	}
	order, err := sequence.NewTracker(e.orderCfg)
	if err != nil {
		return nil, err
	}
	codec := e.codec
	var nonces store.NonceStore
	if e.storeCfg != nil && e.storeCfg.Scope == store.ScopeSession {
		nonces = store.NewMemoryNonceStore(
			store.WithTTL(time.Duration(e.storeCfg.TTLSeconds)*time.Second),
			store.WithMaxSize(e.storeCfg.MaxEntries),
			store.WithCleanupInterval(time.Duration(e.storeCfg.CleanupIntervalSeconds)*time.Second),
		)
		codec = codec.WithStore(nonces)
	}
	return newSession(id, device, upstream, codec, floodDet, order, nonces, e.clock()), nil
}

// devicePump reads device frames until a terminal condition
func (e *Engine) devicePump(s *Session, logger *log.Logger) {
	for {
		data, err := s.device.ReadMessage()
		if err != nil {
			if !s.terminated() {
				logger.Debug("device read ended", log.KV{"error": err.Error()})
			}
			return
		}
		if !e.processDeviceFrame(s, logger, data) {
			return
		}
	}
}

// processDeviceFrame runs one device frame through the detection pipeline
// and forwards it upstream; returns false when the session is terminal
func (e *Engine) processDeviceFrame(s *Session, logger *log.Logger, data []byte) bool {
	now := e.clock()
	s.Touch(now)
	e.metrics.IncTotal()

	if !s.flood.Allow(now) {
		e.violation(s, logger, classify(ErrFloodDetected), "", "")
		return false
	}

	if !json.Valid(data) {
		e.violation(s, logger, classify(fmt.Errorf("%w: invalid json", ErrProtocolError)), "", "")
		return false
	}

	// enveloped frames are verified and unwrapped; raw legacy frames pass
	// through the remaining checks unchanged
	payload := string(data)
	if envelope.Detect(data) {
		inner, err := s.codec.Unwrap(data)
		if err != nil {
			e.violation(s, logger, classify(err), "", "")
			return false
		}
		payload = inner
	}

	frame, err := ocpp.Parse([]byte(payload))
	if err != nil {
		if !errors.Is(err, ocpp.ErrNotFrame) {
			e.violation(s, logger, classify(fmt.Errorf("%w: %v", ErrProtocolError, err)), "", "")
			return false
		}
		frame = nil // not an ocpp frame, forwarded untouched
	}

	action, correlationID := "", ""
	if frame != nil {
		correlationID = frame.CorrelationID
		if frame.IsCall() {
			action = frame.Action
			if !s.order.Allow(action) {
				e.violation(s, logger, classify(ErrReorderDetected), action, correlationID)
				return false
			}
		}
	}

	// the proxy re-signs with a fresh envelope regardless of how the frame
	// arrived
	sealed, err := s.codec.Seal(payload)
	if err != nil {
		logger.Error(err, "envelope signing failed")
		s.terminate(websocket.CloseInternalServerErr, "internal error")
		return false
	}

	wantReply := frame != nil && frame.IsCall() && e.wait > 0
	var reply chan string
	if wantReply {
		reply = s.awaitReply(correlationID)
		defer s.dropReply(correlationID)
	}

	start := e.clock()
	if err = s.upstream.WriteMessage(sealed); err != nil {
		if !s.terminated() {
			logger.Error(err, "upstream write failed")
			s.terminate(websocket.CloseInternalServerErr, "upstream unavailable")
		}
		return false
	}
	e.metrics.IncForwarded()

	if wantReply && !e.relayReply(s, logger, reply, start) {
		return false
	}

	if e.reporter != nil {
		e.reporter.MaybeReport()
	}
	return true
}

// relayReply waits up to the configured window for the correlated response
// and forwards it to the device. An absent response is not an error; a late
// one is delivered by the upstream pump.
func (e *Engine) relayReply(s *Session, logger *log.Logger, reply chan string, start time.Time) bool {
	timer := time.NewTimer(e.wait)
	defer timer.Stop()
	select {
	case payload := <-reply:
		e.metrics.ObserveLatency(e.clock().Sub(start))
		if err := s.device.WriteMessage([]byte(payload)); err != nil {
			if !s.terminated() {
				logger.Debug("device write failed", log.KV{"error": err.Error()})
				s.terminate(websocket.CloseNormalClosure, "device disconnected")
			}
			return false
		}
	case <-timer.C:
		// no immediate reply
	case <-s.done:
		return false
	}
	return true
}

// upstreamPump reads central frames, verifies envelopes and forwards the
// inner payloads to the device
func (e *Engine) upstreamPump(s *Session, logger *log.Logger) {
	for {
		data, err := s.upstream.ReadMessage()
		if err != nil {
			if !s.terminated() {
				logger.Warn("upstream closed", log.KV{"error": err.Error()})
				s.terminate(websocket.CloseInternalServerErr, "upstream unavailable")
			}
			return
		}
		if !e.processUpstreamFrame(s, logger, data) {
			return
		}
	}
}

func (e *Engine) processUpstreamFrame(s *Session, logger *log.Logger, data []byte) bool {
	payload := string(data)
	if envelope.Detect(data) {
		inner, err := s.codec.Unwrap(data)
		if err != nil {
			// fail closed on an unverifiable central frame
			e.violation(s, logger, classify(err), "", "")
			return false
		}
		payload = inner
	}

	// responses are handed to the device pump waiting on the correlation id;
	// everything else goes straight to the device
	if frame, err := ocpp.Parse([]byte(payload)); err == nil && !frame.IsCall() {
		if s.routeReply(frame.CorrelationID, payload) {
			return true
		}
	}

	if err := s.device.WriteMessage([]byte(payload)); err != nil {
		if !s.terminated() {
			logger.Debug("device write failed", log.KV{"error": err.Error()})
			s.terminate(websocket.CloseNormalClosure, "device disconnected")
		}
		return false
	}
	return true
}

// violation records a detected attack and terminates the session with its
// close code
func (e *Engine) violation(s *Session, logger *log.Logger, v violation, action, correlationID string) {
	e.metrics.IncBlocked()
	switch v.kind {
	case audit.KindReplayDetected:
		e.metrics.IncReplay()
	case audit.KindTamperDetected:
		e.metrics.IncTamper()
	case audit.KindFloodDetected:
		e.metrics.IncFlood()
	case audit.KindReorderDetected:
		e.metrics.IncReorder()
	case audit.KindSuppressionDetected:
		e.metrics.IncSuppress()
	}

	logger.Warn("security violation", log.KV{
		"kind":   v.kind,
		"code":   v.code,
		"remote": s.RemoteAddr(),
		"error":  v.err.Error(),
	})

	ev := audit.Event{
		Timestamp:     e.clock(),
		Kind:          v.kind,
		Severity:      audit.SeveritySecurity,
		SessionID:     s.ID(),
		RemoteAddr:    s.RemoteAddr(),
		Action:        action,
		CorrelationID: correlationID,
		CloseCode:     v.code,
		Detail:        v.err.Error(),
	}
	e.recordEvent(ev)
	if err := e.notifier.Notify(context.Background(), ev); err != nil {
		logger.Warn("alert delivery failed", log.KV{"error": err.Error()})
	}

	s.terminate(v.code, closeReason(v.kind))
}

func (e *Engine) recordEvent(ev audit.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := e.sink.Record(ctx, ev); err != nil {
		e.logger.Warn("audit record failed", log.KV{"kind": ev.Kind, "error": err.Error()})
	}
}

// closeReason maps an audit kind onto the generic phrase sent in the close
// frame; detection detail never crosses the wire
func closeReason(kind string) string {
	switch kind {
	case audit.KindReplayDetected:
		return "replay detected"
	case audit.KindTamperDetected:
		return "tampering detected"
	case audit.KindFloodDetected:
		return "flood detected"
	case audit.KindReorderDetected:
		return "reordering detected"
	case audit.KindSuppressionDetected:
		return "heartbeat timeout"
	default:
		return "protocol error"
	}
}

// sessionID derives the connection id from the request path, generating one
// when the device connected without a path
func sessionID(path string) string {
	id := strings.Trim(path, "/")
	if id == "" {
		return uuid.NewString()
	}
	return id
}
