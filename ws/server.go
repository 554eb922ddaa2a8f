package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oddbit-project/chargebridge/log"
	"github.com/oddbit-project/chargebridge/log/writer"
)

// Handler runs one accepted device connection; the server closes the
// underlying socket when it returns.
type Handler func(conn *Conn)

// AcceptGate decides whether a remote address may start a handshake.
type AcceptGate func(remoteAddr string) bool

// Server is the device-facing WebSocket listener.
type Server struct {
	config   *ListenerConfig
	handler  Handler
	gate     AcceptGate
	upgrader websocket.Upgrader
	server   *http.Server
	logger   *log.Logger
}

type ServerOption func(*Server)

// WithAcceptGate installs a pre-upgrade admission check, typically the
// per-address rate limiter.
func WithAcceptGate(gate AcceptGate) ServerOption {
	return func(s *Server) {
		s.gate = gate
	}
}

func NewServer(cfg *ListenerConfig, handler Handler, logger *log.Logger, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = NewListenerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New("ws")
	}

	s := &Server{
		config:  cfg,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			Subprotocols:     []string{cfg.Subprotocol},
			HandshakeTimeout: time.Duration(cfg.HandshakeTimeoutSeconds) * time.Second,
			// charge points are not browsers; origin checks do not apply
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.server = &http.Server{
		Addr:     cfg.Addr(),
		Handler:  http.HandlerFunc(s.serveWS),
		ErrorLog: writer.NewErrorLog(logger),
	}
	return s, nil
}

// Handler exposes the upgrade endpoint for tests and embedding.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveWS)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if s.gate != nil && !s.gate(r.RemoteAddr) {
		s.logger.Warn("connection attempt rejected by accept limiter", log.KV{
			"remote_addr": r.RemoteAddr,
		})
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error response
		s.logger.Warn("websocket upgrade failed", log.KV{
			"remote_addr": r.RemoteAddr,
			"error":       err.Error(),
		})
		return
	}
	if s.config.ReadLimitBytes > 0 {
		ws.SetReadLimit(s.config.ReadLimitBytes)
	}

	conn := newConn(ws, r.URL.Path)
	defer conn.Close()
	s.handler(conn)
}

// Start runs the listener until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("websocket listener started", log.KV{
		"addr":        s.config.Addr(),
		"subprotocol": s.config.Subprotocol,
	})
	err := s.server.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
