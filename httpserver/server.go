package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oddbit-project/chargebridge/log"
	"github.com/oddbit-project/chargebridge/log/writer"
)

// Server is the operational HTTP endpoint: health, status and prometheus
// routes on a gin router.
type Server struct {
	Config *ServerConfig
	Router *gin.Engine
	Server *http.Server
}

// NewRouter creates a gin router with structured logging and recovery
func NewRouter(serverName string, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(RequestLog(serverName))
	router.Use(gin.CustomRecovery(PanicLog))
	return router
}

func NewServer(cfg *ServerConfig, logger *log.Logger) (*Server, error) {
	if cfg == nil {
		cfg = NewServerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(cfg.GetOption("serverName", ServerDefaultName))
	}

	router := NewRouter(cfg.GetOption("serverName", ServerDefaultName), cfg.Debug)
	return &Server{
		Config: cfg,
		Router: router,
		Server: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
			ErrorLog:     writer.NewErrorLog(logger),
		},
	}, nil
}

// AddMiddleware adds a middleware function to the server router
func (s *Server) AddMiddleware(middlewareFunc gin.HandlerFunc) {
	s.Router.Use(middlewareFunc)
}

// Group creates a RouterGroup with the specified relativePath
func (s *Server) Group(relativePath string) *gin.RouterGroup {
	return s.Router.Group(relativePath)
}

// Route returns the gin.Engine instance associated with the Server
func (s *Server) Route() *gin.Engine {
	return s.Router
}

// Start runs the HTTP server until Shutdown is called
func (s *Server) Start() error {
	err := s.Server.ListenAndServe()
	// when Shutdown() is called, the return error is http.ErrServerClosed
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
