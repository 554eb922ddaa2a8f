package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oddbit-project/chargebridge/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	HealthEndpoint  = "/healthz"
	StatusEndpoint  = "/status"
	MetricsEndpoint = "/metrics"
)

// StatusResponse is the /status payload: the counter snapshot plus the
// number of connected charge points.
type StatusResponse struct {
	metrics.Snapshot
	ActiveSessions int `json:"activeSessions"`
}

// RegisterOps wires the health and status endpoints. sessionCount reports the
// live session registry size.
func RegisterOps(s *Server, m *metrics.Metrics, sessionCount func() int) {
	s.Router.GET(HealthEndpoint, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.Router.GET(StatusEndpoint, func(c *gin.Context) {
		c.JSON(http.StatusOK, StatusResponse{
			Snapshot:       m.Snapshot(),
			ActiveSessions: sessionCount(),
		})
	})
}

// RegisterMetrics adds the prometheus endpoint backed by a private registry
// to avoid global state issues; process and Go runtime collectors are
// registered alongside the given ones.
func RegisterMetrics(s *Server, endpoint string, cs ...prometheus.Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	for _, c := range cs {
		registry.MustRegister(c)
	}

	if endpoint == "" {
		endpoint = MetricsEndpoint
	}
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	s.Router.GET(endpoint, gin.WrapH(handler))
	return registry
}
