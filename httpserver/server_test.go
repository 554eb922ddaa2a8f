package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oddbit-project/chargebridge/log"
	"github.com/oddbit-project/chargebridge/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfigValidate(t *testing.T) {
	var nilCfg *ServerConfig
	assert.ErrorIs(t, nilCfg.Validate(), ErrNilConfig)

	cfg := NewServerConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:9091", cfg.Addr())

	cfg.Port = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidPort)
	cfg.Port = 70000
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidPort)

	cfg = NewServerConfig()
	cfg.ReadTimeout = -1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidRead)

	cfg = NewServerConfig()
	cfg.WriteTimeout = -1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidWrite)
}

func TestServerConfigGetOption(t *testing.T) {
	cfg := NewServerConfig()
	assert.Equal(t, "fallback", cfg.GetOption("serverName", "fallback"))

	cfg.Options["serverName"] = "ops"
	assert.Equal(t, "ops", cfg.GetOption("serverName", "fallback"))
}

func TestNewServer(t *testing.T) {
	srv, err := NewServer(nil, log.New("ops-test"))
	require.NoError(t, err)
	assert.NotNil(t, srv.Router)
	assert.Equal(t, "0.0.0.0:9091", srv.Server.Addr)
	assert.NotNil(t, srv.Server.ErrorLog)

	cfg := NewServerConfig()
	cfg.Port = -1
	_, err = NewServer(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func newOpsServer(t *testing.T, m *metrics.Metrics, sessions func() int) *Server {
	t.Helper()
	srv, err := NewServer(NewServerConfig(), log.New("ops-test"))
	require.NoError(t, err)
	RegisterOps(srv, m, sessions)
	RegisterMetrics(srv, "", m)
	return srv
}

func doRequest(srv *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := newOpsServer(t, metrics.New(), func() int { return 0 })

	w := doRequest(srv, HealthEndpoint)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestStatusEndpoint(t *testing.T) {
	m := metrics.New()
	m.IncTotal()
	m.IncTotal()
	m.IncTotal()
	m.IncForwarded()
	m.IncForwarded()
	m.IncBlocked()
	m.IncReplay()
	srv := newOpsServer(t, m, func() int { return 4 })

	w := doRequest(srv, StatusEndpoint)
	require.Equal(t, http.StatusOK, w.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, uint64(3), status.Total)
	assert.Equal(t, uint64(2), status.Forwarded)
	assert.Equal(t, uint64(1), status.Blocked)
	assert.Equal(t, uint64(1), status.Replay)
	assert.Equal(t, 4, status.ActiveSessions)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.IncTotal()
	m.IncReplay()
	srv := newOpsServer(t, m, func() int { return 1 })

	w := doRequest(srv, MetricsEndpoint)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "chargebridge_messages_total 1")
	assert.Contains(t, body, `chargebridge_violations_total{type="replay"} 1`)
	assert.Contains(t, body, "chargebridge_forward_latency_seconds_count")
	// default runtime collectors ride along
	assert.Contains(t, body, "go_goroutines")
}
