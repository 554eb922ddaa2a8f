package relay

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oddbit-project/chargebridge/audit"
	"github.com/oddbit-project/chargebridge/crypt/secure"
	"github.com/oddbit-project/chargebridge/envelope"
	"github.com/oddbit-project/chargebridge/envelope/store"
	"github.com/oddbit-project/chargebridge/log"
	"github.com/oddbit-project/chargebridge/ocpp"
	"github.com/oddbit-project/chargebridge/ws"
	"github.com/stretchr/testify/require"
)

const testSharedSecret = "SuperSecretKey123"

// testCodec builds a codec over the shared secret with its own replay cache
func testCodec(t *testing.T) *envelope.Codec {
	t.Helper()
	key, err := secure.GenerateKey()
	require.NoError(t, err)
	cred, err := secure.NewCredential([]byte(testSharedSecret), key, false)
	require.NoError(t, err)
	return envelope.NewCodec(cred, envelope.WithNonceStore(store.NewMemoryNonceStore()))
}

// centralHarness emulates the central system: it verifies incoming envelopes
// and optionally answers calls with sealed responses
type centralHarness struct {
	t         *testing.T
	codec     *envelope.Codec
	autoReply bool

	mu       sync.Mutex
	sealed   [][]byte
	payloads []string
	conns    []*ws.Conn
}

func startCentral(t *testing.T, autoReply bool) (*centralHarness, *ws.UpstreamConfig) {
	t.Helper()
	h := &centralHarness{t: t, codec: testCodec(t), autoReply: autoReply}

	cfg := ws.NewListenerConfig()
	cfg.Subprotocol = ws.DefaultUpstreamSubprotocol
	srv, err := ws.NewServer(cfg, h.handle, log.New("test-central"))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	up := ws.NewUpstreamConfig()
	up.URL = "ws" + strings.TrimPrefix(ts.URL, "http")
	return h, up
}

func (h *centralHarness) handle(conn *ws.Conn) {
	h.mu.Lock()
	h.conns = append(h.conns, conn)
	h.mu.Unlock()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.mu.Lock()
		h.sealed = append(h.sealed, append([]byte(nil), data...))
		h.mu.Unlock()

		payload := string(data)
		if envelope.Detect(data) {
			inner, err := h.codec.Unwrap(data)
			if err != nil {
				continue
			}
			payload = inner
		}
		h.mu.Lock()
		h.payloads = append(h.payloads, payload)
		h.mu.Unlock()

		if !h.autoReply {
			continue
		}
		frame, err := ocpp.Parse([]byte(payload))
		if err != nil || !frame.IsCall() {
			continue
		}
		sealedReply, err := h.codec.Seal(centralReply(frame))
		if err != nil {
			continue
		}
		_ = conn.WriteMessage(sealedReply)
	}
}

func centralReply(frame *ocpp.Frame) string {
	switch frame.Action {
	case "BootNotification":
		return fmt.Sprintf(`[3,%q,{"status":"Accepted","interval":300}]`, frame.CorrelationID)
	case "Heartbeat":
		return fmt.Sprintf(`[3,%q,{"currentTime":"2024-05-10T12:00:00Z"}]`, frame.CorrelationID)
	default:
		return fmt.Sprintf(`[3,%q,{}]`, frame.CorrelationID)
	}
}

func (h *centralHarness) payloadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.payloads)
}

func (h *centralHarness) payloadAt(i int) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.payloads[i]
}

func (h *centralHarness) sealedAt(i int) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sealed[i]
}

func (h *centralHarness) lastConn() *ws.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(h.t, h.conns)
	return h.conns[len(h.conns)-1]
}

func (h *centralHarness) connCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// send seals payload with the central codec and pushes it to the most recent
// proxy connection
func (h *centralHarness) send(payload string) {
	sealed, err := h.codec.Seal(payload)
	require.NoError(h.t, err)
	require.NoError(h.t, h.lastConn().WriteMessage(sealed))
}

// sendRaw pushes bytes to the most recent proxy connection without sealing
func (h *centralHarness) sendRaw(data []byte) {
	require.NoError(h.t, h.lastConn().WriteMessage(data))
}

// captureSink is an audit sink recording every event
type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureSink) Record(_ context.Context, ev audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureSink) Close() error {
	return nil
}

func (c *captureSink) byKind(kind string) []audit.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []audit.Event
	for _, ev := range c.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// startProxy exposes the engine through a real websocket server and returns
// the device-facing base URL
func startProxy(t *testing.T, e *Engine) string {
	t.Helper()
	srv, err := ws.NewServer(ws.NewListenerConfig(), e.Handle, log.New("test-proxy"))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialDevice(t *testing.T, baseURL, id string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{
		Subprotocols:     []string{ws.DefaultDeviceSubprotocol},
		HandshakeTimeout: 5 * time.Second,
	}
	conn, resp, err := dialer.Dial(baseURL+"/"+id, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads the next device frame with a deadline
func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

// readUntilClose drains the connection until the server closes it and
// returns the close error
func readUntilClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			require.ErrorAs(t, err, &closeErr)
			return closeErr
		}
	}
}
