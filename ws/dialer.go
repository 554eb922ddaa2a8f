package ws

import (
	"context"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Dialer opens upstream connections to the central system, one per device
// session, addressed as <base url>/<connection id>.
type Dialer struct {
	config *UpstreamConfig
	dialer *websocket.Dialer
}

func NewDialer(cfg *UpstreamConfig) (*Dialer, error) {
	if cfg == nil {
		cfg = NewUpstreamConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dialer{
		config: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: time.Duration(cfg.DialTimeoutSeconds) * time.Second,
			Subprotocols:     []string{cfg.Subprotocol},
		},
	}, nil
}

// URL returns the upstream endpoint for a connection id.
func (d *Dialer) URL(id string) string {
	base := strings.TrimSuffix(d.config.URL, "/")
	if id == "" {
		return base
	}
	return base + "/" + id
}

func (d *Dialer) Dial(ctx context.Context, id string) (*Conn, error) {
	ws, _, err := d.dialer.DialContext(ctx, d.URL(id), nil)
	if err != nil {
		return nil, err
	}
	return newConn(ws, "/"+id), nil
}
