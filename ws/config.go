package ws

import (
	"fmt"
	"strings"

	"github.com/oddbit-project/chargebridge/utils"
)

const (
	DefaultListenHost        = "0.0.0.0"
	DefaultListenPort        = 9090
	DefaultDeviceSubprotocol = "ocpp1.6"

	DefaultUpstreamURL          = "ws://localhost:9000"
	DefaultUpstreamSubprotocol  = "ocpp-envelope"
	DefaultDialTimeoutSeconds   = 5
	DefaultReadLimitBytes       = 1 << 20
	DefaultHandshakeTimeoutSecs = 10

	ErrNilConfig          = utils.Error("config is nil")
	ErrInvalidPort        = utils.Error("invalid listener port")
	ErrMissingUpstreamURL = utils.Error("upstream url is empty")
	ErrInvalidUpstreamURL = utils.Error("upstream url must use ws or wss scheme")
)

// ListenerConfig describes the device-facing WebSocket endpoint.
type ListenerConfig struct {
	Host                    string `json:"host"`
	Port                    int    `json:"port"`
	Subprotocol             string `json:"subprotocol"`
	ReadLimitBytes          int64  `json:"readLimitBytes"`
	HandshakeTimeoutSeconds int    `json:"handshakeTimeoutSeconds"`
}

func NewListenerConfig() *ListenerConfig {
	return &ListenerConfig{
		Host:                    DefaultListenHost,
		Port:                    DefaultListenPort,
		Subprotocol:             DefaultDeviceSubprotocol,
		ReadLimitBytes:          DefaultReadLimitBytes,
		HandshakeTimeoutSeconds: DefaultHandshakeTimeoutSecs,
	}
}

func (c *ListenerConfig) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	return nil
}

func (c *ListenerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UpstreamConfig describes the central system endpoint the proxy dials for
// each device session.
type UpstreamConfig struct {
	URL                string `json:"url"`
	Subprotocol        string `json:"subprotocol"`
	DialTimeoutSeconds int    `json:"dialTimeoutSeconds"`
}

func NewUpstreamConfig() *UpstreamConfig {
	return &UpstreamConfig{
		URL:                DefaultUpstreamURL,
		Subprotocol:        DefaultUpstreamSubprotocol,
		DialTimeoutSeconds: DefaultDialTimeoutSeconds,
	}
}

func (c *UpstreamConfig) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.URL == "" {
		return ErrMissingUpstreamURL
	}
	if !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		return ErrInvalidUpstreamURL
	}
	return nil
}
