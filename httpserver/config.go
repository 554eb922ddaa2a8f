package httpserver

import (
	"fmt"

	"github.com/oddbit-project/chargebridge/utils"
)

const (
	ServerDefaultHost         = "0.0.0.0"
	ServerDefaultPort         = 9091
	ServerDefaultReadTimeout  = 30
	ServerDefaultWriteTimeout = 30
	ServerDefaultName         = "ops"

	ErrNilConfig    = utils.Error("Config is nil")
	ErrInvalidPort  = utils.Error("invalid server port")
	ErrInvalidRead  = utils.Error("readTimeout cannot be negative")
	ErrInvalidWrite = utils.Error("writeTimeout cannot be negative")
)

// ServerConfig operational HTTP endpoint settings
type ServerConfig struct {
	Host         string            `json:"host"`
	Port         int               `json:"port"`
	ReadTimeout  int               `json:"readTimeout"`
	WriteTimeout int               `json:"writeTimeout"`
	Debug        bool              `json:"debug"`
	Options      map[string]string `json:"options"`
}

func NewServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:         ServerDefaultHost,
		Port:         ServerDefaultPort,
		ReadTimeout:  ServerDefaultReadTimeout,
		WriteTimeout: ServerDefaultWriteTimeout,
		Debug:        false,
		Options:      make(map[string]string),
	}
}

// GetOption retrieves the option value for key, or defaultValue when the key
// is absent
func (c *ServerConfig) GetOption(key string, defaultValue string) string {
	if v, ok := c.Options[key]; ok {
		return v
	}
	return defaultValue
}

func (c *ServerConfig) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.ReadTimeout < 0 {
		return ErrInvalidRead
	}
	if c.WriteTimeout < 0 {
		return ErrInvalidWrite
	}
	return nil
}

// Addr returns the host:port listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
