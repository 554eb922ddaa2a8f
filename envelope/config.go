package envelope

import (
	"time"

	"github.com/oddbit-project/chargebridge/utils"
)

const (
	ErrNilConfig   = utils.Error("Config is nil")
	ErrInvalidSkew = utils.Error("allowedSkewSeconds cannot be negative")
)

// Config envelope verification settings
type Config struct {
	AllowedSkewSeconds int `json:"allowedSkewSeconds"`
}

func NewConfig() *Config {
	return &Config{
		AllowedSkewSeconds: int(DefaultAllowedSkew / time.Second),
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.AllowedSkewSeconds < 0 {
		return ErrInvalidSkew
	}
	return nil
}

// AllowedSkew returns the configured drift window as a duration
func (c *Config) AllowedSkew() time.Duration {
	return time.Duration(c.AllowedSkewSeconds) * time.Second
}
