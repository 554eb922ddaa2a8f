package redis

import (
	"context"
	"time"

	"github.com/oddbit-project/chargebridge/crypt/secure"
	"github.com/oddbit-project/chargebridge/utils"
	"github.com/redis/go-redis/v9"
)

const (
	ErrMissingAddress = utils.Error("Missing address")
	ErrNilConfig      = utils.Error("Config is nil")
)

// Config redis client configuration
type Config struct {
	Address        string `json:"address"`        // Address of the redis server
	DB             int    `json:"db"`             // DB is the redis database to use
	KeyPrefix      string `json:"keyPrefix"`      // KeyPrefix is prepended to all keys
	TimeoutSeconds int    `json:"timeoutSeconds"` // TimeoutSeconds seconds to wait for an operation
	secure.SecretConfig
}

type Client struct {
	Redis   *redis.Client
	config  *Config
	timeout time.Duration
}

// NewConfig returns a default redis client configuration
func NewConfig() *Config {
	return &Config{
		Address:        "localhost:6379",
		DB:             0,
		KeyPrefix:      "",
		TimeoutSeconds: 10,
		SecretConfig:   secure.SecretConfig{},
	}
}

// Validate Config
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if len(c.Address) == 0 {
		return ErrMissingAddress
	}
	return nil
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = NewConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	key, err := secure.GenerateKey()
	if err != nil {
		return nil, err
	}
	cred, err := secure.CredentialFromConfig(config.SecretConfig, key, true)
	if err != nil {
		return nil, err
	}

	pwd, err := cred.Get()
	cred.Clear()
	if err != nil {
		return nil, err
	}

	return &Client{
		config:  config,
		timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		Redis: redis.NewClient(&redis.Options{
			Addr:     config.Address,
			Password: pwd,
			DB:       config.DB,
		}),
	}, nil
}

func (c *Client) Connect() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	_, err := c.Redis.Ping(ctx).Result()
	return err
}

func (c *Client) Close() error {
	return c.Redis.Close()
}

// Key assemble key
func (c *Client) Key(key string) string {
	return c.config.KeyPrefix + key
}

// Timeout default operation timeout
func (c *Client) Timeout() time.Duration {
	return c.timeout
}
