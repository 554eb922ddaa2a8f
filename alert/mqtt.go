package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/oddbit-project/chargebridge/audit"
	"github.com/oddbit-project/chargebridge/crypt/secure"
	"github.com/oddbit-project/chargebridge/utils"
)

const (
	DefaultTopic             = "chargebridge/alerts"
	DefaultQoS               = 1
	DefaultTimeout           = 5  // seconds
	DefaultConnectionTimeout = 30 // seconds

	ErrMissingBroker   = utils.Error("at least one broker must be specified")
	ErrInvalidProtocol = utils.Error("invalid protocol")
	ErrInvalidTimeout  = utils.Error("invalid timeout")
	ErrInvalidQoSLevel = utils.Error("invalid QoS level")
	ErrPublishTimeout  = utils.Error("timeout when publishing")

	ErrNilConfig = utils.Error("Config is nil")
)

// MqttConfig alert publisher settings; brokers are host:port addresses
type MqttConfig struct {
	Brokers           []string `json:"brokers"`
	Protocol          string   `json:"protocol"`
	Topic             string   `json:"topic"`
	ClientID          string   `json:"clientId"`
	Username          string   `json:"username"`
	QoS               int      `json:"qos"`
	Retain            bool     `json:"retain"`
	Timeout           int      `json:"timeout"`
	ConnectionTimeout int      `json:"connectionTimeout"`
	KeepAlive         int64    `json:"keepAlive"`
	AutoReconnect     bool     `json:"autoReconnect"`
	secure.SecretConfig
}

// NewMqttConfig returns alert publisher defaults
func NewMqttConfig() *MqttConfig {
	return &MqttConfig{
		Brokers:           nil,
		Protocol:          "tcp",
		Topic:             DefaultTopic,
		QoS:               DefaultQoS,
		Retain:            false,
		Timeout:           DefaultTimeout,
		ConnectionTimeout: DefaultConnectionTimeout,
		KeepAlive:         0,
		AutoReconnect:     true,
	}
}

// Validate MqttConfig
func (c *MqttConfig) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if len(c.Brokers) == 0 {
		return ErrMissingBroker
	}
	if c.Protocol != "tcp" && c.Protocol != "ssl" {
		return ErrInvalidProtocol
	}
	if c.Timeout < 0 || c.ConnectionTimeout < 0 {
		return ErrInvalidTimeout
	}
	if c.QoS < 0 || c.QoS > 2 {
		return ErrInvalidQoSLevel
	}
	if c.KeepAlive < 0 {
		return fmt.Errorf("keep alive must be greater than zero")
	}
	return nil
}

// MqttPublisher publishes audit events as JSON to a single alert topic
type MqttPublisher struct {
	ClientOptions *paho.ClientOptions
	Client        paho.Client
	topic         string
	qos           byte
	retain        bool
	timeout       time.Duration
}

// NewMqttPublisher builds the publisher; Connect must be called before
// alerts are delivered
func NewMqttPublisher(cfg *MqttConfig) (*MqttPublisher, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	result := &MqttPublisher{
		ClientOptions: opts,
		topic:         topic,
		qos:           byte(cfg.QoS),
		retain:        cfg.Retain,
		timeout:       time.Duration(cfg.Timeout) * time.Second,
	}
	result.Client = paho.NewClient(opts)
	return result, nil
}

func clientOptions(cfg *MqttConfig) (*paho.ClientOptions, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := paho.NewClientOptions()
	opts.KeepAlive = cfg.KeepAlive
	opts.WriteTimeout = time.Duration(cfg.Timeout) * time.Second
	opts.ConnectTimeout = time.Duration(cfg.ConnectionTimeout) * time.Second

	if cfg.ClientID == "" {
		cfg.ClientID = "chargebridge-" + uuid.NewString()[:8]
	}
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(cfg.AutoReconnect)
	opts.SetUsername(cfg.Username)

	if !cfg.SecretConfig.IsEmpty() {
		key, err := secure.GenerateKey()
		if err != nil {
			return nil, err
		}
		cred, err := secure.CredentialFromConfig(cfg.SecretConfig, key, true)
		if err != nil {
			return nil, err
		}
		password, err := cred.Get()
		cred.Clear()
		if err != nil {
			return nil, err
		}
		opts.SetPassword(password)
	}

	for _, broker := range cfg.Brokers {
		opts.AddBroker(fmt.Sprintf("%s://%s", cfg.Protocol, broker))
	}
	return opts, nil
}

// Connect establishes the broker connection
func (p *MqttPublisher) Connect() error {
	token := p.Client.Connect()
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Notify publishes the event to the alert topic
func (p *MqttPublisher) Notify(_ context.Context, ev audit.Event) error {
	if !p.Client.IsConnected() {
		return paho.ErrNotConnected
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	token := p.Client.Publish(p.topic, p.qos, p.retain, data)
	if !token.WaitTimeout(p.timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// Close disconnects from the broker
func (p *MqttPublisher) Close() error {
	if p.Client != nil && p.Client.IsConnected() {
		p.Client.Disconnect(250)
	}
	return nil
}
