package audit

import (
	"context"
	"errors"
	"time"

	"github.com/oddbit-project/chargebridge/utils"
)

// Event kinds recorded in the audit trail
const (
	KindSessionStarted      = "session_started"
	KindSessionClosed       = "session_closed"
	KindReplayDetected      = "replay_detected"
	KindTamperDetected      = "tamper_detected"
	KindFloodDetected       = "flood_detected"
	KindReorderDetected     = "reorder_detected"
	KindSuppressionDetected = "suppression_detected"
	KindProtocolError       = "protocol_error"
	KindUpstreamUnavailable = "upstream_unavailable"
)

// Severity of an audit event
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeveritySecurity Severity = "security"
)

// DefaultFlushInterval is the background flush cadence shared by the
// buffered sinks, in seconds
const DefaultFlushInterval = 5

const (
	ErrNilConfig  = utils.Error("Config is nil")
	ErrSinkClosed = utils.Error("audit sink is closed")
)

// Event is a single audit trail entry. Lifecycle events carry SeverityInfo,
// detected attacks carry SeveritySecurity.
type Event struct {
	Timestamp     time.Time `json:"ts" db:"ts"`
	Kind          string    `json:"kind" db:"kind"`
	Severity      Severity  `json:"severity" db:"severity"`
	SessionID     string    `json:"session_id,omitempty" db:"session_id"`
	RemoteAddr    string    `json:"remote_addr,omitempty" db:"remote_addr"`
	Action        string    `json:"action,omitempty" db:"action"`
	CorrelationID string    `json:"correlation_id,omitempty" db:"correlation_id"`
	CloseCode     int       `json:"close_code,omitempty" db:"close_code"`
	Detail        string    `json:"detail,omitempty" db:"detail"`
}

// Sink receives audit events
type Sink interface {
	Record(ctx context.Context, ev Event) error
	Close() error
}

// NopSink discards all events
type NopSink struct{}

func (NopSink) Record(_ context.Context, _ Event) error {
	return nil
}

func (NopSink) Close() error {
	return nil
}

// MultiSink fans events out to multiple sinks; every sink is attempted even
// when an earlier one fails
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config enables zero or more audit backends
type Config struct {
	File *FileConfig `json:"file,omitempty"`
	DB   *DBConfig   `json:"db,omitempty"`
}

// NewConfig returns a configuration with no backends; events are discarded
// until one is enabled
func NewConfig() *Config {
	return &Config{}
}

// Validate Config
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.File != nil {
		if err := c.File.Validate(); err != nil {
			return err
		}
	}
	if c.DB != nil {
		return c.DB.Validate()
	}
	return nil
}

// NewSink builds the audit sink from the configuration. With no backends
// configured a NopSink is returned.
func NewSink(cfg *Config) (Sink, error) {
	if cfg == nil {
		return NopSink{}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var sinks []Sink
	if cfg.File != nil {
		fileSink, err := NewFileSink(cfg.File)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fileSink)
	}
	if cfg.DB != nil {
		dbSink, err := NewDBSink(cfg.DB)
		if err != nil {
			closeAll(sinks)
			return nil, err
		}
		sinks = append(sinks, dbSink)
	}
	switch len(sinks) {
	case 0:
		return NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks...), nil
	}
}

func closeAll(sinks []Sink) {
	for _, s := range sinks {
		_ = s.Close()
	}
}
