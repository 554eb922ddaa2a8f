package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Configuration constants
const (
	LogContextKey      = contextKey("logger")
	LogTraceIDKey      = "trace_id"
	LogModuleKey       = "module"
	LogComponentKey    = "component"
	LogHostnameKey     = "hostname"
	LogTimestampFormat = time.RFC3339Nano
)

type contextKey string

// KV is a convenience map for structured log fields
type KV = map[string]interface{}

// Logger wraps zerolog.Logger to provide consistent logging patterns
type Logger struct {
	logger     zerolog.Logger
	moduleInfo string
	traceID    string
}

// LogConfig contains configuration for the logger
type LogConfig struct {
	Level            string `json:"level"`
	Format           string `json:"format"` // "console" or "json"
	IncludeTimestamp bool   `json:"includeTimestamp"`
	IncludeHostname  bool   `json:"includeHostname"`
}

// NewDefaultConfig returns a default logging configuration
func NewDefaultConfig() *LogConfig {
	return &LogConfig{
		Level:            "info",
		Format:           "console",
		IncludeTimestamp: true,
		IncludeHostname:  false,
	}
}

// Configure configures the global logger based on the provided configuration
func Configure(cfg *LogConfig) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %s", cfg.Level)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = LogTimestampFormat

	var baseLogger zerolog.Logger
	if cfg.Format == "console" {
		output := zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.TimeFormat = LogTimestampFormat
		})
		baseLogger = zerolog.New(output).Level(level)
	} else {
		baseLogger = zerolog.New(os.Stderr).Level(level)
	}

	if cfg.IncludeTimestamp {
		baseLogger = baseLogger.With().Timestamp().Logger()
	}

	if cfg.IncludeHostname {
		if hostname, err := os.Hostname(); err == nil {
			baseLogger = baseLogger.With().Str(LogHostnameKey, hostname).Logger()
		}
	}

	log.Logger = baseLogger
	return nil
}

// New creates a new logger with module information
func New(module string) *Logger {
	return &Logger{
		logger:     log.With().Str(LogModuleKey, module).Logger(),
		moduleInfo: module,
	}
}

// NewWithComponent creates a new logger with module and component information
func NewWithComponent(module, component string) *Logger {
	return &Logger{
		logger: log.With().
			Str(LogModuleKey, module).
			Str(LogComponentKey, component).
			Logger(),
		moduleInfo: fmt.Sprintf("%s.%s", module, component),
	}
}

// WithTraceID creates a new logger with the specified trace ID
func (l *Logger) WithTraceID(traceID string) *Logger {
	return &Logger{
		logger:     l.logger.With().Str(LogTraceIDKey, traceID).Logger(),
		moduleInfo: l.moduleInfo,
		traceID:    traceID,
	}
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		logger:     l.logger.With().Interface(key, value).Logger(),
		moduleInfo: l.moduleInfo,
		traceID:    l.traceID,
	}
}

// WithOutput returns a copy of the logger writing to w
func (l *Logger) WithOutput(w io.Writer) *Logger {
	return &Logger{
		logger:     l.logger.Output(w),
		moduleInfo: l.moduleInfo,
		traceID:    l.traceID,
	}
}

// ModuleInfo returns the module identification for this logger
func (l *Logger) ModuleInfo() string {
	return l.moduleInfo
}

// applyFields merges the optional field map into the event
func applyFields(event *zerolog.Event, fields []KV) *zerolog.Event {
	if len(fields) > 0 {
		for k, v := range fields[0] {
			event = event.Interface(k, v)
		}
	}
	return event
}

// Debug logs a debug message with the given fields
func (l *Logger) Debug(msg string, fields ...KV) {
	applyFields(l.logger.Debug(), fields).Msg(msg)
}

// Info logs an info message with the given fields
func (l *Logger) Info(msg string, fields ...KV) {
	applyFields(l.logger.Info(), fields).Msg(msg)
}

// Warn logs a warning message with the given fields
func (l *Logger) Warn(msg string, fields ...KV) {
	applyFields(l.logger.Warn(), fields).Msg(msg)
}

// Error logs an error message with the given fields; a non-nil err is
// attached together with the calling stack
func (l *Logger) Error(err error, msg string, fields ...KV) {
	event := l.logger.Error()
	if err != nil {
		event = event.Err(err)
		if stack := stackTrace(1); len(stack) > 0 {
			event = event.Strs("stack", stack)
		}
	}
	applyFields(event, fields).Msg(msg)
}

// Fatal logs a fatal message with the given fields and exits the application
func (l *Logger) Fatal(err error, msg string, fields ...KV) {
	event := l.logger.Fatal()
	if err != nil {
		event = event.Err(err)
		if stack := stackTrace(1); len(stack) > 0 {
			event = event.Strs("stack", stack)
		}
	}
	applyFields(event, fields).Msg(msg)
}

// GetTraceID returns the trace ID associated with this logger
func (l *Logger) GetTraceID() string {
	return l.traceID
}

// WithContext returns a copy of ctx with the logger attached
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, LogContextKey, l)
}

// GetZerolog returns the underlying zerolog.Logger
func (l *Logger) GetZerolog() zerolog.Logger {
	return l.logger
}

func stackTrace(skip int) []string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	result := make([]string, 0, n)
	for {
		frame, more := frames.Next()
		result = append(result, fmt.Sprintf("%s (%s:%d)", frame.Function, filepath.Base(frame.File), frame.Line))
		if !more {
			break
		}
	}
	return result
}
