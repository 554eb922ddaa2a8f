package log

import (
	"context"

	"github.com/google/uuid"
)

// NewTraceID generates a new trace ID for correlating log lines across components
func NewTraceID() string {
	return uuid.New().String()
}

// NewRequestContext builds a context carrying a logger with a fresh trace ID,
// used to follow one connection across relay, codec and audit
func NewRequestContext(parentCtx context.Context, moduleName string) (context.Context, *Logger) {
	logger := New(moduleName).WithTraceID(NewTraceID())
	return logger.WithContext(parentCtx), logger
}

// FromContext returns the logger stored in the context, or nil when absent
func FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return nil
	}
	logger, ok := ctx.Value(LogContextKey).(*Logger)
	if !ok {
		return nil
	}
	return logger
}

// ExtractLoggerFromContext returns the logger stored in the context, falling
// back to a fresh default logger when none is attached
func ExtractLoggerFromContext(ctx context.Context) *Logger {
	if logger := FromContext(ctx); logger != nil {
		return logger
	}
	return New("default")
}
