package log

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Database logging field keys
const (
	DBQueryKey     = "db_query"
	DBDurationKey  = "db_duration_ms"
	DBOperationKey = "db_operation"
	DBComponentKey = "db_component"
)

// DBOperationType defines the type of database operation
type DBOperationType string

const (
	DBOperationSelect DBOperationType = "SELECT"
	DBOperationInsert DBOperationType = "INSERT"
	DBOperationUpdate DBOperationType = "UPDATE"
	DBOperationDelete DBOperationType = "DELETE"
	DBOperationOther  DBOperationType = "OTHER"
)

// DetectDBOperation detects the operation type from an SQL query
func DetectDBOperation(query string) DBOperationType {
	query = strings.TrimSpace(strings.ToUpper(query))

	switch {
	case strings.HasPrefix(query, "SELECT"):
		return DBOperationSelect
	case strings.HasPrefix(query, "INSERT"):
		return DBOperationInsert
	case strings.HasPrefix(query, "UPDATE"):
		return DBOperationUpdate
	case strings.HasPrefix(query, "DELETE"):
		return DBOperationDelete
	}
	return DBOperationOther
}

// NewDBLogger creates a new logger with database component information
func NewDBLogger(ctx context.Context, component string) *Logger {
	logger := FromContext(ctx)
	if logger == nil {
		logger = New("db")
	}
	return logger.WithField(DBComponentKey, component)
}

// LogDBQuery logs a statement with timing. Statement parameters are never
// logged; audit rows carry remote addresses and detection detail that must
// not be duplicated into the log stream.
func LogDBQuery(ctx context.Context, query string, duration time.Duration, err error) {
	logger := FromContext(ctx)
	if logger == nil {
		logger = New("db")
	}

	operation := DetectDBOperation(query)
	fields := map[string]interface{}{
		DBQueryKey:     query,
		DBDurationKey:  duration.Milliseconds(),
		DBOperationKey: string(operation),
	}

	msg := fmt.Sprintf("DB %s query", operation)
	switch {
	case err != nil:
		logger.Error(err, msg, fields)
	case operation == DBOperationSelect:
		logger.Debug(msg, fields)
	default:
		logger.Info(msg, fields)
	}
}
