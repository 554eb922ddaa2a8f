package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/oddbit-project/chargebridge/log"
)

const (
	// correlation headers, echoed back to the caller
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// headerOrFresh returns the inbound header value, minting and echoing a new
// id when the caller did not send one
func headerOrFresh(c *gin.Context, header string) string {
	id := c.GetHeader(header)
	if id == "" {
		id = uuid.New().String()
		c.Header(header, id)
	}
	return id
}

// RequestLog plants a request-scoped logger into the request context and
// logs every request on the operational surface with latency and outcome
func RequestLog(moduleName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := headerOrFresh(c, HeaderRequestID)
		traceID := headerOrFresh(c, HeaderTraceID)

		logger := log.New(moduleName).WithTraceID(traceID).
			WithField("request_id", requestID).
			WithField("method", c.Request.Method).
			WithField("path", c.Request.URL.Path).
			WithField("client_ip", c.ClientIP())

		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := log.KV{
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"bytes":      c.Writer.Size(),
		}

		msg := c.Request.Method + " " + c.Request.URL.Path
		switch {
		case len(c.Errors) > 0:
			fields["errors"] = c.Errors.String()
			logger.Error(nil, msg, fields)
		case status >= http.StatusInternalServerError:
			logger.Error(nil, msg, fields)
		case status >= http.StatusBadRequest:
			logger.Warn(msg, fields)
		default:
			logger.Info(msg, fields)
		}
	}
}

// PanicLog reports a recovered route panic through the request logger, so
// the entry carries the request's correlation ids
func PanicLog(c *gin.Context, recovered interface{}) {
	logger := GetRequestLogger(c)
	if logger == nil {
		logger = log.New("http")
	}
	logger.Error(fmt.Errorf("panic: %v", recovered), "request handler panicked")
	c.AbortWithStatus(http.StatusInternalServerError)
}

// GetRequestLogger retrieves the request-scoped logger planted by RequestLog
func GetRequestLogger(c *gin.Context) *log.Logger {
	return log.FromContext(c.Request.Context())
}
