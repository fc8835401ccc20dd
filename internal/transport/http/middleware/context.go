package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TraceIDHeader carries the trace id on requests and responses.
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the gin context key holding the trace id.
	TraceIDKey = "trace_id"
	// UserIDKey is the gin context key holding the authenticated user id.
	UserIDKey = "user_id"

	maxClientTraceIDLength = 64
)

// EnrichContext picks the request trace id: the active server span first, then a
// well-formed X-Trace-ID header, then a fresh UUID. The id is echoed in the response.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := ""
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		} else if header := c.GetHeader(TraceIDHeader); validClientTraceID(header) {
			traceID = header
		} else {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		c.Next()
	}
}

// validClientTraceID accepts up to 64 characters of [A-Za-z0-9-_.].
func validClientTraceID(id string) bool {
	if id == "" || len(id) > maxClientTraceIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// GetTraceID returns the id chosen by EnrichContext, or "".
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}
