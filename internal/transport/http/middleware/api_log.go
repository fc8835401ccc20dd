package middleware

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/account-service/internal/core/domain"
)

const maxCapturedBody = 8 << 10

// sensitiveSuffixes are endpoints whose request bodies carry passwords.
var sensitiveSuffixes = []string{
	"/Login",
	"/Register",
	"/ResetPassword",
	"/AdminUserPasswordReset",
	"/Create",
}

// ApiLogRecorder appends API call log entries.
type ApiLogRecorder interface {
	Record(ctx context.Context, entry domain.ApiLogEntry) error
}

// ApiLog records every request under the group it is attached to. Recording
// failures are logged and never change the response.
func ApiLog(recorder ApiLogRecorder, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		if recorder == nil {
			c.Next()
			return
		}

		start := time.Now()
		body := captureBody(c)

		c.Next()

		entry := domain.ApiLogEntry{
			RequestedAt:    start.UTC(),
			Method:         c.Request.Method,
			Path:           c.Request.URL.Path,
			QueryString:    c.Request.URL.RawQuery,
			StatusCode:     c.Writer.Status(),
			ResponseMillis: time.Since(start).Milliseconds(),
			IPAddress:      c.ClientIP(),
			RequestBody:    body,
		}
		if userID, ok := GetAuthenticatedUserID(c); ok && userID != "" {
			entry.UserID = &userID
		}

		ctx := context.WithoutCancel(c.Request.Context())
		if err := recorder.Record(ctx, entry); err != nil {
			log.Warn("record api log failed",
				zap.String("path", entry.Path),
				zap.String("trace_id", GetTraceID(c)),
				zap.Error(err),
			)
		}
	}
}

// captureBody reads the request body for logging and restores it for the handler.
func captureBody(c *gin.Context) *string {
	if c.Request.Body == nil || isSensitivePath(c.Request.URL.Path) {
		return nil
	}

	// Only the logged prefix is buffered; the handler reads the rest from the original stream.
	original := c.Request.Body
	raw, err := io.ReadAll(io.LimitReader(original, maxCapturedBody))
	c.Request.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(raw), original), Closer: original}
	if err != nil || len(raw) == 0 {
		return nil
	}

	body := string(raw)
	return &body
}

type readCloser struct {
	io.Reader
	io.Closer
}

func isSensitivePath(path string) bool {
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(path, suffix) || strings.Contains(path, suffix+"/") {
			return true
		}
	}
	return false
}
