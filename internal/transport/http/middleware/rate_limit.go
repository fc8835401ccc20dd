package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/account-service/internal/core/port"
	appLogger "github.com/arklim/account-service/internal/infra/logger"
)

// IdentifierFunc picks the value a rule counts against. ok=false skips the rule for this request.
type IdentifierFunc func(*gin.Context) (id string, ok bool)

// RateLimitRule allows Limit requests per Window for each identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// RateLimitResponse is the 429 body.
type RateLimitResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
	TraceID    string `json:"traceId,omitempty"`
}

// RateLimiter turns RateLimitRules into gin middleware. Store failures let the request through.
type RateLimiter struct {
	store  port.AttemptLimiter
	logger *zap.Logger
	now    func() time.Time
}

// NewRateLimiter returns a limiter backed by store.
func NewRateLimiter(store port.AttemptLimiter, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the clock.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier counts requests per client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

type quota struct {
	rule      RateLimitRule
	id        string
	allowed   bool
	remaining int
	reset     time.Time
}

func (q quota) retryAfter(now time.Time) int {
	seconds := int(math.Ceil(q.reset.Sub(now).Seconds()))
	return max(seconds, 0)
}

// tighter reports whether q should be reported in headers instead of other.
func (q quota) tighter(other quota) bool {
	if q.allowed != other.allowed {
		return !q.allowed
	}
	if q.remaining != other.remaining {
		return q.remaining < other.remaining
	}
	return q.reset.Before(other.reset)
}

// RateLimit enforces every valid rule. The first exhausted rule rejects the request with 429.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if len(active) == 0 || rl.store == nil {
			c.Next()
			return
		}

		now := rl.now()
		var reported *quota
		for _, rule := range active {
			id, ok := rule.Identifier(c)
			if !ok {
				continue
			}

			q, err := rl.check(c, rule, id, now)
			if err != nil {
				rl.logger.Warn("rate limit check failed",
					zap.String("rule", rule.Name),
					zap.String("identifier", appLogger.MaskIP(id)),
					zap.Error(err),
				)
				continue
			}

			if reported == nil || q.tighter(*reported) {
				reported = &q
			}
			if !q.allowed {
				rl.reject(c, q, now)
				return
			}
		}

		if reported != nil {
			writeQuotaHeaders(c, *reported, now)
		}
		c.Next()
	}
}

func (rl *RateLimiter) check(c *gin.Context, rule RateLimitRule, id string, now time.Time) (quota, error) {
	state, err := rl.store.Hit(c.Request.Context(), rule.Name+":"+id, rule.Limit, rule.Window, now)
	if err != nil {
		return quota{}, err
	}

	reset := now.Add(rule.Window)
	if !state.Oldest.IsZero() {
		reset = state.Oldest.Add(rule.Window)
	}
	return quota{
		rule:      rule,
		id:        id,
		allowed:   state.Allowed,
		remaining: max(rule.Limit-state.Count, 0),
		reset:     reset,
	}, nil
}

func writeQuotaHeaders(c *gin.Context, q quota, now time.Time) {
	h := c.Writer.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(q.rule.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(q.remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(q.reset.Unix(), 10))
	if !q.allowed {
		h.Set("Retry-After", strconv.Itoa(q.retryAfter(now)))
	}
}

func (rl *RateLimiter) reject(c *gin.Context, q quota, now time.Time) {
	writeQuotaHeaders(c, q, now)
	retry := q.retryAfter(now)

	rl.logger.Info("request rate limited",
		zap.String("rule", q.rule.Name),
		zap.String("identifier", appLogger.MaskIP(q.id)),
		zap.Int("retry_after", retry),
		zap.String("trace_id", GetTraceID(c)),
	)

	c.AbortWithStatusJSON(http.StatusTooManyRequests, RateLimitResponse{
		StatusCode: http.StatusTooManyRequests,
		Message:    fmt.Sprintf("Too many requests. Try again in %d seconds.", retry),
		RetryAfter: retry,
		TraceID:    GetTraceID(c),
	})
}
