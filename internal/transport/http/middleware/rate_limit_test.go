package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/account-service/internal/core/port"
	redisrepo "github.com/arklim/account-service/internal/repository/redis"
)

type stubAttempts struct {
	state port.AttemptWindow
	err   error
	keys  []string
}

func (s *stubAttempts) Hit(_ context.Context, key string, _ int, _ time.Duration, _ time.Time) (port.AttemptWindow, error) {
	s.keys = append(s.keys, key)
	return s.state, s.err
}

var limiterNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func fixedIP(ip string) IdentifierFunc {
	return func(*gin.Context) (string, bool) { return ip, true }
}

func serveLimited(t *testing.T, store port.AttemptLimiter, rules ...RateLimitRule) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return limiterNow })
	router := gin.New()
	router.Use(limiter.RateLimit(rules...))
	router.POST("/api/Account/Login", func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/Account/Login", nil))
	return rr
}

func TestRateLimiterAllowsWhenBelowLimit(t *testing.T) {
	oldest := limiterNow.Add(-30 * time.Second)
	store := &stubAttempts{state: port.AttemptWindow{Allowed: true, Count: 3, Oldest: oldest}}

	rr := serveLimited(t, store, RateLimitRule{Name: "account_login_ip", Limit: 5, Window: time.Minute, Identifier: fixedIP("192.0.2.1")})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(store.keys) != 1 || store.keys[0] != "account_login_ip:192.0.2.1" {
		t.Fatalf("unexpected store keys %v", store.keys)
	}

	want := map[string]string{
		"X-RateLimit-Limit":     "5",
		"X-RateLimit-Remaining": "2",
		"X-RateLimit-Reset":     strconv.FormatInt(oldest.Add(time.Minute).Unix(), 10),
		"Retry-After":           "",
	}
	for header, value := range want {
		if got := rr.Header().Get(header); got != value {
			t.Fatalf("%s = %q, want %q", header, got, value)
		}
	}
}

func TestRateLimiterBlocksWhenLimitExceeded(t *testing.T) {
	store := &stubAttempts{state: port.AttemptWindow{Allowed: false, Count: 5, Oldest: limiterNow.Add(-30 * time.Second)}}

	rr := serveLimited(t, store, RateLimitRule{Name: "account_login_ip", Limit: 5, Window: time.Minute, Identifier: fixedIP("192.0.2.1")})

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected Retry-After 30, got %q", got)
	}

	var body RateLimitResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.StatusCode != http.StatusTooManyRequests || body.RetryAfter != 30 {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Message != "Too many requests. Try again in 30 seconds." {
		t.Fatalf("unexpected message %q", body.Message)
	}
}

func TestRateLimiterFailsOpenOnStoreError(t *testing.T) {
	store := &stubAttempts{err: errors.New("redis down")}

	rr := serveLimited(t, store, RateLimitRule{Name: "account_login_ip", Limit: 5, Window: time.Minute, Identifier: fixedIP("192.0.2.1")})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 when failing open, got %d", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Limit") != "" {
		t.Fatalf("expected no quota headers without a store answer")
	}
}

func TestRateLimiterIgnoresInvalidRules(t *testing.T) {
	store := &stubAttempts{}

	rr := serveLimited(t, store,
		RateLimitRule{Name: "no_identifier", Limit: 5, Window: time.Minute},
		RateLimitRule{Name: "no_limit", Window: time.Minute, Identifier: fixedIP("192.0.2.1")},
		RateLimitRule{Name: "no_window", Limit: 5, Identifier: fixedIP("192.0.2.1")},
	)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(store.keys) != 0 {
		t.Fatalf("expected store untouched, got %v", store.keys)
	}
}

func TestRateLimiterWithRedisStoreBlocksAfterLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	server := miniredis.RunT(t)
	client := red.NewClient(&red.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisrepo.NewAttemptStore(client, redisrepo.AttemptStoreConfig{})
	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return limiterNow })

	router := gin.New()
	router.Use(limiter.RateLimit(RateLimitRule{
		Name:       "account_forgot_password_ip",
		Limit:      2,
		Window:     time.Minute,
		Identifier: ClientIPIdentifier(),
	}))
	router.POST("/api/Account/ForgotPassword", func(c *gin.Context) { c.Status(http.StatusOK) })

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i, code := range want {
		req := httptest.NewRequest(http.MethodPost, "/api/Account/ForgotPassword", nil)
		req.RemoteAddr = "198.51.100.7:41000"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != code {
			t.Fatalf("request %d: expected %d, got %d", i+1, code, rr.Code)
		}
	}
}
