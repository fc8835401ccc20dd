package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/account-service/internal/core/domain"
)

type fakeApiLogRecorder struct {
	entries []domain.ApiLogEntry
	err     error
}

func (f *fakeApiLogRecorder) Record(_ context.Context, entry domain.ApiLogEntry) error {
	f.entries = append(f.entries, entry)
	return f.err
}

func newApiLogRouter(t *testing.T, recorder ApiLogRecorder, auth SessionAuthenticator) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(Authenticate(auth, SessionCookies{}, zaptest.NewLogger(t)), ApiLog(recorder, zaptest.NewLogger(t)))
	echo := func(c *gin.Context) {
		raw, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusAccepted, string(raw))
	}
	router.POST("/api/UserProfile/Upsert", echo)
	router.POST("/api/Account/Login", echo)
	router.POST("/api/Account/AdminUserPasswordReset/:id", echo)
	return router
}

func TestApiLogCapturesBodyAndRestoresIt(t *testing.T) {
	recorder := &fakeApiLogRecorder{}
	auth := &fakeAuthenticator{sessions: map[string]*domain.Session{
		"token": {UserID: "user-9", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	router := newApiLogRouter(t, recorder, auth)

	payload := `{"lastPageVisited":"/reports"}`
	req := httptest.NewRequest(http.MethodPost, "/api/UserProfile/Upsert?source=nav", strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer token")
	req.RemoteAddr = "203.0.113.4:5000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Body.String() != payload {
		t.Fatalf("handler did not receive the original body, got %q", rr.Body.String())
	}
	if len(recorder.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(recorder.entries))
	}

	entry := recorder.entries[0]
	if entry.UserID == nil || *entry.UserID != "user-9" {
		t.Fatalf("expected user id on entry, got %v", entry.UserID)
	}
	if entry.RequestBody == nil || *entry.RequestBody != payload {
		t.Fatalf("expected captured body, got %v", entry.RequestBody)
	}
	if entry.StatusCode != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", entry.StatusCode)
	}
	if entry.QueryString != "source=nav" {
		t.Fatalf("unexpected query string %q", entry.QueryString)
	}
	if entry.IPAddress != "203.0.113.4" {
		t.Fatalf("unexpected ip %q", entry.IPAddress)
	}
}

func TestApiLogNeverStoresPasswordBodies(t *testing.T) {
	recorder := &fakeApiLogRecorder{}
	router := newApiLogRouter(t, recorder, nil)

	for _, path := range []string{"/api/Account/Login", "/api/Account/AdminUserPasswordReset/user-1"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"password":"hunter2"}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Body.String() != `{"password":"hunter2"}` {
			t.Fatalf("%s: handler lost the body", path)
		}
	}

	if len(recorder.entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recorder.entries))
	}
	for _, entry := range recorder.entries {
		if entry.RequestBody != nil {
			t.Fatalf("%s: body must not be stored, got %q", entry.Path, *entry.RequestBody)
		}
		if entry.UserID != nil {
			t.Fatalf("%s: anonymous request must not carry a user id", entry.Path)
		}
	}
}

func TestApiLogIgnoresRecorderFailure(t *testing.T) {
	recorder := &fakeApiLogRecorder{err: errors.New("db down")}
	router := newApiLogRouter(t, recorder, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/UserProfile/Upsert", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected handler status to survive recorder failure, got %d", rr.Code)
	}
}

type countingBody struct {
	r    io.Reader
	read int
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.read += n
	return n, err
}

func (b *countingBody) Close() error { return nil }

func TestApiLogBuffersOnlyTheLoggedPrefix(t *testing.T) {
	recorder := &fakeApiLogRecorder{}
	router := newApiLogRouter(t, recorder, nil)

	payload := strings.Repeat("a", 3*maxCapturedBody)
	body := &countingBody{r: strings.NewReader(payload)}
	var readBeforeHandler int
	router.POST("/api/UserProfile/Bulk", func(c *gin.Context) {
		readBeforeHandler = body.read
		raw, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusAccepted, string(raw))
	})

	req := httptest.NewRequest(http.MethodPost, "/api/UserProfile/Bulk", nil)
	req.Body = body
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if readBeforeHandler > maxCapturedBody {
		t.Fatalf("middleware consumed %d bytes before the handler ran", readBeforeHandler)
	}
	if rr.Body.String() != payload {
		t.Fatalf("handler received %d bytes, want %d", rr.Body.Len(), len(payload))
	}
	if len(recorder.entries) != 1 || recorder.entries[0].RequestBody == nil {
		t.Fatalf("expected one entry with a body, got %+v", recorder.entries)
	}
	if got := len(*recorder.entries[0].RequestBody); got != maxCapturedBody {
		t.Fatalf("expected body truncated to %d bytes, got %d", maxCapturedBody, got)
	}
}
