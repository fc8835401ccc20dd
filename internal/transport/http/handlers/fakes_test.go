package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/core/port"
	"github.com/arklim/account-service/internal/infra/security"
	"github.com/arklim/account-service/internal/repository"
	"github.com/arklim/account-service/internal/transport/http/middleware"
	"github.com/arklim/account-service/internal/usecase"
)

const testTokenSecret = "handler-test-secret-0123456789abcdef"

var testCookies = middleware.SessionCookies{Name: "account_session"}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMemUserRepo(users ...domain.User) *memUserRepo {
	repo := &memUserRepo{users: make(map[string]domain.User, len(users))}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *memUserRepo) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r *memUserRepo) find(match func(domain.User) bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if match(user) {
			return &user, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return domain.NormalizeName(u.Username) == domain.NormalizeName(username) })
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return domain.NormalizeName(u.Email) == domain.NormalizeName(email) })
}

func (r *memUserRepo) Update(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepo) UpdatePassword(_ context.Context, id, passwordHash, securityStamp string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.SecurityStamp = securityStamp
	user.UpdatedAt = changedAt
	r.users[id] = user
	return nil
}

func (r *memUserRepo) ConfirmEmail(_ context.Context, id, securityStamp string, confirmedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.EmailConfirmed = true
	user.SecurityStamp = securityStamp
	user.UpdatedAt = confirmedAt
	r.users[id] = user
	return nil
}

func (r *memUserRepo) UpdateLockout(_ context.Context, id string, failedCount int, lockoutEnd *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.AccessFailedCount = failedCount
	user.LockoutEnd = lockoutEnd
	r.users[id] = user
	return nil
}

func (r *memUserRepo) IncrementAccessFailed(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	user.AccessFailedCount++
	r.users[id] = user
	return user.AccessFailedCount, nil
}

func (r *memUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *memUserRepo) List(_ context.Context, _ port.UserFilter) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]domain.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user)
	}
	return users, nil
}

func (r *memUserRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users), nil
}

type sentEmail struct {
	template string
	to       []string
	data     map[string]any
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (m *captureMailer) SendTemplate(_ context.Context, template string, to []string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentEmail{template: template, to: to, data: data})
	return nil
}

func (m *captureMailer) emails() []sentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentEmail(nil), m.sent...)
}

type fakeSignIn struct {
	passwordErr error
	signedIn    []string
	signedOut   []string
}

func issueFor(user domain.User, rememberMe bool) domain.IssuedSession {
	now := time.Now().UTC()
	return domain.IssuedSession{
		Token: "token-" + user.ID,
		Session: domain.Session{
			ID:         "session-" + user.ID,
			UserID:     user.ID,
			Username:   user.Username,
			Email:      user.Email,
			RememberMe: rememberMe,
			CreatedAt:  now,
			ExpiresAt:  now.Add(time.Hour),
			Claims:     []domain.Claim{{Type: "IsUser", Value: domain.ClaimValueTrue}},
		},
	}
}

func (f *fakeSignIn) PasswordSignIn(_ context.Context, username, _ string, rememberMe, _ bool) (domain.IssuedSession, error) {
	if f.passwordErr != nil {
		return domain.IssuedSession{}, f.passwordErr
	}
	return issueFor(domain.User{ID: "user-" + username, Username: username}, rememberMe), nil
}

func (f *fakeSignIn) SignIn(_ context.Context, user domain.User, rememberMe bool) (domain.IssuedSession, error) {
	f.signedIn = append(f.signedIn, user.ID)
	return issueFor(user, rememberMe), nil
}

func (f *fakeSignIn) SignOut(_ context.Context, token string) error {
	f.signedOut = append(f.signedOut, token)
	return nil
}

type fakeRegistrar struct {
	user domain.User
	err  error
}

func (f *fakeRegistrar) RegisterNewUser(_ context.Context, username, email, _ string, _ bool) (domain.User, error) {
	if f.err != nil {
		return domain.User{}, f.err
	}
	user := f.user
	user.Username = username
	user.Email = email
	return user, nil
}

type fakeProfileRepo struct {
	pages map[string]string
}

func (f *fakeProfileRepo) Get(_ context.Context, _ string) (*domain.UserProfile, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeProfileRepo) Upsert(_ context.Context, _ domain.UserProfile) error {
	return nil
}

func (f *fakeProfileRepo) GetLastPageVisitedByUsername(_ context.Context, username string) (string, error) {
	page, ok := f.pages[username]
	if !ok {
		return "", repository.ErrNotFound
	}
	return page, nil
}

type fakeAuthenticator struct {
	sessions map[string]*domain.Session
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, token string) (*domain.Session, error) {
	session, ok := f.sessions[token]
	if !ok {
		return nil, usecase.ErrSessionNotFound
	}
	return session, nil
}

func newTestTokens(t *testing.T, secret string) *security.PurposeTokens {
	t.Helper()
	tokens, err := security.NewPurposeTokens(security.PurposeTokenConfig{Secret: secret, Issuer: "account-test"})
	require.NoError(t, err)
	return tokens
}

func newTestUserAdmin(t *testing.T, users port.UserRepository, tokens *security.PurposeTokens, mailer port.Mailer, requireConfirmed bool) *usecase.UserAdminService {
	t.Helper()
	return usecase.NewUserAdminService(usecase.UserAdminConfig{
		RequireConfirmedEmail: requireConfirmed,
		ApplicationURL:        "https://app.example.com",
	}, usecase.UserAdminDependencies{
		Users:  users,
		Tokens: tokens,
		Mailer: mailer,
		Logger: zaptest.NewLogger(t),
	})
}

func newAccountRouter(t *testing.T, h *AccountHandler, auth middleware.SessionAuthenticator) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(middleware.EnrichContext())
	api := router.Group("/api")
	api.Use(middleware.Authenticate(auth, testCookies, zaptest.NewLogger(t)))
	h.RegisterRoutes(api.Group("/Account"), AccountRateLimits{})
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, cookie string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		payload, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: testCookies.Name, Value: cookie})
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

type decodedResponse struct {
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Result     json.RawMessage `json:"result"`
	TraceID    string          `json:"traceId"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) decodedResponse {
	t.Helper()
	var resp decodedResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == testCookies.Name && strings.TrimSpace(cookie.Value) != "" {
			return cookie
		}
	}
	return nil
}
