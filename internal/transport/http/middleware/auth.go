package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/usecase"
)

const (
	// SessionKey is the context key for the authenticated session.
	SessionKey = "session"
	// SessionTokenKey is the context key for the raw session token.
	SessionTokenKey = "session_token"

	defaultSessionCookieName = "account_session"
)

// ErrorResponse matches the handlers.Response envelope.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	TraceID    string `json:"traceId,omitempty"`
}

func newErrorResponse(c *gin.Context, status int, message string) ErrorResponse {
	return ErrorResponse{
		StatusCode: status,
		Message:    message,
		TraceID:    GetTraceID(c),
	}
}

// SessionAuthenticator resolves a raw session token into a session.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Session, error)
}

// SessionCookies describes the session cookie issued after sign in.
type SessionCookies struct {
	Name   string
	Domain string
	Secure bool
}

func (sc SessionCookies) name() string {
	if sc.Name == "" {
		return defaultSessionCookieName
	}
	return sc.Name
}

// Set writes the session cookie. Remember-me sessions get a persistent cookie
// expiring with the session; others live for the browser session only.
func (sc SessionCookies) Set(c *gin.Context, issued domain.IssuedSession, now time.Time) {
	cookie := &http.Cookie{
		Name:     sc.name(),
		Value:    issued.Token,
		Path:     "/",
		Domain:   sc.Domain,
		Secure:   sc.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if issued.Session.RememberMe {
		cookie.MaxAge = int(issued.Session.ExpiresAt.Sub(now).Seconds())
		cookie.Expires = issued.Session.ExpiresAt
	}
	http.SetCookie(c.Writer, cookie)
}

// Clear expires the session cookie.
func (sc SessionCookies) Clear(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     sc.name(),
		Value:    "",
		Path:     "/",
		Domain:   sc.Domain,
		Secure:   sc.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// Token extracts the session token from a Bearer header or the session cookie.
func (sc SessionCookies) Token(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := c.Cookie(sc.name()); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

// Authenticate resolves the caller's session when one is presented. Requests
// without a valid session continue anonymously; policies decide whether that is allowed.
func Authenticate(auth SessionAuthenticator, cookies SessionCookies, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		token := cookies.Token(c)
		if token == "" || auth == nil {
			c.Next()
			return
		}

		session, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, usecase.ErrSessionNotFound) {
				log.Error("session lookup failed", zap.String("trace_id", GetTraceID(c)), zap.Error(err))
			}
			c.Next()
			return
		}

		c.Set(SessionKey, session)
		c.Set(SessionTokenKey, token)
		c.Set(UserIDKey, session.UserID)

		c.Next()
	}
}

// RequireAuthenticated rejects requests without a session.
func RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetSession(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, http.StatusUnauthorized, "authentication required"))
			return
		}
		c.Next()
	}
}

// RequirePolicy rejects requests whose session lacks a true-valued claim of claimType.
func RequirePolicy(claimType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := GetSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, http.StatusUnauthorized, "authentication required"))
			return
		}

		if !session.HasClaim(claimType) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, http.StatusForbidden, "insufficient permissions"))
			return
		}

		c.Next()
	}
}

// RequireAdmin applies the IsAdmin policy.
func RequireAdmin() gin.HandlerFunc {
	return RequirePolicy(domain.PolicyAdmin)
}

// GetSession returns the authenticated session, if any.
func GetSession(c *gin.Context) (*domain.Session, bool) {
	value, exists := c.Get(SessionKey)
	if !exists {
		return nil, false
	}
	session, ok := value.(*domain.Session)
	return session, ok && session != nil
}

// GetSessionToken returns the raw token of the authenticated session.
func GetSessionToken(c *gin.Context) string {
	return c.GetString(SessionTokenKey)
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers)
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}

	if id, ok := userID.(string); ok {
		return id, true
	}

	return "", false
}
