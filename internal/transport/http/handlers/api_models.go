package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/transport/http/middleware"
)

// Response is the envelope returned by every API endpoint. StatusCode always equals the HTTP status.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Result     any    `json:"result,omitempty"`
	TraceID    string `json:"traceId,omitempty"`
}

// NewErrorResponse creates an error envelope with the trace ID from context.
func NewErrorResponse(c *gin.Context, status int, message string) Response {
	return Response{
		StatusCode: status,
		Message:    message,
		TraceID:    middleware.GetTraceID(c),
	}
}

// respond writes the envelope with a matching HTTP status.
func respond(c *gin.Context, status int, message string, result any) {
	c.JSON(status, Response{
		StatusCode: status,
		Message:    message,
		Result:     result,
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, NewErrorResponse(c, status, message))
}

// UserView is the public projection of a user account.
type UserView struct {
	ID             string    `json:"id"`
	UserName       string    `json:"userName"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	EmailConfirmed bool      `json:"emailConfirmed"`
	LockedOut      bool      `json:"lockedOut"`
	Roles          []string  `json:"roles,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func newUserView(user domain.User, roles []string, now time.Time) UserView {
	return UserView{
		ID:             user.ID,
		UserName:       user.Username,
		Email:          user.Email,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		EmailConfirmed: user.EmailConfirmed,
		LockedOut:      user.IsLockedOut(now),
		Roles:          roles,
		CreatedAt:      user.CreatedAt,
	}
}

// UserListResponse is a page of users.
type UserListResponse struct {
	Users    []UserView `json:"users"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
}

// AdminUpdateResponse reports the outcome of an admin update.
type AdminUpdateResponse struct {
	User         UserView `json:"user"`
	RolesAdded   []string `json:"rolesAdded"`
	RolesRemoved []string `json:"rolesRemoved"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// exposedClaim reports whether a session claim may be shown to the client.
func exposedClaim(claim domain.Claim) bool {
	if strings.HasPrefix(claim.Type, domain.RoleClaimPrefix) {
		return true
	}
	switch claim.Type {
	case domain.ClaimGivenName, domain.ClaimFamilyName, domain.ClaimEmail:
		return true
	}
	return false
}

// authenticatedUser builds the UserInfo payload for a session; nil yields the logged-out shape.
func authenticatedUser(session *domain.Session) domain.AuthenticatedUser {
	if session == nil {
		return domain.LoggedOutUser()
	}

	claims := make([]domain.Claim, 0, len(session.Claims))
	for _, claim := range session.Claims {
		if exposedClaim(claim) {
			claims = append(claims, claim)
		}
	}

	return domain.AuthenticatedUser{
		IsAuthenticated: true,
		UserID:          session.UserID,
		UserName:        session.Username,
		Email:           session.Email,
		FirstName:       session.FirstName,
		LastName:        session.LastName,
		ExposedClaims:   claims,
		Roles:           session.Roles(),
	}
}

// minimalUser builds the GetUser payload.
func minimalUser(session *domain.Session) domain.AuthenticatedUser {
	if session == nil {
		return domain.LoggedOutUser()
	}
	return domain.AuthenticatedUser{
		IsAuthenticated: true,
		UserName:        session.Username,
		Email:           session.Email,
	}
}
