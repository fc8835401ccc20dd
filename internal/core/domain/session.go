package domain

import "time"

// Session is an authenticated sign-in held by the session store.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Claims     []Claim   `json:"claims"`
	RememberMe bool      `json:"remember_me"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsActive reports whether the session is still valid at the supplied moment.
func (s Session) IsActive(at time.Time) bool {
	return s.ExpiresAt.After(at)
}

// HasClaim reports whether the session carries the claim with a true value.
func (s Session) HasClaim(claimType string) bool {
	for _, claim := range s.Claims {
		if claim.Type == claimType && claim.Value == ClaimValueTrue {
			return true
		}
	}
	return false
}

// Roles derives role names from the mirrored role claims.
func (s Session) Roles() []string {
	roles := make([]string, 0, len(s.Claims))
	for _, claim := range s.Claims {
		if role, ok := RoleFromClaim(claim); ok {
			roles = append(roles, role)
		}
	}
	return roles
}

// IssuedSession pairs a stored session with the raw token handed to the client.
type IssuedSession struct {
	Token   string
	Session Session
}

// AuthenticatedUser is the identity view rendered by the UserInfo and GetUser endpoints.
type AuthenticatedUser struct {
	IsAuthenticated bool     `json:"isAuthenticated"`
	UserID          string   `json:"userId,omitempty"`
	UserName        string   `json:"userName,omitempty"`
	Email           string   `json:"email,omitempty"`
	FirstName       string   `json:"firstName,omitempty"`
	LastName        string   `json:"lastName,omitempty"`
	ExposedClaims   []Claim  `json:"exposedClaims,omitempty"`
	Roles           []string `json:"roles,omitempty"`
}

// LoggedOutUser returns the canonical unauthenticated identity.
func LoggedOutUser() AuthenticatedUser {
	return AuthenticatedUser{IsAuthenticated: false}
}
