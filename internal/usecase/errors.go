package usecase

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials indicates an unknown user or a wrong password. The two are never distinguished.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrLockedOut indicates the account is temporarily locked after repeated failures.
	ErrLockedOut = errors.New("user account locked out")
	// ErrNotAllowed indicates the account may not sign in yet, e.g. its email is unconfirmed.
	ErrNotAllowed = errors.New("sign in not allowed")
	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidToken indicates a confirmation or reset token failed validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSessionNotFound indicates the session token is unknown or expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrProfileUpdateFailed wraps persistence failures of the profile phase of an admin update.
	ErrProfileUpdateFailed = errors.New("error updating user")
	// ErrRoleUpdateFailed wraps persistence failures of the role reconciliation phase of an admin update.
	ErrRoleUpdateFailed = errors.New("error updating user roles")
)

// DomainError is a business-rule violation whose Description is safe to show to callers.
type DomainError struct {
	Description string
	Err         error
}

// NewDomainError constructs a DomainError with a formatted description.
func NewDomainError(format string, args ...any) *DomainError {
	return &DomainError{Description: fmt.Sprintf(format, args...)}
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return e.Description
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
