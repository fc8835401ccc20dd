package domain

import "time"

// UserRegisteredEvent represents the payload for account.user.registered messages.
type UserRegisteredEvent struct {
	EventID        string
	UserID         string
	Username       string
	Email          string
	EmailConfirmed bool
	RegisteredAt   time.Time
	RegisteredBy   string
	Metadata       map[string]any
}

// UserDeletedEvent represents the payload for account.user.deleted messages.
type UserDeletedEvent struct {
	EventID         string
	UserID          string
	DeletedBy       string
	DeletedAt       time.Time
	ApiLogsRemoved  int64
	SessionsRevoked int
	Metadata        map[string]any
}

// PasswordChangedEvent represents the payload for account.user.password.changed messages.
type PasswordChangedEvent struct {
	EventID         string
	UserID          string
	ChangedAt       time.Time
	ChangedBy       string
	Method          string
	SessionsRevoked int
	Metadata        map[string]any
}

// RolesAssignedEvent represents the payload for account.user.roles.assigned messages.
type RolesAssignedEvent struct {
	EventID    string
	UserID     string
	RolesAdded []string
	AssignedBy string
	AssignedAt time.Time
	Metadata   map[string]any
}

// RolesRevokedEvent represents the payload for account.user.roles.revoked messages.
type RolesRevokedEvent struct {
	EventID      string
	UserID       string
	RolesRemoved []string
	RevokedBy    string
	RevokedAt    time.Time
	Metadata     map[string]any
}

// EmailRequestedEvent represents the payload for account.email.requested messages.
type EmailRequestedEvent struct {
	EventID     string
	To          []string
	Subject     string
	Body        string
	Template    string
	RequestedAt time.Time
	Metadata    map[string]any
}
