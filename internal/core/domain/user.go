package domain

import (
	"strings"
	"time"
)

// User mirrors the persisted representation in the users table.
type User struct {
	ID                string
	Username          string
	Email             string
	PasswordHash      string
	FirstName         string
	LastName          string
	EmailConfirmed    bool
	SecurityStamp     string
	AccessFailedCount int
	LockoutEnabled    bool
	LockoutEnd        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsLockedOut reports whether the account is locked at the supplied moment.
func (u User) IsLockedOut(at time.Time) bool {
	if !u.LockoutEnabled || u.LockoutEnd == nil {
		return false
	}
	return u.LockoutEnd.After(at)
}

// FullName joins first and last name, skipping empty parts.
func (u User) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// NormalizeName produces the case-insensitive lookup key used for usernames, emails and role names.
func NormalizeName(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// UserSummary is a user projection with its role names, used by admin listings.
type UserSummary struct {
	User  User
	Roles []string
}

// UserPage is a page of users plus the total count.
type UserPage struct {
	Users    []UserSummary
	Total    int
	Page     int
	PageSize int
}
