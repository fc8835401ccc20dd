package domain

import "time"

// DefaultLandingPage is returned when a user has no stored last-visited page.
const DefaultLandingPage = "/dashboard"

// UserProfile holds per-user UI preferences.
type UserProfile struct {
	UserID          string    `json:"userId"`
	LastPageVisited string    `json:"lastPageVisited"`
	IsNavOpen       bool      `json:"isNavOpen"`
	IsNavMinified   bool      `json:"isNavMinified"`
	Count           int       `json:"count"`
	LastUpdated     time.Time `json:"lastUpdated"`
}

// DefaultUserProfile returns the unsaved profile shape used when no row exists.
func DefaultUserProfile(userID string) UserProfile {
	return UserProfile{
		UserID:          userID,
		LastPageVisited: DefaultLandingPage,
		IsNavOpen:       true,
	}
}
