package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/core/port"
	"github.com/arklim/account-service/internal/infra/security"
	"github.com/arklim/account-service/internal/repository"
)

// ProfileService manages per-user UI preferences.
type ProfileService struct {
	profiles    port.ProfileRepository
	landingPage string
	sanitizer   *security.TextSanitizer
	now         func() time.Time
}

// NewProfileService constructs a ProfileService. An empty landingPage falls back to domain.DefaultLandingPage.
func NewProfileService(profiles port.ProfileRepository, landingPage string) *ProfileService {
	landingPage = strings.TrimSpace(landingPage)
	if landingPage == "" {
		landingPage = domain.DefaultLandingPage
	}
	return &ProfileService{
		profiles:    profiles,
		landingPage: landingPage,
		sanitizer:   security.NewTextSanitizer(),
		now:         time.Now,
	}
}

// Get returns the stored profile or a default one. It never creates a row.
func (s *ProfileService) Get(ctx context.Context, userID string) (domain.UserProfile, error) {
	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			fallback := domain.DefaultUserProfile(userID)
			fallback.LastPageVisited = s.landingPage
			return fallback, nil
		}
		return domain.UserProfile{}, fmt.Errorf("load profile: %w", err)
	}
	if profile.LastPageVisited == "" {
		profile.LastPageVisited = s.landingPage
	}
	return *profile, nil
}

// Upsert inserts or replaces the profile for profile.UserID and refreshes LastUpdated.
func (s *ProfileService) Upsert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if strings.TrimSpace(profile.UserID) == "" {
		return domain.UserProfile{}, ErrUserNotFound
	}
	profile.LastPageVisited = s.sanitizer.Sanitize(profile.LastPageVisited)
	profile.LastUpdated = s.now().UTC()

	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return domain.UserProfile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return profile, nil
}

// GetLastPageVisited looks the profile up by username and falls back to the landing page.
func (s *ProfileService) GetLastPageVisited(ctx context.Context, username string) (string, error) {
	page, err := s.profiles.GetLastPageVisitedByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.landingPage, nil
		}
		return "", fmt.Errorf("load last page visited: %w", err)
	}
	if strings.TrimSpace(page) == "" {
		return s.landingPage, nil
	}
	return page, nil
}
