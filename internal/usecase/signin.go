package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/core/port"
	"github.com/arklim/account-service/internal/infra/logger"
	"github.com/arklim/account-service/internal/infra/security"
	"github.com/arklim/account-service/internal/repository"
)

const (
	defaultSessionTTL        = 12 * time.Hour
	defaultRememberMeTTL     = 14 * 24 * time.Hour
	defaultMaxFailedAttempts = 5
	defaultLockoutDuration   = 5 * time.Minute
)

// SignInConfig tunes session lifetimes and lockout thresholds.
type SignInConfig struct {
	SessionTTL        time.Duration
	RememberMeTTL     time.Duration
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

func (c SignInConfig) withDefaults() SignInConfig {
	if c.SessionTTL <= 0 {
		c.SessionTTL = defaultSessionTTL
	}
	if c.RememberMeTTL <= 0 {
		c.RememberMeTTL = defaultRememberMeTTL
	}
	if c.MaxFailedAttempts <= 0 {
		c.MaxFailedAttempts = defaultMaxFailedAttempts
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = defaultLockoutDuration
	}
	return c
}

// SignInService validates credentials, tracks lockout counters and issues sessions.
type SignInService struct {
	users    port.UserRepository
	claims   port.ClaimRepository
	sessions port.SessionStore
	cfg      SignInConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewSignInService constructs a SignInService.
func NewSignInService(users port.UserRepository, claims port.ClaimRepository, sessions port.SessionStore, cfg SignInConfig, log *zap.Logger) *SignInService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SignInService{
		users:    users,
		claims:   claims,
		sessions: sessions,
		cfg:      cfg.withDefaults(),
		logger:   log,
		now:      time.Now,
	}
}

// PasswordSignIn checks the password for username and issues a session.
// Unknown users and wrong passwords both yield ErrInvalidCredentials.
func (s *SignInService) PasswordSignIn(ctx context.Context, username, password string, rememberMe, requireConfirmedEmail bool) (domain.IssuedSession, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.IssuedSession{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.IssuedSession{}, ErrInvalidCredentials
		}
		return domain.IssuedSession{}, fmt.Errorf("lookup user: %w", err)
	}

	now := s.now().UTC()
	if user.IsLockedOut(now) {
		s.logger.Warn("sign in rejected for locked out user", zap.String("user_id", user.ID))
		return domain.IssuedSession{}, ErrLockedOut
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return domain.IssuedSession{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return domain.IssuedSession{}, s.recordFailure(ctx, *user, now)
	}

	if requireConfirmedEmail && !user.EmailConfirmed {
		s.logger.Info("sign in not allowed before email confirmation",
			zap.String("user_id", user.ID),
			zap.String("email", logger.MaskEmail(user.Email)),
		)
		return domain.IssuedSession{}, ErrNotAllowed
	}

	if user.AccessFailedCount > 0 || user.LockoutEnd != nil {
		if err := s.users.UpdateLockout(ctx, user.ID, 0, nil); err != nil {
			return domain.IssuedSession{}, fmt.Errorf("reset access failed count: %w", err)
		}
	}
	s.upgradeHash(ctx, *user, password, now)

	return s.SignIn(ctx, *user, rememberMe)
}

// upgradeHash re-hashes the password when the Argon2 parameters changed since it was stored.
// The security stamp is kept so existing sessions survive.
func (s *SignInService) upgradeHash(ctx context.Context, user domain.User, password string, now time.Time) {
	if !security.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := security.HashPassword(password)
	if err == nil {
		err = s.users.UpdatePassword(ctx, user.ID, hash, user.SecurityStamp, now)
	}
	if err != nil {
		s.logger.Warn("password hash upgrade failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	s.logger.Info("password hash upgraded", zap.String("user_id", user.ID))
}

func (s *SignInService) recordFailure(ctx context.Context, user domain.User, now time.Time) error {
	if !user.LockoutEnabled {
		return ErrInvalidCredentials
	}

	failed, err := s.users.IncrementAccessFailed(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("record access failure: %w", err)
	}
	if failed < s.cfg.MaxFailedAttempts {
		return ErrInvalidCredentials
	}

	lockoutEnd := now.Add(s.cfg.LockoutDuration)
	if err := s.users.UpdateLockout(ctx, user.ID, 0, &lockoutEnd); err != nil {
		return fmt.Errorf("lock out user: %w", err)
	}
	s.logger.Warn("user locked out after repeated failures",
		zap.String("user_id", user.ID),
		zap.Time("lockout_end", lockoutEnd),
	)
	return ErrLockedOut
}

// SignIn issues a session for an already verified user.
func (s *SignInService) SignIn(ctx context.Context, user domain.User, rememberMe bool) (domain.IssuedSession, error) {
	claims, err := s.claims.ListByUser(ctx, user.ID)
	if err != nil {
		return domain.IssuedSession{}, fmt.Errorf("load claims: %w", err)
	}

	token, err := security.NewSessionToken()
	if err != nil {
		return domain.IssuedSession{}, err
	}

	ttl := s.cfg.SessionTTL
	if rememberMe {
		ttl = s.cfg.RememberMeTTL
	}

	now := s.now().UTC()
	session := domain.Session{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Username:   user.Username,
		Email:      user.Email,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Claims:     claims,
		RememberMe: rememberMe,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	if err := s.sessions.Save(ctx, security.HashToken(token), session, ttl); err != nil {
		return domain.IssuedSession{}, fmt.Errorf("store session: %w", err)
	}

	return domain.IssuedSession{Token: token, Session: session}, nil
}

// Authenticate resolves a raw session token.
func (s *SignInService) Authenticate(ctx context.Context, token string) (*domain.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrSessionNotFound
	}

	session, err := s.sessions.Get(ctx, security.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !session.IsActive(s.now()) {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// SignOut terminates the session identified by token. Unknown tokens are ignored.
func (s *SignInService) SignOut(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, security.HashToken(token)); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// RevokeUserSessions terminates every session belonging to userID.
func (s *SignInService) RevokeUserSessions(ctx context.Context, userID string) (int, error) {
	count, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	return count, nil
}
