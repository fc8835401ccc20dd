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
	"github.com/arklim/account-service/internal/infra/security"
	"github.com/arklim/account-service/internal/repository"
)

// NewUserInput describes an account to create.
type NewUserInput struct {
	Username       string
	Email          string
	Password       string
	FirstName      string
	LastName       string
	EmailConfirmed bool
	Roles          []string
	CreatedBy      string
}

// AccountService orchestrates account creation: availability checks, password policy and role seeding.
type AccountService struct {
	users     port.UserRepository
	tx        port.TxRunner
	policy    *security.PasswordPolicy
	sanitizer *security.TextSanitizer
	events    port.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewAccountService constructs an AccountService.
func NewAccountService(users port.UserRepository, tx port.TxRunner, policy *security.PasswordPolicy, events port.EventPublisher, logger *zap.Logger) *AccountService {
	if policy == nil {
		policy = security.NewPasswordPolicy(security.DefaultPasswordPolicyConfig())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		users:     users,
		tx:        tx,
		policy:    policy,
		sanitizer: security.NewTextSanitizer(),
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterNewUser creates a self-registered account holding the User role.
// The email starts unconfirmed only when confirmation is required.
// It neither sends email nor signs the user in.
func (s *AccountService) RegisterNewUser(ctx context.Context, username, email, password string, requireConfirmedEmail bool) (domain.User, error) {
	return s.CreateUser(ctx, NewUserInput{
		Username:       username,
		Email:          email,
		Password:       password,
		EmailConfirmed: !requireConfirmedEmail,
	})
}

// CreateUser validates and persists a new account together with its roles and seeded claims.
func (s *AccountService) CreateUser(ctx context.Context, input NewUserInput) (domain.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)
	if username == "" {
		return domain.User{}, NewDomainError("Username is required.")
	}
	if email == "" {
		return domain.User{}, NewDomainError("Email is required.")
	}

	if err := s.ensureAvailable(ctx, username, email); err != nil {
		return domain.User{}, err
	}

	firstName := s.sanitizer.Sanitize(input.FirstName)
	lastName := s.sanitizer.Sanitize(input.LastName)

	if err := s.policy.Validate(input.Password, security.PasswordContext{
		Username:  username,
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
	}); err != nil {
		var policyErr *security.PasswordValidationError
		if errors.As(err, &policyErr) {
			return domain.User{}, &DomainError{Description: policyErr.Message, Err: err}
		}
		return domain.User{}, fmt.Errorf("validate password: %w", err)
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := domain.User{
		ID:             uuid.NewString(),
		Username:       username,
		Email:          email,
		PasswordHash:   passwordHash,
		FirstName:      firstName,
		LastName:       lastName,
		EmailConfirmed: input.EmailConfirmed,
		SecurityStamp:  security.NewSecurityStamp(),
		LockoutEnabled: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	roles := append([]string{domain.RoleUser}, input.Roles...)

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		if err := repos.Users.Create(ctx, user); err != nil {
			return err
		}
		if err := repos.Claims.Upsert(ctx, user.ID, profileClaims(user)); err != nil {
			return fmt.Errorf("seed claims: %w", err)
		}
		_, err := addRoles(ctx, repos, user.ID, roles)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.User{}, &DomainError{Description: "Username or email is already taken.", Err: err}
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user account created",
		zap.String("user_id", user.ID),
		zap.Bool("email_confirmed", user.EmailConfirmed),
	)

	createdBy := input.CreatedBy
	if createdBy == "" {
		createdBy = user.ID
	}
	if s.events != nil {
		if err := s.events.PublishUserRegistered(ctx, domain.UserRegisteredEvent{
			EventID:        uuid.NewString(),
			UserID:         user.ID,
			Username:       user.Username,
			Email:          user.Email,
			EmailConfirmed: user.EmailConfirmed,
			RegisteredAt:   now,
			RegisteredBy:   createdBy,
		}); err != nil {
			s.logger.Warn("publish user registered event failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return user, nil
}

func (s *AccountService) ensureAvailable(ctx context.Context, username, email string) error {
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return NewDomainError("Username '%s' is already taken.", username)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("lookup username: %w", err)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return NewDomainError("Email '%s' is already taken.", email)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("lookup email: %w", err)
	}
	return nil
}

// profileClaims returns the non-role claims kept in sync with the user's profile fields.
func profileClaims(user domain.User) []domain.Claim {
	claims := []domain.Claim{{Type: domain.ClaimEmail, Value: user.Email}}
	if user.FirstName != "" {
		claims = append(claims, domain.Claim{Type: domain.ClaimGivenName, Value: user.FirstName})
	}
	if user.LastName != "" {
		claims = append(claims, domain.Claim{Type: domain.ClaimFamilyName, Value: user.LastName})
	}
	return claims
}
