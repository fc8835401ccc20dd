package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
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
	defaultUserPageSize = 20
	maxUserPageSize     = 100

	passwordChangeMethodReset = "reset_token"
	passwordChangeMethodAdmin = "admin_reset"
)

// UserAdminConfig carries the account options consumed by UserAdminService.
type UserAdminConfig struct {
	RequireConfirmedEmail bool
	ApplicationURL        string
}

type sessionRevoker interface {
	RevokeUserSessions(ctx context.Context, userID string) (int, error)
}

// UserAdminDependencies groups the collaborators of UserAdminService.
type UserAdminDependencies struct {
	Users    port.UserRepository
	Roles    port.RoleRepository
	Tx       port.TxRunner
	Accounts *AccountService
	Sessions sessionRevoker
	Tokens   *security.PurposeTokens
	Policy   *security.PasswordPolicy
	Mailer   port.Mailer
	Events   port.EventPublisher
	Logger   *zap.Logger
}

// UserAdminService implements user administration together with the
// token-based self-service flows (confirm email, forgot/reset password).
type UserAdminService struct {
	cfg       UserAdminConfig
	users     port.UserRepository
	roles     port.RoleRepository
	tx        port.TxRunner
	accounts  *AccountService
	sessions  sessionRevoker
	tokens    *security.PurposeTokens
	policy    *security.PasswordPolicy
	sanitizer *security.TextSanitizer
	mailer    port.Mailer
	events    port.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewUserAdminService constructs a UserAdminService.
func NewUserAdminService(cfg UserAdminConfig, deps UserAdminDependencies) *UserAdminService {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	policy := deps.Policy
	if policy == nil {
		policy = security.NewPasswordPolicy(security.DefaultPasswordPolicyConfig())
	}
	cfg.ApplicationURL = strings.TrimRight(strings.TrimSpace(cfg.ApplicationURL), "/")
	return &UserAdminService{
		cfg:       cfg,
		users:     deps.Users,
		roles:     deps.Roles,
		tx:        deps.Tx,
		accounts:  deps.Accounts,
		sessions:  deps.Sessions,
		tokens:    deps.Tokens,
		policy:    policy,
		sanitizer: security.NewTextSanitizer(),
		mailer:    deps.Mailer,
		events:    deps.Events,
		logger:    log,
		now:       time.Now,
	}
}

// CreateUserInput is the admin create payload.
type CreateUserInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// AdminUpdateInput is the admin full-update payload. Roles is the complete target role set.
type AdminUpdateInput struct {
	ID        string
	Username  string
	FirstName string
	LastName  string
	Email     string
	Roles     []string
}

// AdminUpdateResult reports what the role reconciliation phase changed.
type AdminUpdateResult struct {
	User         domain.User
	RolesAdded   []string
	RolesRemoved []string
}

// SelfUpdateInput is the self-service profile update payload. Email doubles as the lookup key.
type SelfUpdateInput struct {
	Email     string
	FirstName string
	LastName  string
}

// Create provisions an account on behalf of an administrator and sends either
// a confirmation email or a welcome email carrying the initial password.
func (s *UserAdminService) Create(ctx context.Context, actorID string, input CreateUserInput) (domain.User, error) {
	user, err := s.accounts.CreateUser(ctx, NewUserInput{
		Username:       input.Username,
		Email:          input.Email,
		Password:       input.Password,
		FirstName:      input.FirstName,
		LastName:       input.LastName,
		EmailConfirmed: !s.cfg.RequireConfirmedEmail,
		CreatedBy:      actorID,
	})
	if err != nil {
		return domain.User{}, err
	}

	if s.cfg.RequireConfirmedEmail {
		s.SendEmailConfirmation(ctx, user)
	} else {
		s.sendTemplate(ctx, domain.EmailTemplateWelcome, user, map[string]any{
			"password":        input.Password,
			"application_url": s.cfg.ApplicationURL,
		})
	}
	return user, nil
}

// Delete removes the user's API log entries and then the user, in one transaction.
func (s *UserAdminService) Delete(ctx context.Context, actorID, userID string) error {
	user, err := s.findByID(ctx, userID)
	if err != nil {
		return err
	}

	var removedLogs int64
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		removed, err := repos.ApiLogs.DeleteByUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("delete api logs: %w", err)
		}
		removedLogs = removed
		if err := repos.Users.Delete(ctx, user.ID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	revoked := s.revokeSessions(ctx, user.ID)
	s.logger.Info("user deleted",
		zap.String("user_id", user.ID),
		zap.String("actor_id", actorID),
		zap.Int64("api_logs_removed", removedLogs),
	)

	if s.events != nil {
		s.logPublish("user deleted", user.ID, s.events.PublishUserDeleted(ctx, domain.UserDeletedEvent{
			EventID:         uuid.NewString(),
			UserID:          user.ID,
			DeletedBy:       actorID,
			DeletedAt:       s.now().UTC(),
			ApiLogsRemoved:  removedLogs,
			SessionsRevoked: revoked,
		}))
	}
	return nil
}

// Update applies profile fields and then reconciles the role set. The two phases
// commit separately; a failure in either is reported with its own sentinel.
func (s *UserAdminService) Update(ctx context.Context, actorID string, input AdminUpdateInput) (AdminUpdateResult, error) {
	user, err := s.findByID(ctx, input.ID)
	if err != nil {
		return AdminUpdateResult{}, err
	}

	if username := strings.TrimSpace(input.Username); username != "" {
		user.Username = username
	}
	if email := strings.TrimSpace(input.Email); email != "" {
		user.Email = email
	}
	user.FirstName = s.sanitizer.Sanitize(input.FirstName)
	user.LastName = s.sanitizer.Sanitize(input.LastName)
	user.UpdatedAt = s.now().UTC()

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		if err := repos.Users.Update(ctx, *user); err != nil {
			return err
		}
		return syncProfileClaims(ctx, repos.Claims, *user)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return AdminUpdateResult{}, &DomainError{Description: "Username or email is already taken.", Err: err}
		}
		return AdminUpdateResult{}, fmt.Errorf("%w: %v", ErrProfileUpdateFailed, err)
	}

	result := AdminUpdateResult{User: *user}
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		current, err := repos.Roles.ListByUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("list user roles: %w", err)
		}
		diff := domain.DiffRoles(roleNames(current), input.Roles)
		if diff.Empty() {
			return nil
		}

		removed, err := removeRoles(ctx, repos, user.ID, diff.Remove)
		if err != nil {
			return err
		}
		added, err := addRoles(ctx, repos, user.ID, diff.Add)
		if err != nil {
			return err
		}
		result.RolesAdded = added
		result.RolesRemoved = removed
		return nil
	})
	if err != nil {
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			return AdminUpdateResult{}, domainErr
		}
		return AdminUpdateResult{}, fmt.Errorf("%w: %v", ErrRoleUpdateFailed, err)
	}

	if len(result.RolesAdded) > 0 || len(result.RolesRemoved) > 0 {
		s.revokeSessions(ctx, user.ID)
		s.publishRoleChanges(ctx, actorID, user.ID, result)
	}
	return result, nil
}

// AdminResetPassword sets a new password without the current one by generating
// a reset token and consuming it immediately.
func (s *UserAdminService) AdminResetPassword(ctx context.Context, actorID, userID, newPassword string) error {
	user, err := s.findByID(ctx, userID)
	if err != nil {
		return err
	}

	token, err := s.tokens.Generate(security.PurposePasswordReset, user.ID, user.SecurityStamp)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	return s.resetPassword(ctx, *user, token, newPassword, actorID, passwordChangeMethodAdmin)
}

// UpdateSelf updates the caller's own names. The user is located by email and
// must be the authenticated caller.
func (s *UserAdminService) UpdateSelf(ctx context.Context, actorID string, input SelfUpdateInput) (domain.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(input.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if user.ID != actorID {
		return domain.User{}, ErrUserNotFound
	}

	user.FirstName = s.sanitizer.Sanitize(input.FirstName)
	user.LastName = s.sanitizer.Sanitize(input.LastName)
	user.UpdatedAt = s.now().UTC()

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		if err := repos.Users.Update(ctx, *user); err != nil {
			return err
		}
		return syncProfileClaims(ctx, repos.Claims, *user)
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	return *user, nil
}

// ConfirmEmail validates the confirmation token and marks the email confirmed.
// The security stamp is rotated, so the token cannot be used again.
func (s *UserAdminService) ConfirmEmail(ctx context.Context, userID, token string) (domain.User, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(token) == "" {
		return domain.User{}, ErrUserNotFound
	}
	user, err := s.findByID(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	if err := s.tokens.Validate(token, security.PurposeEmailConfirmation, user.ID, user.SecurityStamp); err != nil {
		return domain.User{}, ErrInvalidToken
	}

	stamp := security.NewSecurityStamp()
	now := s.now().UTC()
	if err := s.users.ConfirmEmail(ctx, user.ID, stamp, now); err != nil {
		return domain.User{}, fmt.Errorf("confirm email: %w", err)
	}

	user.EmailConfirmed = true
	user.SecurityStamp = stamp
	user.UpdatedAt = now
	return *user, nil
}

// ForgotPassword emails a reset link when the address belongs to a confirmed user.
// It reports nothing to the caller so responses cannot reveal which emails exist.
func (s *UserAdminService) ForgotPassword(ctx context.Context, email string) {
	email = strings.TrimSpace(email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("forgot password lookup failed", zap.String("email", logger.MaskEmail(email)), zap.Error(err))
		}
		return
	}
	if !user.EmailConfirmed {
		s.logger.Info("forgot password ignored for unconfirmed email", zap.String("user_id", user.ID))
		return
	}

	token, err := s.tokens.Generate(security.PurposePasswordReset, user.ID, user.SecurityStamp)
	if err != nil {
		s.logger.Error("generate password reset token failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}

	s.sendTemplate(ctx, domain.EmailTemplatePasswordReset, *user, map[string]any{
		"callback_url": s.callbackURL("ResetPassword", user.ID, token),
	})
}

// ResetPassword consumes a reset token and sets a new password.
func (s *UserAdminService) ResetPassword(ctx context.Context, userID, token, newPassword string) error {
	user, err := s.findByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.resetPassword(ctx, *user, token, newPassword, user.ID, passwordChangeMethodReset); err != nil {
		return err
	}

	s.sendTemplate(ctx, domain.EmailTemplatePasswordResetConfirmation, *user, map[string]any{
		"application_url": s.cfg.ApplicationURL,
	})
	return nil
}

// ListUsers returns one page of users with their role names.
func (s *UserAdminService) ListUsers(ctx context.Context, page, pageSize int) (domain.UserPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultUserPageSize
	}
	if pageSize > maxUserPageSize {
		pageSize = maxUserPageSize
	}

	users, err := s.users.List(ctx, port.UserFilter{Limit: pageSize, Offset: (page - 1) * pageSize})
	if err != nil {
		return domain.UserPage{}, fmt.Errorf("list users: %w", err)
	}
	total, err := s.users.Count(ctx)
	if err != nil {
		return domain.UserPage{}, fmt.Errorf("count users: %w", err)
	}

	ids := make([]string, 0, len(users))
	for _, user := range users {
		ids = append(ids, user.ID)
	}
	rolesByUser, err := s.roles.ListNamesByUsers(ctx, ids)
	if err != nil {
		return domain.UserPage{}, fmt.Errorf("list user roles: %w", err)
	}

	summaries := make([]domain.UserSummary, 0, len(users))
	for _, user := range users {
		user.PasswordHash = ""
		user.SecurityStamp = ""
		summaries = append(summaries, domain.UserSummary{User: user, Roles: rolesByUser[user.ID]})
	}

	return domain.UserPage{Users: summaries, Total: total, Page: page, PageSize: pageSize}, nil
}

// SendEmailConfirmation emails a confirmation link. Failures are logged only.
func (s *UserAdminService) SendEmailConfirmation(ctx context.Context, user domain.User) {
	token, err := s.tokens.Generate(security.PurposeEmailConfirmation, user.ID, user.SecurityStamp)
	if err != nil {
		s.logger.Error("generate email confirmation token failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	s.sendTemplate(ctx, domain.EmailTemplateConfirmEmail, user, map[string]any{
		"callback_url": s.callbackURL("ConfirmEmail", user.ID, token),
	})
}

func (s *UserAdminService) resetPassword(ctx context.Context, user domain.User, token, newPassword, actorID, method string) error {
	if err := s.tokens.Validate(token, security.PurposePasswordReset, user.ID, user.SecurityStamp); err != nil {
		return ErrInvalidToken
	}

	if err := s.policy.Validate(newPassword, security.PasswordContext{
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}); err != nil {
		var policyErr *security.PasswordValidationError
		if errors.As(err, &policyErr) {
			return &DomainError{Description: policyErr.Message, Err: err}
		}
		return fmt.Errorf("validate password: %w", err)
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	if err := s.users.UpdatePassword(ctx, user.ID, hash, security.NewSecurityStamp(), now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}

	revoked := s.revokeSessions(ctx, user.ID)
	if s.events != nil {
		s.logPublish("password changed", user.ID, s.events.PublishPasswordChanged(ctx, domain.PasswordChangedEvent{
			EventID:         uuid.NewString(),
			UserID:          user.ID,
			ChangedAt:       now,
			ChangedBy:       actorID,
			Method:          method,
			SessionsRevoked: revoked,
		}))
	}
	return nil
}

func (s *UserAdminService) findByID(ctx context.Context, userID string) (*domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserNotFound
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

func (s *UserAdminService) revokeSessions(ctx context.Context, userID string) int {
	if s.sessions == nil {
		return 0
	}
	count, err := s.sessions.RevokeUserSessions(ctx, userID)
	if err != nil {
		s.logger.Warn("revoke user sessions failed", zap.String("user_id", userID), zap.Error(err))
		return 0
	}
	return count
}

func (s *UserAdminService) callbackURL(action, userID, token string) string {
	return fmt.Sprintf("%s/Account/%s/%s?token=%s", s.cfg.ApplicationURL, action, url.PathEscape(userID), url.QueryEscape(token))
}

func (s *UserAdminService) sendTemplate(ctx context.Context, template string, user domain.User, data map[string]any) {
	if s.mailer == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["username"] = user.Username
	data["first_name"] = user.FirstName
	data["last_name"] = user.LastName
	data["email"] = user.Email

	if err := s.mailer.SendTemplate(ctx, template, []string{user.Email}, data); err != nil {
		s.logger.Error("send email failed",
			zap.String("template", template),
			zap.String("user_id", user.ID),
			zap.String("email", logger.MaskEmail(user.Email)),
			zap.Error(err),
		)
	}
}

func (s *UserAdminService) publishRoleChanges(ctx context.Context, actorID, userID string, result AdminUpdateResult) {
	if s.events == nil {
		return
	}
	now := s.now().UTC()
	if len(result.RolesAdded) > 0 {
		s.logPublish("roles assigned", userID, s.events.PublishRolesAssigned(ctx, domain.RolesAssignedEvent{
			EventID:    uuid.NewString(),
			UserID:     userID,
			RolesAdded: result.RolesAdded,
			AssignedBy: actorID,
			AssignedAt: now,
		}))
	}
	if len(result.RolesRemoved) > 0 {
		s.logPublish("roles revoked", userID, s.events.PublishRolesRevoked(ctx, domain.RolesRevokedEvent{
			EventID:      uuid.NewString(),
			UserID:       userID,
			RolesRemoved: result.RolesRemoved,
			RevokedBy:    actorID,
			RevokedAt:    now,
		}))
	}
}

func (s *UserAdminService) logPublish(event, userID string, err error) {
	if err != nil {
		s.logger.Warn("publish event failed", zap.String("event", event), zap.String("user_id", userID), zap.Error(err))
	}
}

// syncProfileClaims keeps the email and name claims aligned with the user row.
func syncProfileClaims(ctx context.Context, claims port.ClaimRepository, user domain.User) error {
	if err := claims.Upsert(ctx, user.ID, profileClaims(user)); err != nil {
		return fmt.Errorf("sync profile claims: %w", err)
	}
	var stale []string
	if user.FirstName == "" {
		stale = append(stale, domain.ClaimGivenName)
	}
	if user.LastName == "" {
		stale = append(stale, domain.ClaimFamilyName)
	}
	if len(stale) == 0 {
		return nil
	}
	if err := claims.Remove(ctx, user.ID, stale); err != nil {
		return fmt.Errorf("remove profile claims: %w", err)
	}
	return nil
}
