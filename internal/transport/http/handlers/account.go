package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/infra/telemetry"
	"github.com/arklim/account-service/internal/transport/http/middleware"
	"github.com/arklim/account-service/internal/usecase"
)

const forgotPasswordMessage = "If an account with that email exists, a password reset link has been sent."

type accountRegistrar interface {
	RegisterNewUser(ctx context.Context, username, email, password string, requireConfirmedEmail bool) (domain.User, error)
}

type signInManager interface {
	PasswordSignIn(ctx context.Context, username, password string, rememberMe, requireConfirmedEmail bool) (domain.IssuedSession, error)
	SignIn(ctx context.Context, user domain.User, rememberMe bool) (domain.IssuedSession, error)
	SignOut(ctx context.Context, token string) error
}

type userAdministrator interface {
	Create(ctx context.Context, actorID string, input usecase.CreateUserInput) (domain.User, error)
	Delete(ctx context.Context, actorID, userID string) error
	Update(ctx context.Context, actorID string, input usecase.AdminUpdateInput) (usecase.AdminUpdateResult, error)
	AdminResetPassword(ctx context.Context, actorID, userID, newPassword string) error
	UpdateSelf(ctx context.Context, actorID string, input usecase.SelfUpdateInput) (domain.User, error)
	ConfirmEmail(ctx context.Context, userID, token string) (domain.User, error)
	ForgotPassword(ctx context.Context, email string)
	ResetPassword(ctx context.Context, userID, token, newPassword string) error
	ListUsers(ctx context.Context, page, pageSize int) (domain.UserPage, error)
	SendEmailConfirmation(ctx context.Context, user domain.User)
}

type roleLister interface {
	ListRoles(ctx context.Context) ([]string, error)
}

type landingPageResolver interface {
	GetLastPageVisited(ctx context.Context, username string) (string, error)
}

// AccountHandlerConfig carries the account options consumed by the handler.
type AccountHandlerConfig struct {
	RequireConfirmedEmail bool
	Cookies               middleware.SessionCookies
}

// AccountHandlerDependencies groups the services behind the account endpoints.
type AccountHandlerDependencies struct {
	Accounts accountRegistrar
	SignIn   signInManager
	Users    userAdministrator
	Roles    roleLister
	Profiles landingPageResolver
	Metrics  *telemetry.Metrics
	Logger   *zap.Logger
}

// AccountRateLimits holds the middleware placed ahead of the anonymous, abuse-prone endpoints.
type AccountRateLimits struct {
	Login          []gin.HandlerFunc
	Register       []gin.HandlerFunc
	ForgotPassword []gin.HandlerFunc
}

// AccountHandler exposes the /api/Account endpoints.
type AccountHandler struct {
	cfg      AccountHandlerConfig
	accounts accountRegistrar
	signIn   signInManager
	users    userAdministrator
	roles    roleLister
	profiles landingPageResolver
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewAccountHandler constructs AccountHandler.
func NewAccountHandler(cfg AccountHandlerConfig, deps AccountHandlerDependencies) *AccountHandler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountHandler{
		cfg:      cfg,
		accounts: deps.Accounts,
		signIn:   deps.SignIn,
		users:    deps.Users,
		roles:    deps.Roles,
		profiles: deps.Profiles,
		metrics:  deps.Metrics,
		logger:   log,
		now:      time.Now,
	}
}

// RegisterRoutes binds the account routes. The group must already run middleware.Authenticate.
func (h *AccountHandler) RegisterRoutes(r *gin.RouterGroup, limits AccountRateLimits) {
	authenticated := middleware.RequireAuthenticated()
	admin := middleware.RequireAdmin()

	r.POST("/Login", chain(limits.Login, h.login)...)
	r.POST("/Register", chain(limits.Register, h.register)...)
	r.POST("/ConfirmEmail", h.confirmEmail)
	r.POST("/ForgotPassword", chain(limits.ForgotPassword, h.forgotPassword)...)
	r.POST("/ResetPassword", h.resetPassword)
	r.POST("/Logout", authenticated, h.logout)
	r.GET("/UserInfo", h.userInfo)
	r.GET("/GetUser", h.getUser)
	r.POST("/UpdateUser", authenticated, h.updateUser)
	r.GET("/ListRoles", authenticated, h.listRoles)
	r.GET("/ListUsers", admin, h.listUsers)
	r.POST("/Create", admin, h.create)
	r.PUT("", admin, h.update)
	r.DELETE("/:id", admin, h.delete)
	r.POST("/AdminUserPasswordReset/:id", admin, h.adminResetPassword)
}

func chain(pre []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	handlers := make([]gin.HandlerFunc, 0, len(pre)+1)
	handlers = append(handlers, pre...)
	return append(handlers, handler)
}

func (h *AccountHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid login payload")
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err)
		return
	}

	ctx := c.Request.Context()
	issued, err := h.signIn.PasswordSignIn(ctx, req.UserName, req.Password, req.RememberMe, h.cfg.RequireConfirmedEmail)
	if err != nil {
		h.metrics.ObserveLogin(loginOutcome(err))
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrLockedOut, Status: http.StatusUnauthorized, Message: "User account locked out."},
			{Err: usecase.ErrNotAllowed, Status: http.StatusUnauthorized, Message: "Login not allowed."},
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "Invalid username or password."},
		}, http.StatusInternalServerError, "Login failed.")
		return
	}

	h.metrics.ObserveLogin(telemetry.OutcomeSuccess)
	h.cfg.Cookies.Set(c, issued, h.now())
	respond(c, http.StatusOK, "Login successful.", h.landingPage(ctx, issued.Session.Username))
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, usecase.ErrLockedOut):
		return telemetry.OutcomeLocked
	case errors.Is(err, usecase.ErrNotAllowed):
		return telemetry.OutcomeNotAllow
	default:
		return telemetry.OutcomeFailure
	}
}

func (h *AccountHandler) landingPage(ctx context.Context, username string) string {
	page, err := h.profiles.GetLastPageVisited(ctx, username)
	if err != nil {
		h.logger.Warn("load last page visited failed", zap.Error(err))
		return domain.DefaultLandingPage
	}
	return page
}

func (h *AccountHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid registration payload")
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err)
		return
	}

	ctx := c.Request.Context()
	user, err := h.accounts.RegisterNewUser(ctx, req.UserName, req.Email, req.Password, h.cfg.RequireConfirmedEmail)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "Registration failed.")
		return
	}
	h.metrics.ObserveRegistration()

	if h.cfg.RequireConfirmedEmail {
		h.users.SendEmailConfirmation(ctx, user)
		respond(c, http.StatusOK, "Registration successful. Please check your email to confirm your account.", nil)
		return
	}

	issued, err := h.signIn.SignIn(ctx, user, false)
	if err != nil {
		h.logger.Error("sign in after registration failed", zap.String("user_id", user.ID), zap.Error(err))
		respond(c, http.StatusOK, "Registration successful. Please log in.", nil)
		return
	}

	h.cfg.Cookies.Set(c, issued, h.now())
	respond(c, http.StatusOK, "Registration successful.", authenticatedUser(&issued.Session))
}

func (h *AccountHandler) confirmEmail(c *gin.Context) {
	var req ConfirmEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid confirmation payload")
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.ConfirmEmail(ctx, req.UserID, req.Token)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "Unable to load user."},
			{Err: usecase.ErrInvalidToken, Status: http.StatusBadRequest, Message: "Error confirming your email."},
		}, http.StatusInternalServerError, "Error confirming your email.")
		return
	}

	issued, err := h.signIn.SignIn(ctx, user, false)
	if err != nil {
		h.logger.Error("sign in after email confirmation failed", zap.String("user_id", user.ID), zap.Error(err))
		respond(c, http.StatusOK, "Thank you for confirming your email. Please log in.", nil)
		return
	}

	h.cfg.Cookies.Set(c, issued, h.now())
	respond(c, http.StatusOK, "Thank you for confirming your email.", authenticatedUser(&issued.Session))
}

// forgotPassword answers identically whether or not the email belongs to an account.
func (h *AccountHandler) forgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid forgot password payload")
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err)
		return
	}

	h.users.ForgotPassword(c.Request.Context(), req.Email)
	respond(c, http.StatusOK, forgotPasswordMessage, nil)
}

func (h *AccountHandler) resetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid reset password payload")
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err)
		return
	}

	if err := h.users.ResetPassword(c.Request.Context(), req.UserID, req.Token, req.Password); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "Unable to load user."},
			{Err: usecase.ErrInvalidToken, Status: http.StatusBadRequest, Message: "Invalid password reset token."},
		}, http.StatusInternalServerError, "Error resetting password.")
		return
	}

	respond(c, http.StatusOK, "Your password has been reset.", nil)
}

func (h *AccountHandler) logout(c *gin.Context) {
	if err := h.signIn.SignOut(c.Request.Context(), middleware.GetSessionToken(c)); err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "Logout failed.")
		return
	}

	h.cfg.Cookies.Clear(c)
	respond(c, http.StatusOK, "Logged out.", nil)
}

func (h *AccountHandler) userInfo(c *gin.Context) {
	session, _ := middleware.GetSession(c)
	respond(c, http.StatusOK, "User info retrieved.", authenticatedUser(session))
}

func (h *AccountHandler) getUser(c *gin.Context) {
	session, _ := middleware.GetSession(c)
	respond(c, http.StatusOK, "User retrieved.", minimalUser(session))
}

func (h *AccountHandler) updateUser(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid update payload")
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err)
		return
	}

	actorID, _ := middleware.GetAuthenticatedUserID(c)
	user, err := h.users.UpdateSelf(c.Request.Context(), actorID, usecase.SelfUpdateInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "Unable to load user."},
		}, http.StatusBadRequest, "Error updating user.")
		return
	}

	respond(c, http.StatusOK, "User updated.", newUserView(user, nil, h.now()))
}

func (h *AccountHandler) listRoles(c *gin.Context) {
	roles, err := h.roles.ListRoles(c.Request.Context())
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "Error retrieving roles.")
		return
	}
	respond(c, http.StatusOK, "Roles retrieved.", roles)
}

func (h *AccountHandler) listUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))

	result, err := h.users.ListUsers(c.Request.Context(), page, pageSize)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "Error retrieving users.")
		return
	}

	now := h.now()
	views := make([]UserView, 0, len(result.Users))
	for _, summary := range result.Users {
		views = append(views, newUserView(summary.User, summary.Roles, now))
	}
	respond(c, http.StatusOK, "Users retrieved.", UserListResponse{
		Users:    views,
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
	})
}

func (h *AccountHandler) create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid create payload")
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err)
		return
	}

	actorID, _ := middleware.GetAuthenticatedUserID(c)
	user, err := h.users.Create(c.Request.Context(), actorID, usecase.CreateUserInput{
		Username:  req.UserName,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.respondAdminError(c, err, "Error creating user")
		return
	}
	h.metrics.ObserveRegistration()

	respond(c, http.StatusOK, "User created.", newUserView(user, []string{domain.RoleUser}, h.now()))
}

func (h *AccountHandler) update(c *gin.Context) {
	var req AdminUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid update payload")
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err)
		return
	}

	actorID, _ := middleware.GetAuthenticatedUserID(c)
	result, err := h.users.Update(c.Request.Context(), actorID, usecase.AdminUpdateInput{
		ID:        req.ID,
		Username:  req.UserName,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Roles:     req.Roles,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "Unable to load user."},
			{Err: usecase.ErrProfileUpdateFailed, Status: http.StatusInternalServerError, Message: "Error updating user."},
			{Err: usecase.ErrRoleUpdateFailed, Status: http.StatusInternalServerError, Message: "Error updating user roles."},
		}, http.StatusInternalServerError, "Error updating user.")
		return
	}

	respond(c, http.StatusOK, "User updated.", AdminUpdateResponse{
		User:         newUserView(result.User, req.Roles, h.now()),
		RolesAdded:   emptyIfNil(result.RolesAdded),
		RolesRemoved: emptyIfNil(result.RolesRemoved),
	})
}

func (h *AccountHandler) delete(c *gin.Context) {
	actorID, _ := middleware.GetAuthenticatedUserID(c)
	if err := h.users.Delete(c.Request.Context(), actorID, c.Param("id")); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "Unable to load user."},
		}, http.StatusBadRequest, "Error deleting user.")
		return
	}

	respond(c, http.StatusOK, "User deleted.", nil)
}

// adminResetPassword takes the new password as a bare JSON string body.
func (h *AccountHandler) adminResetPassword(c *gin.Context) {
	var password string
	if err := c.ShouldBindJSON(&password); err != nil {
		respondError(c, http.StatusBadRequest, "request body must be the new password as a JSON string")
		return
	}
	if password == "" {
		respondError(c, http.StatusBadRequest, "Password is required.")
		return
	}

	actorID, _ := middleware.GetAuthenticatedUserID(c)
	userID := c.Param("id")
	if err := h.users.AdminResetPassword(c.Request.Context(), actorID, userID, password); err != nil {
		h.respondAdminError(c, err, "Error resetting password")
		return
	}

	h.logger.Info("password reset by administrator",
		zap.String("user_id", userID),
		zap.String("actor_id", actorID),
		zap.String("trace_id", middleware.GetTraceID(c)),
	)
	respond(c, http.StatusOK, "Password reset.", nil)
}

// respondAdminError shows the underlying error text. Only admin-only endpoints use it.
func (h *AccountHandler) respondAdminError(c *gin.Context, err error, prefix string) {
	var domainErr *usecase.DomainError
	if errors.As(err, &domainErr) {
		respondError(c, http.StatusBadRequest, domainErr.Description)
		return
	}
	_ = c.Error(err)
	respondError(c, http.StatusBadRequest, fmt.Sprintf("%s: %v", prefix, err))
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
