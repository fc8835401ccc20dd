package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/account-service/internal/infra/config"
	"github.com/arklim/account-service/internal/infra/telemetry"
	"github.com/arklim/account-service/internal/transport/http/handlers"
	"github.com/arklim/account-service/internal/transport/http/middleware"
	"github.com/arklim/account-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Accounts  *usecase.AccountService
	SignIn    *usecase.SignInService
	Users     *usecase.UserAdminService
	Roles     *usecase.RoleService
	Profiles  *usecase.ProfileService
	AuditLogs *usecase.AuditLogService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config         *config.AppConfig
	Logger         *zap.Logger
	RateLimiter    *middleware.RateLimiter
	HTTPMetrics    *middleware.HTTPMetrics
	Metrics        *telemetry.Metrics
	TracerProvider trace.TracerProvider
	Gatherer       prometheus.Gatherer
	Services       ServiceSet
	Database       DatabaseChecker
	Cache          CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	Ping(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Tracing(deps.TracerProvider))
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.HTTPMetrics.Handler())
	r.Use(middleware.CORS(cfg.App.AllowedOrigins))

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("postgres", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.Ping))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", metricsHandler(deps.Gatherer))

	cookies := middleware.SessionCookies{
		Name:   cfg.Session.CookieName,
		Domain: cfg.Session.CookieDomain,
		Secure: cfg.Session.SecureCookie,
	}

	// Typed nil pointers must not reach the middleware interfaces.
	var authenticator middleware.SessionAuthenticator
	if deps.Services.SignIn != nil {
		authenticator = deps.Services.SignIn
	}
	var recorder middleware.ApiLogRecorder
	if deps.Services.AuditLogs != nil {
		recorder = deps.Services.AuditLogs
	}

	api := r.Group("/api")
	api.Use(middleware.Authenticate(authenticator, cookies, deps.Logger))
	api.Use(middleware.ApiLog(recorder, deps.Logger))
	{
		accountHandler := handlers.NewAccountHandler(handlers.AccountHandlerConfig{
			RequireConfirmedEmail: cfg.Account.RequireConfirmedEmail,
			Cookies:               cookies,
		}, handlers.AccountHandlerDependencies{
			Accounts: deps.Services.Accounts,
			SignIn:   deps.Services.SignIn,
			Users:    deps.Services.Users,
			Roles:    deps.Services.Roles,
			Profiles: deps.Services.Profiles,
			Metrics:  deps.Metrics,
			Logger:   deps.Logger,
		})
		accountHandler.RegisterRoutes(api.Group("/Account"), handlers.AccountRateLimits{
			Login:          rateLimit(deps, "account_login_ip", cfg.RateLimit.LoginMaxAttempts),
			Register:       rateLimit(deps, "account_register_ip", cfg.RateLimit.RegisterMaxAttempts),
			ForgotPassword: rateLimit(deps, "account_forgot_password_ip", cfg.RateLimit.PasswordResetMaxAttempts),
		})

		handlers.NewProfileHandler(deps.Services.Profiles).RegisterRoutes(api.Group("/UserProfile"))
		handlers.NewApiLogHandler(deps.Services.AuditLogs).RegisterRoutes(api.Group("/ApiLog"))
	}

	return r
}

func metricsHandler(gatherer prometheus.Gatherer) gin.HandlerFunc {
	if gatherer == nil {
		return gin.WrapH(promhttp.Handler())
	}
	return gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

func rateLimit(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	})}
}
