package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/account-service/internal/core/port"
	"github.com/arklim/account-service/internal/infra/config"
	"github.com/arklim/account-service/internal/infra/database"
	kafkainfra "github.com/arklim/account-service/internal/infra/kafka"
	"github.com/arklim/account-service/internal/infra/logger"
	"github.com/arklim/account-service/internal/infra/mail"
	redisinfra "github.com/arklim/account-service/internal/infra/redis"
	"github.com/arklim/account-service/internal/infra/security"
	"github.com/arklim/account-service/internal/infra/telemetry"
	postgresrepo "github.com/arklim/account-service/internal/repository/postgres"
	redisrepo "github.com/arklim/account-service/internal/repository/redis"
	"github.com/arklim/account-service/internal/transport/http/middleware"
	"github.com/arklim/account-service/internal/transport/http/routes"
	"github.com/arklim/account-service/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	mail     *mail.Queue
	tracer   *telemetry.TracerProvider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.App.Env, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	tokens, err := security.NewPurposeTokens(security.PurposeTokenConfig{
		Secret:               cfg.Tokens.Secret,
		Issuer:               cfg.Tokens.Issuer,
		EmailConfirmationTTL: cfg.Tokens.EmailConfirmationTTL,
		PasswordResetTTL:     cfg.Tokens.PasswordResetTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("init purpose tokens: %w", err)
	}

	if cfg.Postgres.MigrateOnStart {
		if err := database.RunMigrations(cfg.Postgres.DSN(), log); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, tracer.Provider(), log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	var (
		eventPublisher port.EventPublisher
		producer       *kafkainfra.Producer
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(registry)
	httpMetrics := middleware.NewHTTPMetrics(registry)

	renderer, err := mail.NewRenderer()
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init mail templates: %w", err)
	}
	sender, err := mail.NewSender(cfg.Mail, eventPublisher, log)
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init mail sender: %w", err)
	}
	mailQueue := mail.NewQueue(mail.NewMailer(renderer, sender, metrics, log), mail.QueueConfig{
		Workers: cfg.Mail.Workers,
		Size:    cfg.Mail.QueueSize,
		Timeout: cfg.Mail.Timeout,
	}, log)

	policy := security.NewPasswordPolicy(security.PasswordPolicyConfig{
		MinLength:           cfg.Password.MinLength,
		MinCharacterClasses: cfg.Password.MinCharacterClasses,
		MinStrengthScore:    cfg.Password.MinStrengthScore,
	})

	repos := postgresrepo.NewRepositories(pool)
	sessions := redisrepo.NewSessionStore(redisClient.Client(), cfg.Redis.SessionPrefix)

	attempts := redisrepo.NewAttemptStore(redisClient.Client(), redisrepo.AttemptStoreConfig{
		KeyPrefix: "account:rate-limit",
	})
	rateLimiter := middleware.NewRateLimiter(attempts, log)

	accountService := usecase.NewAccountService(repos.Users, repos.Tx, policy, eventPublisher, log)
	signInService := usecase.NewSignInService(repos.Users, repos.Claims, sessions, usecase.SignInConfig{
		SessionTTL:        cfg.Session.TTL,
		RememberMeTTL:     cfg.Session.RememberMeTTL,
		MaxFailedAttempts: cfg.Lockout.MaxFailedAttempts,
		LockoutDuration:   cfg.Lockout.Duration,
	}, log)
	userAdminService := usecase.NewUserAdminService(usecase.UserAdminConfig{
		RequireConfirmedEmail: cfg.Account.RequireConfirmedEmail,
		ApplicationURL:        cfg.Account.ApplicationURL,
	}, usecase.UserAdminDependencies{
		Users:    repos.Users,
		Roles:    repos.Roles,
		Tx:       repos.Tx,
		Accounts: accountService,
		Sessions: signInService,
		Tokens:   tokens,
		Policy:   policy,
		Mailer:   mailQueue,
		Events:   eventPublisher,
		Logger:   log,
	})

	engine := routes.Register(routes.Dependencies{
		Config:         cfg,
		Logger:         log,
		RateLimiter:    rateLimiter,
		HTTPMetrics:    httpMetrics,
		Metrics:        metrics,
		TracerProvider: tracer.Provider(),
		Gatherer:       registry,
		Database:       pool,
		Cache:          redisClient,
		Services: routes.ServiceSet{
			Accounts:  accountService,
			SignIn:    signInService,
			Users:     userAdminService,
			Roles:     usecase.NewRoleService(repos.Roles),
			Profiles:  usecase.NewProfileService(repos.Profiles, cfg.Account.DefaultLandingPage),
			AuditLogs: usecase.NewAuditLogService(repos.ApiLogs),
		},
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
		mail:     mailQueue,
		tracer:   tracer,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			if err := a.producer.Close(); err != nil {
				a.logger.Warn("kafka producer close failed", zap.Error(err))
			}
		}
	}()
	defer func() {
		if a.mail == nil {
			return
		}
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.mail.Close(drainCtx); err != nil {
			a.logger.Warn("mail queue did not drain", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting account API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
