package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "ACCOUNT"

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Session   SessionSettings   `mapstructure:"session"`
	Lockout   LockoutSettings   `mapstructure:"lockout"`
	Account   AccountSettings   `mapstructure:"account"`
	Tokens    TokenSettings     `mapstructure:"tokens"`
	Mail      MailSettings      `mapstructure:"mail"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Password  PasswordSettings  `mapstructure:"password"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	LogLevel       string   `mapstructure:"log_level"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	MigrateOnStart    bool          `mapstructure:"migrate_on_start"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	DB            int    `mapstructure:"db"`
	Password      string `mapstructure:"password"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	SessionPrefix string `mapstructure:"session_prefix"`
	PoolSize      int    `mapstructure:"pool_size"`
	MinIdleConns  int    `mapstructure:"min_idle_conns"`
}

// KafkaSettings configures the event producer. An empty broker list selects the stub publisher.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// SessionSettings configures the session cookie and lifetimes.
type SessionSettings struct {
	CookieName    string        `mapstructure:"cookie_name"`
	CookieDomain  string        `mapstructure:"cookie_domain"`
	SecureCookie  bool          `mapstructure:"secure_cookie"`
	TTL           time.Duration `mapstructure:"ttl"`
	RememberMeTTL time.Duration `mapstructure:"remember_me_ttl"`
}

type LockoutSettings struct {
	MaxFailedAttempts int           `mapstructure:"max_failed_attempts"`
	Duration          time.Duration `mapstructure:"duration"`
}

// AccountSettings holds the account behaviour switches.
type AccountSettings struct {
	RequireConfirmedEmail bool   `mapstructure:"require_confirmed_email"`
	ApplicationURL        string `mapstructure:"application_url"`
	DefaultLandingPage    string `mapstructure:"default_landing_page"`
}

// TokenSettings configures email confirmation and password reset tokens.
type TokenSettings struct {
	Secret               string        `mapstructure:"secret"`
	Issuer               string        `mapstructure:"issuer"`
	EmailConfirmationTTL time.Duration `mapstructure:"email_confirmation_ttl"`
	PasswordResetTTL     time.Duration `mapstructure:"password_reset_ttl"`
}

// MailSettings selects and configures the email sender. Mode is one of smtp, kafka or log;
// log is refused in production. Workers and QueueSize bound background delivery and
// Timeout caps a single send.
type MailSettings struct {
	Mode         string        `mapstructure:"mode"`
	From         string        `mapstructure:"from"`
	SMTPHost     string        `mapstructure:"smtp_host"`
	SMTPPort     int           `mapstructure:"smtp_port"`
	SMTPUser     string        `mapstructure:"smtp_user"`
	SMTPPassword string        `mapstructure:"smtp_password"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint
type RateLimitSettings struct {
	WindowDuration           time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts         int           `mapstructure:"login_max_attempts"`
	RegisterMaxAttempts      int           `mapstructure:"register_max_attempts"`
	PasswordResetMaxAttempts int           `mapstructure:"password_reset_max_attempts"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type PasswordSettings struct {
	MinLength           int `mapstructure:"min_length"`
	MinCharacterClasses int `mapstructure:"min_character_classes"`
	MinStrengthScore    int `mapstructure:"min_strength_score"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.log_level",
		"app.host",
		"app.port",
		"app.allowed_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"postgres.migrate_on_start",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.session_prefix",
		"redis.pool_size",
		"redis.min_idle_conns",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"session.cookie_name",
		"session.cookie_domain",
		"session.secure_cookie",
		"session.ttl",
		"session.remember_me_ttl",
		"lockout.max_failed_attempts",
		"lockout.duration",
		"account.require_confirmed_email",
		"account.application_url",
		"account.default_landing_page",
		"tokens.secret",
		"tokens.issuer",
		"tokens.email_confirmation_ttl",
		"tokens.password_reset_ttl",
		"mail.mode",
		"mail.from",
		"mail.smtp_host",
		"mail.smtp_port",
		"mail.smtp_user",
		"mail.smtp_password",
		"mail.timeout",
		"mail.workers",
		"mail.queue_size",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.register_max_attempts",
		"rate_limit.password_reset_max_attempts",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"password.min_length",
		"password.min_character_classes",
		"password.min_strength_score",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DSN renders the PostgreSQL connection URL shared by the pool and the migrator.
// Credentials are escaped so reserved characters survive.
func (p PostgresSettings) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:     "/" + p.Database,
		RawQuery: url.Values{"sslmode": {p.SSLMode}}.Encode(),
	}
	return u.String()
}

func (c *AppConfig) validate() error {
	mode := strings.ToLower(c.Mail.Mode)
	switch mode {
	case "smtp", "kafka", "log":
	default:
		return fmt.Errorf("unsupported mail mode %q", c.Mail.Mode)
	}
	if mode == "log" && strings.EqualFold(c.App.Env, "production") {
		return fmt.Errorf("mail.mode log does not deliver email and is not allowed in production")
	}
	if strings.TrimSpace(c.Account.ApplicationURL) == "" {
		return fmt.Errorf("account.application_url is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "account-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "account")
	v.SetDefault("postgres.password", "account_password")
	v.SetDefault("postgres.database", "account")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.migrate_on_start", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.session_prefix", "session")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "account")
	v.SetDefault("kafka.async", true)

	v.SetDefault("session.cookie_name", "account_session")
	v.SetDefault("session.cookie_domain", "")
	v.SetDefault("session.secure_cookie", false)
	v.SetDefault("session.ttl", "12h")
	v.SetDefault("session.remember_me_ttl", "336h")

	v.SetDefault("lockout.max_failed_attempts", 5)
	v.SetDefault("lockout.duration", "5m")

	v.SetDefault("account.require_confirmed_email", false)
	v.SetDefault("account.application_url", "http://localhost:3000")
	v.SetDefault("account.default_landing_page", "/dashboard")

	v.SetDefault("tokens.secret", "")
	v.SetDefault("tokens.issuer", "account-service")
	v.SetDefault("tokens.email_confirmation_ttl", "24h")
	v.SetDefault("tokens.password_reset_ttl", "3h")

	v.SetDefault("mail.mode", "log")
	v.SetDefault("mail.from", "no-reply@localhost")
	v.SetDefault("mail.smtp_host", "localhost")
	v.SetDefault("mail.smtp_port", 25)
	v.SetDefault("mail.smtp_user", "")
	v.SetDefault("mail.smtp_password", "")
	v.SetDefault("mail.timeout", "15s")
	v.SetDefault("mail.workers", 2)
	v.SetDefault("mail.queue_size", 256)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "account-service")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.register_max_attempts", 3)
	v.SetDefault("rate_limit.password_reset_max_attempts", 3)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("password.min_length", 10)
	v.SetDefault("password.min_character_classes", 3)
	v.SetDefault("password.min_strength_score", 3)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
