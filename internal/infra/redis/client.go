package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arklim/account-service/internal/infra/config"
)

const connectTimeout = 5 * time.Second

// Options maps settings onto go-redis options. Pool sizes fall back to 10 and 2.
func Options(cfg config.RedisSettings) *red.Options {
	opts := &red.Options{
		Addr:            net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		MaxRetries:      3,
		DialTimeout:     connectTimeout,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}
	if opts.MinIdleConns <= 0 {
		opts.MinIdleConns = 2
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: cfg.Host}
	}
	return opts
}

// Client owns the connection pool shared by the session store and the rate limiter.
type Client struct {
	rdb    *red.Client
	logger *zap.Logger
}

// NewClient connects and pings once so that a bad address fails at startup.
func NewClient(ctx context.Context, cfg config.RedisSettings, logger *zap.Logger) (*Client, error) {
	opts := Options(cfg)
	rdb := red.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}

	logger.Info("redis pool ready",
		zap.String("addr", opts.Addr),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", opts.PoolSize),
		zap.Bool("tls", cfg.TLSEnabled),
	)
	return &Client{rdb: rdb, logger: logger}, nil
}

func (c *Client) Client() *red.Client {
	return c.rdb
}

// Ping backs the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	c.logger.Info("redis pool closed")
	return nil
}
