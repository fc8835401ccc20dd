package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/account-service/internal/infra/config"
)

// Tables live in the account schema; public stays on the path for extensions.
const searchPath = "account,public"

// PoolConfig turns settings into a pgxpool config. Zero-valued limits keep the pgx defaults.
func PoolConfig(cfg config.PostgresSettings, tp trace.TracerProvider) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = min(cfg.MinConns, pc.MaxConns)
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	pc.ConnConfig.RuntimeParams["search_path"] = searchPath
	pc.ConnConfig.RuntimeParams["application_name"] = "account-service"
	if tp != nil {
		pc.ConnConfig.Tracer = newQueryTracer(tp)
	}
	return pc, nil
}

// NewPostgresPool opens the pool and verifies it with a ping.
func NewPostgresPool(ctx context.Context, cfg config.PostgresSettings, tp trace.TracerProvider, log *zap.Logger) (*pgxpool.Pool, error) {
	pc, err := PoolConfig(cfg, tp)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	log.Info("postgres pool ready",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.Int32("max_conns", pc.MaxConns),
	)
	return pool, nil
}
