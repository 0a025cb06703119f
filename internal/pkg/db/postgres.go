// Package db provides PostgreSQL database connection management.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"points-ledger-bot/internal/config"
)

// Pool is the ledger's connection pool.
type Pool struct {
	*pgxpool.Pool
}

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultMaxConnLifetime   = time.Hour
	defaultMaxConnIdleTime   = 30 * time.Minute
	defaultHealthCheckPeriod = 30 * time.Second

	// Claims and withdrawals hold a row lock inside a transaction while the
	// API and the scheduler keep querying, so one connection is never enough.
	minPoolSize = 2
)

// poolSettings is the effective pool configuration after defaults.
type poolSettings struct {
	maxConns          int32
	minConns          int32
	connectTimeout    time.Duration
	maxConnLifetime   time.Duration
	maxConnIdleTime   time.Duration
	healthCheckPeriod time.Duration
}

func settingsFor(cfg *config.DatabaseConfig) poolSettings {
	size := max(cfg.PoolSize, minPoolSize)
	s := poolSettings{
		maxConns:          int32(size),
		minConns:          int32(max(size/4, 1)),
		connectTimeout:    cfg.ConnectTimeout,
		maxConnLifetime:   cfg.MaxConnLifetime,
		maxConnIdleTime:   cfg.MaxConnIdleTime,
		healthCheckPeriod: defaultHealthCheckPeriod,
	}
	if s.connectTimeout <= 0 {
		s.connectTimeout = defaultConnectTimeout
	}
	if s.maxConnLifetime <= 0 {
		s.maxConnLifetime = defaultMaxConnLifetime
	}
	if s.maxConnIdleTime <= 0 {
		s.maxConnIdleTime = defaultMaxConnIdleTime
	}
	return s
}

func (s poolSettings) apply(pc *pgxpool.Config) {
	pc.MaxConns = s.maxConns
	pc.MinConns = s.minConns
	pc.ConnConfig.ConnectTimeout = s.connectTimeout
	pc.MaxConnLifetime = s.maxConnLifetime
	pc.MaxConnIdleTime = s.maxConnIdleTime
	pc.HealthCheckPeriod = s.healthCheckPeriod

	// Claim times are compared against the application clock in UTC.
	pc.ConnConfig.RuntimeParams["timezone"] = "UTC"
}

// NewPool connects to the ledger database and verifies the connection.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	settings := settingsFor(cfg)
	settings.apply(poolConfig)

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Int32("max_conns", settings.maxConns).
		Int32("min_conns", settings.minConns).
		Dur("connect_timeout", settings.connectTimeout).
		Dur("max_conn_lifetime", settings.maxConnLifetime).
		Dur("max_conn_idle_time", settings.maxConnIdleTime).
		Dur("health_check_period", settings.healthCheckPeriod).
		Msg("Connecting to PostgreSQL")

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Connected to ledger database")

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
		log.Info().Msg("PostgreSQL connection pool closed")
	}
}

// LogStats writes pool statistics to the log. The scheduler calls it on
// the pool_stats_interval.
func (p *Pool) LogStats() {
	s := p.Pool.Stat()
	log.Info().
		Int32("total_conns", s.TotalConns()).
		Int32("idle_conns", s.IdleConns()).
		Int32("acquired_conns", s.AcquiredConns()).
		Int64("acquire_count", s.AcquireCount()).
		Dur("acquire_duration", s.AcquireDuration()).
		Msg("PostgreSQL pool stats")
}

// HealthCheck performs a health check on the database connection.
func (p *Pool) HealthCheck(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}
