package postgres

import (
	"context"
	"fmt"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/config"
)

var _ PgxPool = (*pgxpool.Pool)(nil)

// ParsePoolConfig builds the pgx pool configuration for dsn. Zero settings keep
// the pgx defaults, including any pool_* parameters carried by the DSN.
func ParsePoolConfig(dsn string, pc config.DBPoolConfig) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.parse_pool_config: %w", err)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	if pc.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pc.MaxConnIdleTime
	}
	if pc.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = pc.HealthCheckPeriod
	}
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()
	return cfg, nil
}

// NewPool opens the exercise state pool. Queries are traced through otelpgx.
func NewPool(ctx context.Context, dsn string, pc config.DBPoolConfig) (*pgxpool.Pool, error) {
	cfg, err := ParsePoolConfig(dsn, pc)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.new_pool: %w", err)
	}
	return pool, nil
}
