package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied on startup. Every statement is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS redirects (
	slug          VARCHAR(32) PRIMARY KEY,
	url           TEXT        NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	identifier    TEXT        NOT NULL DEFAULT '',
	resource_name TEXT        NOT NULL DEFAULT '',
	meta          JSONB       NOT NULL DEFAULT '{}'::jsonb
);

CREATE TABLE IF NOT EXISTS redirect_hits (
	id      BIGSERIAL   PRIMARY KEY,
	slug    VARCHAR(32) NOT NULL REFERENCES redirects(slug) ON DELETE CASCADE,
	ip      TEXT        NOT NULL DEFAULT '',
	ua      TEXT        NOT NULL DEFAULT '',
	referer TEXT        NOT NULL DEFAULT '',
	at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_redirect_hits_slug_id ON redirect_hits (slug, id);
`

// InitDB initializes the database connection pool
func InitDB(ctx context.Context, dsn string, maxConns, minConns int, maxLifetime time.Duration) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = int32(maxConns)
	config.MinConns = int32(minConns)
	config.MaxConnLifetime = maxLifetime
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// EnsureSchema creates the redirect tables when they do not exist yet
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
