// Package postgres opens the pgx pool and bootstraps the record schema.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS websites (
	id         text PRIMARY KEY,
	url        text NOT NULL,
	user_id    text NOT NULL,
	disabled   boolean NOT NULL DEFAULT false,
	created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS websites_user_enabled_idx ON websites (user_id) WHERE NOT disabled;

CREATE TABLE IF NOT EXISTS website_ticks (
	id           text PRIMARY KEY,
	website_id   text NOT NULL REFERENCES websites (id),
	validator_id text NOT NULL,
	status       text NOT NULL,
	latency_ms   bigint NOT NULL,
	created_at   timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS website_ticks_recent_idx ON website_ticks (website_id, created_at DESC);
`

// Tables lists the record tables in dependency order, children first.
var Tables = []string{"website_ticks", "websites"}

// New connects and pings. An empty dsn is an error; callers decide whether
// postgres is optional.
func New(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate creates the record tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
