package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"uptime/internal/website/models"
	"uptime/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists websites and ticks with pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, w *models.Website) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO websites (id, url, user_id, disabled, created_at)
VALUES ($1, $2, $3, $4, $5)`,
		w.ID, w.URL, w.UserID, w.Disabled, w.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("website %s: %w", w.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert website: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Website, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, url, user_id, disabled, created_at
FROM websites
WHERE id = $1`, id)
	w, err := scanWebsite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find website: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*models.Website, error) {
	return s.query(ctx, `
SELECT id, url, user_id, disabled, created_at
FROM websites
WHERE user_id = $1 AND NOT disabled
ORDER BY created_at, id`, userID)
}

func (s *PostgresStore) ListEnabled(ctx context.Context) ([]*models.Website, error) {
	return s.query(ctx, `
SELECT id, url, user_id, disabled, created_at
FROM websites
WHERE NOT disabled
ORDER BY created_at, id`)
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]*models.Website, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list websites: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Website, 0)
	for rows.Next() {
		w, err := scanWebsite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan website: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Disable(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE websites SET disabled = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("disable website: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddTick(ctx context.Context, t *models.Tick) error {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO website_ticks (id, website_id, validator_id, status, latency_ms, created_at)
SELECT $1, id, $3, $4, $5, $6 FROM websites WHERE id = $2`,
		t.ID, t.WebsiteID, t.ValidatorID, t.Status, t.Latency, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert tick: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("website %s: %w", t.WebsiteID, sentinel.ErrNotFound)
	}
	return nil
}

// ListTicks returns up to limit ticks, newest first. limit <= 0 means all.
func (s *PostgresStore) ListTicks(ctx context.Context, websiteID string, limit int) ([]models.Tick, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, website_id, validator_id, status, latency_ms, created_at
FROM website_ticks
WHERE website_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, websiteID, lim)
	if err != nil {
		return nil, fmt.Errorf("list ticks: %w", err)
	}
	defer rows.Close()

	out := make([]models.Tick, 0)
	for rows.Next() {
		var t models.Tick
		if err := rows.Scan(&t.ID, &t.WebsiteID, &t.ValidatorID, &t.Status, &t.Latency, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanWebsite(row pgx.Row) (*models.Website, error) {
	var w models.Website
	if err := row.Scan(&w.ID, &w.URL, &w.UserID, &w.Disabled, &w.CreatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}
