package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"link-tracker/internal/domain"
	"link-tracker/internal/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// foreignKeyViolation is the SQLSTATE raised when a hit references an unknown slug
const foreignKeyViolation = "23503"

// RedirectRepository is the PostgreSQL implementation of repository.RedirectRepository.
// Hits live in their own table, so concurrent visits are plain INSERTs and never
// overwrite each other.
type RedirectRepository struct {
	db      *pgxpool.Pool
	maxHits int
}

// NewRedirectRepository creates a new PostgreSQL redirect repository.
// maxHits <= 0 keeps the full hit history.
func NewRedirectRepository(db *pgxpool.Pool, maxHits int) *RedirectRepository {
	return &RedirectRepository{db: db, maxHits: maxHits}
}

// track starts timing a query; call the returned func with the named error result
func track(operation string) func(*error) {
	start := time.Now()
	return func(err *error) {
		metrics.DatabaseQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		if *err != nil && !errors.Is(*err, domain.ErrNotFound) && !errors.Is(*err, domain.ErrSlugConflict) {
			metrics.DatabaseErrorsTotal.WithLabelValues(operation).Inc()
		}
	}
}

// Create inserts a new redirect; an existing slug yields domain.ErrSlugConflict
func (r *RedirectRepository) Create(ctx context.Context, redirect *domain.Redirect) (err error) {
	defer track("create")(&err)

	meta := redirect.Meta
	if meta == nil {
		meta = map[string]any{}
	}

	query := `
		INSERT INTO redirects (slug, url, created_at, identifier, resource_name, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (slug) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query,
		redirect.Slug,
		redirect.URL,
		redirect.CreatedAt,
		redirect.Identifier,
		redirect.ResourceName,
		meta,
	)
	if err != nil {
		return fmt.Errorf("failed to create redirect: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSlugConflict
	}
	return nil
}

// GetBySlug loads the redirect and its hits in insertion order
func (r *RedirectRepository) GetBySlug(ctx context.Context, slug string) (_ *domain.Redirect, err error) {
	defer track("get")(&err)

	redirect := &domain.Redirect{Slug: slug}
	err = r.db.QueryRow(ctx, `
		SELECT url, created_at, identifier, resource_name, meta
		FROM redirects
		WHERE slug = $1
	`, slug).Scan(
		&redirect.URL,
		&redirect.CreatedAt,
		&redirect.Identifier,
		&redirect.ResourceName,
		&redirect.Meta,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get redirect: %w", err)
	}
	if redirect.Meta == nil {
		redirect.Meta = map[string]any{}
	}

	rows, err := r.db.Query(ctx, `
		SELECT ip, ua, referer, at
		FROM redirect_hits
		WHERE slug = $1
		ORDER BY id
	`, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to query hits: %w", err)
	}
	redirect.Hits, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Hit, error) {
		var h domain.Hit
		err := row.Scan(&h.IP, &h.UA, &h.Referer, &h.At)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan hits: %w", err)
	}
	if redirect.Hits == nil {
		redirect.Hits = []domain.Hit{}
	}

	return redirect, nil
}

// ExistsSlug checks if a slug already exists
func (r *RedirectRepository) ExistsSlug(ctx context.Context, slug string) (_ bool, err error) {
	defer track("exists")(&err)

	var exists bool
	err = r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM redirects WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug existence: %w", err)
	}
	return exists, nil
}

// AppendHit inserts the hit and, when a cap is configured, trims the oldest
// hits in the same transaction.
func (r *RedirectRepository) AppendHit(ctx context.Context, slug string, hit domain.Hit) (err error) {
	defer track("append_hit")(&err)

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO redirect_hits (slug, ip, ua, referer, at)
			VALUES ($1, $2, $3, $4, $5)
		`, slug, hit.IP, hit.UA, hit.Referer, hit.At)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
				return domain.ErrNotFound
			}
			return fmt.Errorf("failed to append hit: %w", err)
		}

		if r.maxHits <= 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `
			DELETE FROM redirect_hits
			WHERE slug = $1 AND id NOT IN (
				SELECT id FROM redirect_hits WHERE slug = $1 ORDER BY id DESC LIMIT $2
			)
		`, slug, r.maxHits)
		if err != nil {
			return fmt.Errorf("failed to trim hits: %w", err)
		}
		return nil
	})
}
