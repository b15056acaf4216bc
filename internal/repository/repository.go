package repository

import (
	"context"

	"link-tracker/internal/domain"
)

// RedirectRepository is the persistent redirect store.
//
// Implementations must make AppendHit safe under concurrent visits: two hits
// appended at the same time both end up in the record.
type RedirectRepository interface {
	// Create persists a new redirect. A slug that already exists yields
	// domain.ErrSlugConflict; slugs are never reused or overwritten.
	Create(ctx context.Context, r *domain.Redirect) error

	// GetBySlug returns the redirect with its hit history, or domain.ErrNotFound.
	GetBySlug(ctx context.Context, slug string) (*domain.Redirect, error)

	// ExistsSlug reports whether a slug is taken. Used by the slug minter.
	ExistsSlug(ctx context.Context, slug string) (bool, error)

	// AppendHit adds a hit to the end of the slug's history.
	// Unknown slugs yield domain.ErrNotFound.
	AppendHit(ctx context.Context, slug string, hit domain.Hit) error
}

// RedirectCache caches redirect metadata (never hits) on the visit path.
// Get returns (nil, nil) on a miss.
type RedirectCache interface {
	Get(ctx context.Context, slug string) (*domain.Redirect, error)
	Set(ctx context.Context, r *domain.Redirect) error
}

// NoopCache is used when no Redis is configured.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*domain.Redirect, error) { return nil, nil }

func (NoopCache) Set(context.Context, *domain.Redirect) error { return nil }
