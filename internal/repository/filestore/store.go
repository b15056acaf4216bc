// Package filestore keeps every redirect in a single JSON document on local disk.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"link-tracker/internal/domain"
	"link-tracker/pkg/fsutil"
)

// Store is the JSON file backed redirect repository.
//
// Reads load the file without locking; the atomic rename in Save guarantees
// they see a complete document. Every mutation goes through Update, which
// holds mu across load, mutate and save so concurrent hits are never lost.
type Store struct {
	path    string
	maxHits int
	logger  *slog.Logger
	mu      sync.Mutex
}

// New creates a file store at path. maxHits <= 0 keeps the full hit history.
func New(path string, maxHits int, logger *slog.Logger) *Store {
	return &Store{
		path:    path,
		maxHits: maxHits,
		logger:  logger,
	}
}

// Path returns the backing file location
func (s *Store) Path() string {
	return s.path
}

// Load reads the whole store. A missing or unreadable file yields an empty store.
func (s *Store) Load() *domain.Store {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to read store file, starting empty", "path", s.path, "error", err)
		}
		return domain.NewStore()
	}

	store := domain.NewStore()
	if err := json.Unmarshal(data, store); err != nil {
		s.logger.Warn("Store file is corrupt, starting empty", "path", s.path, "error", err)
		return domain.NewStore()
	}
	store.Normalize()
	return store
}

// Save replaces the store file atomically
func (s *Store) Save(store *domain.Store) error {
	if err := fsutil.WriteJSONAtomic(s.path, store); err != nil {
		return fmt.Errorf("failed to save store: %w", err)
	}
	return nil
}

// Update runs fn against a freshly loaded store and saves the result.
// When fn returns an error nothing is written.
func (s *Store) Update(ctx context.Context, fn func(*domain.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	store := s.Load()
	if err := fn(store); err != nil {
		return err
	}
	return s.Save(store)
}

// Create persists a new redirect, refusing to overwrite an existing slug
func (s *Store) Create(ctx context.Context, r *domain.Redirect) error {
	return s.Update(ctx, func(store *domain.Store) error {
		if _, exists := store.Get(r.Slug); exists {
			return domain.ErrSlugConflict
		}
		store.Put(r)
		return nil
	})
}

// GetBySlug returns the redirect stored under slug
func (s *Store) GetBySlug(ctx context.Context, slug string) (*domain.Redirect, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, ok := s.Load().Get(slug)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

// ExistsSlug reports whether slug is already taken
func (s *Store) ExistsSlug(ctx context.Context, slug string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := s.Load().Get(slug)
	return ok, nil
}

// AppendHit records a visit against slug
func (s *Store) AppendHit(ctx context.Context, slug string, hit domain.Hit) error {
	return s.Update(ctx, func(store *domain.Store) error {
		r, ok := store.Get(slug)
		if !ok {
			return domain.ErrNotFound
		}
		r.AppendHit(hit, s.maxHits)
		return nil
	})
}
