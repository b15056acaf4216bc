package domain

import (
	"errors"
	"time"
)

// Redirect represents one minted tracking slug and everything recorded against it.
// Everything except Hits is set once at creation and never changes afterwards.
type Redirect struct {
	Slug         string         `json:"-"`
	URL          string         `json:"url"`
	CreatedAt    time.Time      `json:"created_at"`
	Identifier   string         `json:"identifier,omitempty"`
	ResourceName string         `json:"resource_name"`
	Meta         map[string]any `json:"meta"`
	Hits         []Hit          `json:"hits"`
}

// Domain errors - callers match them with errors.Is
var (
	ErrMissingURL     = errors.New("missing url")
	ErrNotFound       = errors.New("redirect not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrSlugConflict   = errors.New("slug already exists")
	ErrSlugExhausted  = errors.New("failed to generate a unique slug")
	ErrToolMissing    = errors.New("enrichment tool not found")
	ErrJobInterrupted = errors.New("enrichment job interrupted")
)

// NewRedirect creates a redirect with an empty hit history
func NewRedirect(slug, url, identifier, resourceName string, meta map[string]any) *Redirect {
	if meta == nil {
		meta = map[string]any{}
	}
	return &Redirect{
		Slug:         slug,
		URL:          url,
		CreatedAt:    time.Now().UTC(),
		Identifier:   identifier,
		ResourceName: resourceName,
		Meta:         meta,
		Hits:         []Hit{},
	}
}

// HasIdentifier reports whether visits should trigger an enrichment job
func (r *Redirect) HasIdentifier() bool {
	return r.Identifier != ""
}

// AppendHit adds a hit to the end of the history.
// When maxHits is positive the oldest hits are evicted to keep at most maxHits entries.
func (r *Redirect) AppendHit(h Hit, maxHits int) {
	r.Hits = append(r.Hits, h)
	if maxHits > 0 && len(r.Hits) > maxHits {
		r.Hits = append([]Hit(nil), r.Hits[len(r.Hits)-maxHits:]...)
	}
}

// WithoutHits returns a shallow copy carrying only the immutable fields.
// Used wherever the record is cached, since hits are the only field that changes.
func (r *Redirect) WithoutHits() *Redirect {
	c := *r
	c.Hits = nil
	return &c
}

// Store is the whole persisted document: slug -> redirect
type Store struct {
	Redirects map[string]*Redirect `json:"redirects"`
}

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{Redirects: map[string]*Redirect{}}
}

// Get looks up a redirect by slug
func (s *Store) Get(slug string) (*Redirect, bool) {
	r, ok := s.Redirects[slug]
	return r, ok
}

// Put inserts or replaces the redirect under its slug
func (s *Store) Put(r *Redirect) {
	if s.Redirects == nil {
		s.Redirects = map[string]*Redirect{}
	}
	s.Redirects[r.Slug] = r
}

// Normalize restores the invariants JSON decoding cannot express:
// slugs live in the map keys, and nil collections become empty ones.
func (s *Store) Normalize() {
	if s.Redirects == nil {
		s.Redirects = map[string]*Redirect{}
	}
	for slug, r := range s.Redirects {
		if r == nil {
			delete(s.Redirects, slug)
			continue
		}
		r.Slug = slug
		if r.Hits == nil {
			r.Hits = []Hit{}
		}
		if r.Meta == nil {
			r.Meta = map[string]any{}
		}
	}
}
