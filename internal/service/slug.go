package service

import (
	"context"
	"fmt"
	"strings"

	"link-tracker/internal/domain"
	"link-tracker/internal/repository"

	"github.com/google/uuid"
)

const (
	slugLength      = 10
	maxSlugAttempts = 10
)

// SlugMinter draws random slugs that are not yet taken
type SlugMinter struct {
	repo     repository.RedirectRepository
	generate func() string
}

func NewSlugMinter(repo repository.RedirectRepository) *SlugMinter {
	return &SlugMinter{repo: repo, generate: generateSlug}
}

// Mint returns a slug that did not exist at the time of the check
func (m *SlugMinter) Mint(ctx context.Context) (string, error) {
	for i := 0; i < maxSlugAttempts; i++ {
		slug := m.generate()

		exists, err := m.repo.ExistsSlug(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if !exists {
			return slug, nil
		}
	}
	return "", domain.ErrSlugExhausted
}

// generateSlug takes the first 10 hex characters of a random UUID.
// uuid.New draws from crypto/rand.
func generateSlug() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:slugLength]
}
