package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"link-tracker/internal/domain"
	"link-tracker/internal/metrics"
	"link-tracker/internal/repository"
)

const (
	// enqueueTimeout bounds the job publish on the visit path
	enqueueTimeout = 5 * time.Second
	// persistTimeout bounds the hit write once the request is gone
	persistTimeout = 5 * time.Second
)

// Notifier accepts captures for asynchronous notification
type Notifier interface {
	Submit(c domain.Capture) bool
}

// Enqueuer publishes enrichment jobs
type Enqueuer interface {
	Enqueue(ctx context.Context, identifier string, jobCtx domain.JobContext) error
}

// HoldingPage is what the visitor sees before moving on to the destination
type HoldingPage struct {
	DestinationURL string
	DelaySeconds   int
	Endpoint       string
	ReceivedAt     time.Time
	ResourceName   string
}

// CaptureService runs the visit pipeline: resolve the slug, hand the visit to
// the notifier, schedule enrichment and persist the hit.
//
// Only resolution can fail the visit. Every later step logs and carries on.
type CaptureService struct {
	repo     repository.RedirectRepository
	cache    repository.RedirectCache
	notifier Notifier
	enqueuer Enqueuer
	delay    int
	logger   *slog.Logger
}

func NewCaptureService(repo repository.RedirectRepository, cache repository.RedirectCache, notifier Notifier, enqueuer Enqueuer, delaySeconds int, logger *slog.Logger) *CaptureService {
	if cache == nil {
		cache = repository.NoopCache{}
	}
	return &CaptureService{
		repo:     repo,
		cache:    cache,
		notifier: notifier,
		enqueuer: enqueuer,
		delay:    delaySeconds,
		logger:   logger,
	}
}

// Visit records a visit to slug. Unknown slugs return domain.ErrNotFound and
// leave no trace anywhere.
func (s *CaptureService) Visit(ctx context.Context, slug, ip, userAgent, referer string) (*HoldingPage, error) {
	redirect, err := s.resolve(ctx, slug)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.RecordVisit("not_found")
		}
		return nil, err
	}

	hit := domain.NewHit(ip, userAgent, referer)
	endpoint := "/r/" + slug

	s.notifier.Submit(domain.Capture{
		Slug:         slug,
		Endpoint:     endpoint,
		ResourceName: redirect.ResourceName,
		OriginalURL:  redirect.URL,
		Hit:          hit,
	})

	if redirect.HasIdentifier() {
		s.enqueue(ctx, redirect, hit, slug)
	}

	s.persist(ctx, slug, hit)

	metrics.RecordVisit("captured")
	return &HoldingPage{
		DestinationURL: redirect.URL,
		DelaySeconds:   s.delay,
		Endpoint:       endpoint,
		ReceivedAt:     hit.At,
		ResourceName:   redirect.ResourceName,
	}, nil
}

// resolve implements cache-aside over the repository. Hit and miss counts
// belong to the cache implementation.
func (s *CaptureService) resolve(ctx context.Context, slug string) (*domain.Redirect, error) {
	cached, err := s.cache.Get(ctx, slug)
	if err != nil {
		s.logger.Warn("Redirect cache read failed", "slug", slug, "error", err)
	}
	if err == nil && cached != nil {
		return cached, nil
	}

	redirect, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to resolve slug: %w", err)
	}

	if err := s.cache.Set(ctx, redirect); err != nil {
		s.logger.Warn("Failed to cache redirect", "slug", slug, "error", err)
	}
	return redirect, nil
}

// persist appends the hit even if the visitor has already disconnected: the
// notification and the job for this visit are out by now. Failures are logged
// and the visitor still reaches the destination.
func (s *CaptureService) persist(ctx context.Context, slug string, hit domain.Hit) {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.repo.AppendHit(persistCtx, slug, hit); err != nil {
		metrics.RecordHitPersistError()
		s.logger.Error("Failed to persist hit", "slug", slug, "error", err)
	}
}

// enqueue publishes on a context detached from the request so a visitor
// closing the connection does not abort the job
func (s *CaptureService) enqueue(ctx context.Context, redirect *domain.Redirect, hit domain.Hit, slug string) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	err := s.enqueuer.Enqueue(jobCtx, redirect.Identifier, domain.JobContext{
		IP:      hit.IP,
		UA:      hit.UA,
		Referer: hit.Referer,
		Slug:    slug,
	})
	if err != nil {
		s.logger.Error("Failed to enqueue enrichment job", "slug", slug, "error", err)
	}
}
