package service

import (
	"context"
	"sync"

	"link-tracker/internal/domain"

	"github.com/stretchr/testify/mock"
)

// ==================== MOCKS ====================

// MockRedirectRepository is a mock implementation of RedirectRepository
type MockRedirectRepository struct {
	mock.Mock
}

func (m *MockRedirectRepository) Create(ctx context.Context, r *domain.Redirect) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockRedirectRepository) GetBySlug(ctx context.Context, slug string) (*domain.Redirect, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Redirect), args.Error(1)
}

func (m *MockRedirectRepository) ExistsSlug(ctx context.Context, slug string) (bool, error) {
	args := m.Called(ctx, slug)
	return args.Bool(0), args.Error(1)
}

func (m *MockRedirectRepository) AppendHit(ctx context.Context, slug string, hit domain.Hit) error {
	args := m.Called(ctx, slug, hit)
	return args.Error(0)
}

// MockCache is a mock implementation of RedirectCache
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, slug string) (*domain.Redirect, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Redirect), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, r *domain.Redirect) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Submit(c domain.Capture) bool {
	args := m.Called(c)
	return args.Bool(0)
}

// MockEnqueuer is a mock implementation of Enqueuer
type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, identifier string, jobCtx domain.JobContext) error {
	args := m.Called(ctx, identifier, jobCtx)
	return args.Error(0)
}

// memoryRepository is an in-memory RedirectRepository for tests that mint many slugs
type memoryRepository struct {
	mu        sync.Mutex
	redirects map[string]*domain.Redirect
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{redirects: map[string]*domain.Redirect{}}
}

func (r *memoryRepository) Create(_ context.Context, redirect *domain.Redirect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.redirects[redirect.Slug]; ok {
		return domain.ErrSlugConflict
	}
	r.redirects[redirect.Slug] = redirect
	return nil
}

func (r *memoryRepository) GetBySlug(_ context.Context, slug string) (*domain.Redirect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	redirect, ok := r.redirects[slug]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return redirect, nil
}

func (r *memoryRepository) ExistsSlug(_ context.Context, slug string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.redirects[slug]
	return ok, nil
}

func (r *memoryRepository) AppendHit(_ context.Context, slug string, hit domain.Hit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	redirect, ok := r.redirects[slug]
	if !ok {
		return domain.ErrNotFound
	}
	redirect.AppendHit(hit, 0)
	return nil
}
