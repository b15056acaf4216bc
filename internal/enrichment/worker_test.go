package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"link-tracker/internal/domain"
	"link-tracker/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==================== MOCKS ====================

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, identifier string) (string, error) {
	args := m.Called(ctx, identifier)
	return args.String(0), args.Error(1)
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

// ==================== TESTS ====================

func TestWorker_WritesResult(t *testing.T) {
	// Arrange
	runner := new(MockRunner)
	results := NewResultStore(t.TempDir())
	w := NewWorker(runner, results, time.Millisecond, logger.Discard())
	job := domain.EnrichmentJob{
		Identifier: "alice",
		Context:    domain.JobContext{IP: "203.0.113.9", UA: "curl", Slug: "0123456789"},
	}
	runner.On("Run", mock.Anything, "alice").Return("GitHub: https://github.com/alice_dev\n", nil).Once()

	// Act
	err := w.Handle(context.Background(), job)

	// Assert
	require.NoError(t, err)
	var got domain.EnrichmentResult
	readJSON(t, results.ResultPath("alice"), &got)
	assert.Equal(t, "alice", got.Identifier)
	assert.Equal(t, job.Context, got.Metadata)
	assert.Equal(t, []string{"https://github.com/alice_dev"}, got.URLs)
	assert.False(t, got.FetchedAt.IsZero())
	runner.AssertExpectations(t)
}

func TestWorker_RetriesOnceThenSucceeds(t *testing.T) {
	runner := new(MockRunner)
	results := NewResultStore(t.TempDir())
	w := NewWorker(runner, results, time.Millisecond, logger.Discard())
	runner.On("Run", mock.Anything, "bob").Return("", errors.New("flaky")).Once()
	runner.On("Run", mock.Anything, "bob").Return("nothing found", nil).Once()

	err := w.Handle(context.Background(), domain.EnrichmentJob{Identifier: "bob"})

	require.NoError(t, err)
	assert.FileExists(t, results.ResultPath("bob"))
	assert.NoFileExists(t, results.ErrorPath("bob"))
	runner.AssertNumberOfCalls(t, "Run", 2)
}

func TestWorker_WritesErrorAfterSecondFailure(t *testing.T) {
	runner := new(MockRunner)
	results := NewResultStore(t.TempDir())
	w := NewWorker(runner, results, time.Millisecond, logger.Discard())
	runner.On("Run", mock.Anything, "carol").Return("", domain.ErrToolMissing).Twice()

	err := w.Handle(context.Background(), domain.EnrichmentJob{Identifier: "carol"})

	assert.ErrorIs(t, err, domain.ErrToolMissing)
	var record domain.EnrichmentError
	readJSON(t, results.ErrorPath("carol"), &record)
	assert.Equal(t, "carol", record.Identifier)
	assert.Equal(t, domain.ErrToolMissing.Error(), record.Error)
	assert.NoFileExists(t, results.ResultPath("carol"))
	runner.AssertNumberOfCalls(t, "Run", 2)
}

func TestWorker_RerunOverwritesResult(t *testing.T) {
	runner := new(MockRunner)
	results := NewResultStore(t.TempDir())
	w := NewWorker(runner, results, time.Millisecond, logger.Discard())
	runner.On("Run", mock.Anything, "dave").Return("see https://first.example", nil).Once()
	runner.On("Run", mock.Anything, "dave").Return("see https://second.example", nil).Once()

	require.NoError(t, w.Handle(context.Background(), domain.EnrichmentJob{Identifier: "dave"}))
	require.NoError(t, w.Handle(context.Background(), domain.EnrichmentJob{Identifier: "dave"}))

	var got domain.EnrichmentResult
	readJSON(t, results.ResultPath("dave"), &got)
	assert.Equal(t, []string{"https://second.example"}, got.URLs)
}

func TestWorker_CancelledDuringRetryDelay(t *testing.T) {
	runner := new(MockRunner)
	results := NewResultStore(t.TempDir())
	w := NewWorker(runner, results, time.Hour, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	runner.On("Run", mock.Anything, "erin").Run(func(mock.Arguments) { cancel() }).Return("", errors.New("down")).Once()

	err := w.Handle(ctx, domain.EnrichmentJob{Identifier: "erin"})

	assert.ErrorIs(t, err, domain.ErrJobInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, results.ErrorPath("erin"))
	runner.AssertNumberOfCalls(t, "Run", 1)
}

// blockingRunner runs until its context ends, like a tool killed on shutdown
type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestWorker_ShutdownDuringRunLeavesNoErrorRecord(t *testing.T) {
	// Arrange
	results := NewResultStore(t.TempDir())
	w := NewWorker(blockingRunner{}, results, time.Millisecond, logger.Discard())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// Act
	err := w.Handle(ctx, domain.EnrichmentJob{Identifier: "frank"})

	// Assert
	assert.ErrorIs(t, err, domain.ErrJobInterrupted)
	assert.NoFileExists(t, results.ErrorPath("frank"))
	assert.NoFileExists(t, results.ResultPath("frank"))
}

func TestResultStore_SanitisesIdentifier(t *testing.T) {
	results := NewResultStore("/data/results")

	assert.Regexp(t, `^/data/results/_etc_passwd-[0-9a-f]{12}\.json$`, results.ResultPath("../etc/passwd"))
	assert.Equal(t, "/data/results/alice.json", results.ResultPath("alice"))
	assert.Equal(t, "/data/results/alice_error.json", results.ErrorPath("alice"))
}

func TestResultStore_PathsNeverCollide(t *testing.T) {
	results := NewResultStore("/data/results")
	identifiers := []string{"a/b", "a_b", "a b", "x", "x_error", "x_error_error", " x", "x."}

	seen := make(map[string]string)
	for _, id := range identifiers {
		for _, path := range []string{results.ResultPath(id), results.ErrorPath(id)} {
			owner, taken := seen[path]
			assert.False(t, taken, "%q and %q both map to %s", owner, id, path)
			seen[path] = id
		}
	}
}
