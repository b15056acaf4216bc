package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"link-tracker/internal/domain"
	"link-tracker/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	jobs []domain.EnrichmentJob
	seen chan struct{}
}

func newRecorder() *recorder {
	return &recorder{seen: make(chan struct{}, 16)}
}

func (r *recorder) handle(err error) Handler {
	return func(_ context.Context, job domain.EnrichmentJob) error {
		r.mu.Lock()
		r.jobs = append(r.jobs, job)
		r.mu.Unlock()
		r.seen <- struct{}{}
		return err
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for handler")
	}
}

// ==================== ENQUEUE ====================

func TestEnqueue_RequiresIdentifier(t *testing.T) {
	q := NewGoChannel(logger.Discard())
	defer q.Close()

	err := q.Enqueue(context.Background(), "", domain.JobContext{})

	assert.ErrorIs(t, err, ErrEmptyIdentifier)
}

func TestEnqueueConsume_RoundTrip(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewGoChannel(logger.Discard())
	defer q.Close()
	rec := newRecorder()

	_, err := q.Consume(ctx, rec.handle(nil))
	require.NoError(t, err)

	// Act
	jc := domain.JobContext{IP: "203.0.113.7", UA: "curl/8", Referer: "https://ref.example", Slug: "0123456789"}
	require.NoError(t, q.Enqueue(ctx, "alice", jc))
	waitFor(t, rec.seen)

	// Assert
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.jobs, 1)
	assert.Equal(t, "alice", rec.jobs[0].Identifier)
	assert.Equal(t, jc, rec.jobs[0].Context)
}

func TestConsume_FailedJobIsDeadLettered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewGoChannel(logger.Discard())
	defer q.Close()

	deadLetters, err := q.subscriber.Subscribe(ctx, TopicDeadLetter)
	require.NoError(t, err)
	rec := newRecorder()
	_, err = q.Consume(ctx, rec.handle(errors.New("tool exploded")))
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(ctx, "bob", domain.JobContext{Slug: "abcdefabcd"}))

	select {
	case msg := <-deadLetters:
		msg.Ack()
		assert.Equal(t, "tool exploded", msg.Metadata.Get(metadataError))
		assert.Contains(t, string(msg.Payload), `"identifier":"bob"`)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not dead-lettered")
	}
}

func TestConsume_InterruptedJobIsRedelivered(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewGoChannel(logger.Discard())
	defer q.Close()

	deadLetters, err := q.subscriber.Subscribe(ctx, TopicDeadLetter)
	require.NoError(t, err)
	rec := newRecorder()
	var calls int
	handler := func(ctx context.Context, job domain.EnrichmentJob) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("%w: %w", domain.ErrJobInterrupted, context.Canceled)
		}
		return rec.handle(nil)(ctx, job)
	}
	_, err = q.Consume(ctx, handler)
	require.NoError(t, err)

	// Act
	require.NoError(t, q.Enqueue(ctx, "gina", domain.JobContext{Slug: "abcdefabcd"}))
	waitFor(t, rec.seen)

	// Assert
	rec.mu.Lock()
	assert.Equal(t, "gina", rec.jobs[0].Identifier)
	rec.mu.Unlock()
	select {
	case msg := <-deadLetters:
		t.Fatalf("interrupted job was dead-lettered: %s", msg.Payload)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestConsume_MalformedPayloadIsSkipped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewGoChannel(logger.Discard())
	defer q.Close()
	rec := newRecorder()
	_, err := q.Consume(ctx, rec.handle(nil))
	require.NoError(t, err)

	require.NoError(t, q.publisher.Publish(TopicJobs, message.NewMessage(watermill.NewUUID(), []byte("not json"))))
	require.NoError(t, q.Enqueue(ctx, "carol", domain.JobContext{}))
	waitFor(t, rec.seen)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.jobs, 1)
	assert.Equal(t, "carol", rec.jobs[0].Identifier)
}

func TestClaimAfterFor_OutlastsWorstCaseJob(t *testing.T) {
	tests := []struct {
		timeout    time.Duration
		retryDelay time.Duration
	}{
		{600 * time.Second, 30 * time.Second},
		{time.Second, 0},
		{0, 0},
	}

	for _, tt := range tests {
		got := ClaimAfterFor(tt.timeout, tt.retryDelay)

		assert.Greater(t, got, 2*tt.timeout+tt.retryDelay)
	}
}

func TestConsume_DoneClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewGoChannel(logger.Discard())
	defer q.Close()

	done, err := q.Consume(ctx, newRecorder().handle(nil))
	require.NoError(t, err)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
