// Package queue carries enrichment jobs from the visit path to the worker.
//
// Jobs travel as JSON over Watermill. Redis Streams is used when a Redis
// client is available; otherwise an in-process GoChannel keeps the same API
// for single-node deployments and tests.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"link-tracker/internal/domain"
	"link-tracker/internal/metrics"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

const (
	// TopicJobs carries pending enrichment jobs
	TopicJobs = "enrichment.jobs"
	// TopicDeadLetter receives jobs whose handler failed after its own retry
	TopicDeadLetter = "enrichment.jobs.failed"

	metadataError = "error"
)

// ErrEmptyIdentifier is returned by Enqueue for jobs without an identifier
var ErrEmptyIdentifier = errors.New("enrichment job requires an identifier")

// Handler processes one job. A returned error dead-letters the job, except
// domain.ErrJobInterrupted, which nacks it for redelivery.
type Handler func(ctx context.Context, job domain.EnrichmentJob) error

// Queue publishes and consumes enrichment jobs
type Queue struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

// New wraps any Watermill publisher/subscriber pair
func New(publisher message.Publisher, subscriber message.Subscriber, logger *slog.Logger) *Queue {
	return &Queue{
		publisher:  publisher,
		subscriber: subscriber,
		logger:     logger,
	}
}

// NewGoChannel creates an in-process queue. Messages published before
// Consume subscribes are dropped.
func NewGoChannel(logger *slog.Logger) *Queue {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            100,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		watermill.NewSlogLogger(logger),
	)
	return New(pubSub, pubSub, logger)
}

// RedisStreamConfig configures the Redis Streams backend
type RedisStreamConfig struct {
	// Every worker process sharing ConsumerGroup receives each job once
	ConsumerGroup string
	// ClaimAfter is how long a delivered job may stay unacknowledged before
	// another consumer takes it over. It must exceed the longest Handle run,
	// see ClaimAfterFor.
	ClaimAfter time.Duration
	// ClaimInterval is how often pending jobs are checked; zero keeps the
	// library default
	ClaimInterval time.Duration
}

// claimMargin is added on top of the worst-case handler run
const claimMargin = time.Minute

// ClaimAfterFor returns the idle time after which a pending job is taken over,
// given the tool timeout and the retry delay: one job runs the tool at most
// twice with the delay in between.
func ClaimAfterFor(toolTimeout, retryDelay time.Duration) time.Duration {
	return 2*toolTimeout + retryDelay + claimMargin
}

// NewRedisStream creates a queue backed by Redis Streams
func NewRedisStream(client redis.UniversalClient, cfg RedisStreamConfig, logger *slog.Logger) (*Queue, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	subscriber, err := redisstream.NewSubscriber(
		redisstream.SubscriberConfig{
			Client:        client,
			ConsumerGroup: cfg.ConsumerGroup,
			MaxIdleTime:   cfg.ClaimAfter,
			ClaimInterval: cfg.ClaimInterval,
		},
		wmLogger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis subscriber: %w", err)
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		wmLogger,
	)
	if err != nil {
		_ = subscriber.Close()
		return nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}

	return New(publisher, subscriber, logger), nil
}

// Enqueue publishes a job. It returns an error only when the backend rejects it.
func (q *Queue) Enqueue(ctx context.Context, identifier string, jc domain.JobContext) error {
	if identifier == "" {
		return ErrEmptyIdentifier
	}

	payload, err := json.Marshal(domain.EnrichmentJob{Identifier: identifier, Context: jc})
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := q.publisher.Publish(TopicJobs, msg); err != nil {
		metrics.RecordEnrichment("enqueue_failed")
		return fmt.Errorf("failed to publish job: %w", err)
	}

	metrics.RecordEnrichment("enqueued")
	return nil
}

// Consume subscribes to the job topic and hands every job to handler, one at
// a time. The subscription is established before Consume returns; the
// returned channel is closed once the subscription ends (ctx cancelled or
// queue closed).
func (q *Queue) Consume(ctx context.Context, handler Handler) (<-chan struct{}, error) {
	messages, err := q.subscriber.Subscribe(ctx, TopicJobs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", TopicJobs, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range messages {
			q.process(ctx, msg, handler)
		}
	}()
	return done, nil
}

func (q *Queue) process(ctx context.Context, msg *message.Message, handler Handler) {
	var job domain.EnrichmentJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil || job.Identifier == "" {
		q.logger.Warn("Dropping malformed enrichment job", "message_id", msg.UUID, "error", err)
		msg.Ack()
		return
	}

	err := handler(ctx, job)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrJobInterrupted):
		// Left pending for redelivery
		q.logger.Info("Enrichment job interrupted, returning it to the queue", "identifier", job.Identifier, "message_id", msg.UUID)
		msg.Nack()
		return
	default:
		q.logger.Error("Enrichment job failed", "identifier", job.Identifier, "message_id", msg.UUID, "error", err)
		q.deadLetter(msg, err)
	}
	msg.Ack()
}

func (q *Queue) deadLetter(original *message.Message, cause error) {
	msg := message.NewMessage(watermill.NewUUID(), original.Payload)
	msg.Metadata.Set(metadataError, cause.Error())
	msg.Metadata.Set("original_id", original.UUID)
	if err := q.publisher.Publish(TopicDeadLetter, msg); err != nil {
		q.logger.Error("Failed to dead-letter enrichment job", "message_id", original.UUID, "error", err)
	}
}

// Close closes both the publisher and the subscriber
func (q *Queue) Close() error {
	pubErr := q.publisher.Close()
	if any(q.subscriber) == any(q.publisher) {
		return pubErr
	}
	return errors.Join(pubErr, q.subscriber.Close())
}
