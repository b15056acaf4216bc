package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"link-tracker/internal/domain"
	"link-tracker/internal/metrics"
)

// Worker turns an enrichment job into a persisted result.
// It retries once after retryDelay and records the terminal failure on disk.
type Worker struct {
	runner     Runner
	results    *ResultStore
	retryDelay time.Duration
	logger     *slog.Logger
}

func NewWorker(runner Runner, results *ResultStore, retryDelay time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		runner:     runner,
		results:    results,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// Handle processes one job; it matches queue.Handler.
// A job cut short by ctx returns domain.ErrJobInterrupted and leaves no error
// record, so the queue can hand it out again.
func (w *Worker) Handle(ctx context.Context, job domain.EnrichmentJob) error {
	log := w.logger.With("identifier", job.Identifier, "slug", job.Context.Slug)
	log.Info("Starting enrichment")

	err := w.attempt(ctx, job)
	if err == nil {
		metrics.RecordEnrichment("succeeded")
		log.Info("Enrichment finished", "path", w.results.ResultPath(job.Identifier))
		return nil
	}
	if ctx.Err() != nil {
		return w.interrupted(ctx, log)
	}

	log.Warn("Enrichment attempt failed, retrying", "error", err, "delay", w.retryDelay)
	metrics.RecordEnrichment("retried")

	select {
	case <-time.After(w.retryDelay):
		err = w.attempt(ctx, job)
	case <-ctx.Done():
		return w.interrupted(ctx, log)
	}
	if err == nil {
		metrics.RecordEnrichment("succeeded")
		log.Info("Enrichment finished after retry", "path", w.results.ResultPath(job.Identifier))
		return nil
	}
	if ctx.Err() != nil {
		return w.interrupted(ctx, log)
	}

	metrics.RecordEnrichment("failed")
	if saveErr := w.results.SaveError(job.Identifier, err); saveErr != nil {
		log.Error("Failed to record enrichment error", "error", saveErr)
	}
	return err
}

func (w *Worker) interrupted(ctx context.Context, log *slog.Logger) error {
	metrics.RecordEnrichment("interrupted")
	log.Warn("Enrichment interrupted", "error", ctx.Err())
	return fmt.Errorf("%w: %w", domain.ErrJobInterrupted, ctx.Err())
}

func (w *Worker) attempt(ctx context.Context, job domain.EnrichmentJob) error {
	text, err := w.runner.Run(ctx, job.Identifier)
	if err != nil {
		return err
	}

	result := domain.EnrichmentResult{
		Identifier: job.Identifier,
		Metadata:   job.Context,
		FetchedAt:  time.Now().UTC(),
		Artifacts:  Extract(text, job.Identifier),
	}
	if err := w.results.SaveResult(result); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}
