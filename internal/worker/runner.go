// Package worker consumes queued batches and hands them to the processor.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"fit-report/internal/usecase"
)

// Source yields batches. Dequeue blocks until one is available or ctx is
// done.
type Source interface {
	Dequeue(ctx context.Context) (*usecase.Batch, error)
}

// BatchRunner processes one batch to completion.
type BatchRunner interface {
	Run(ctx context.Context, b *usecase.Batch) error
}

const (
	minRetryDelay = 100 * time.Millisecond
	maxRetryDelay = 5 * time.Second
)

// Runner starts a fixed number of consumers. Each consumer runs one batch at
// a time, so a job never has more than one writer.
type Runner struct {
	source      Source
	processor   BatchRunner
	concurrency int
	logger      *slog.Logger
	// retryDelay is the first wait after a failed Dequeue; it doubles up to
	// maxDelay while failures continue.
	retryDelay time.Duration
	maxDelay   time.Duration
}

func NewRunner(source Source, processor BatchRunner, concurrency int, logger *slog.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		source:      source,
		processor:   processor,
		concurrency: concurrency,
		logger:      logger,
		retryDelay:  minRetryDelay,
		maxDelay:    maxRetryDelay,
	}
}

// Run blocks until ctx is canceled. A batch in progress at cancellation sees
// the canceled context and is marked failed by the processor.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "workers started", "concurrency", r.concurrency)
	g, gctx := errgroup.WithContext(ctx)
	for i := range r.concurrency {
		g.Go(func() error {
			r.consume(gctx, i)
			return nil
		})
	}
	err := g.Wait()
	r.logger.InfoContext(ctx, "workers stopped")
	return err
}

func (r *Runner) consume(ctx context.Context, id int) {
	log := r.logger.With("worker", id)
	delay := r.retryDelay
	for {
		b, err := r.source.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.ErrorContext(ctx, "dequeue batch", "error", err, "retry_in", delay)
			if !sleep(ctx, delay) {
				return
			}
			delay = min(delay*2, r.maxDelay)
			continue
		}
		delay = r.retryDelay
		if err := r.processor.Run(ctx, b); err != nil && !errors.Is(err, context.Canceled) {
			log.ErrorContext(ctx, "batch failed", "job_id", b.JobID, "error", err)
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
