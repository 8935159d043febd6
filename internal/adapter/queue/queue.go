// Package queue carries submitted batches from the HTTP handlers to the
// worker pool.
package queue

import (
	"context"
	"errors"

	"fit-report/internal/usecase"
)

// ErrFull is returned by Enqueue when the queue is at capacity.
var ErrFull = errors.New("queue is full")

// Queue is a bounded FIFO of batches.
type Queue interface {
	Enqueue(ctx context.Context, b *usecase.Batch) error
	// Dequeue blocks until a batch is available or ctx is done.
	Dequeue(ctx context.Context) (*usecase.Batch, error)
	Ping(ctx context.Context) error
}
