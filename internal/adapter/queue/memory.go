package queue

import (
	"context"
	"time"

	"fit-report/internal/usecase"
)

// Memory is a channel-backed queue. Batches are lost on restart.
type Memory struct {
	ch      chan *usecase.Batch
	timeout time.Duration
}

// NewMemory returns a queue holding up to capacity batches. Enqueue waits up
// to enqueueTimeout for room before returning ErrFull.
func NewMemory(capacity int, enqueueTimeout time.Duration) *Memory {
	if capacity < 1 {
		capacity = 1
	}
	return &Memory{ch: make(chan *usecase.Batch, capacity), timeout: enqueueTimeout}
}

func (m *Memory) Enqueue(ctx context.Context, b *usecase.Batch) error {
	select {
	case m.ch <- b:
		return nil
	default:
	}
	if m.timeout <= 0 {
		return ErrFull
	}
	t := time.NewTimer(m.timeout)
	defer t.Stop()
	select {
	case m.ch <- b:
		return nil
	case <-t.C:
		return ErrFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Dequeue(ctx context.Context) (*usecase.Batch, error) {
	select {
	case b := <-m.ch:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

// Len reports the number of waiting batches.
func (m *Memory) Len() int { return len(m.ch) }
