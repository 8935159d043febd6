package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fit-report/internal/adapter/queue"
	"fit-report/internal/usecase"
)

type recordingRunner struct {
	mu   sync.Mutex
	seen []uuid.UUID
	done chan struct{}
	want int
	err  error
}

func (r *recordingRunner) Run(_ context.Context, b *usecase.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, b.JobID)
	if len(r.seen) == r.want {
		close(r.done)
	}
	return r.err
}

func TestRunner_ProcessesEveryBatch(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewMemory(8, 0)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, q.Enqueue(ctx, &usecase.Batch{JobID: id}))
	}

	proc := &recordingRunner{done: make(chan struct{}), want: len(ids), err: errors.New("boom")}
	r := NewRunner(q, proc, 2, nil)

	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	select {
	case <-proc.done:
	case <-time.After(2 * time.Second):
		t.Fatal("batches were not processed")
	}
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.ElementsMatch(t, ids, proc.seen)
}

type flakySource struct {
	calls int
	inner Source
}

func (f *flakySource) Dequeue(ctx context.Context) (*usecase.Batch, error) {
	f.calls++
	if f.calls == 1 {
		return nil, errors.New("connection reset")
	}
	return f.inner.Dequeue(ctx)
}

func TestRunner_SurvivesDequeueError(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewMemory(1, 0)
	id := uuid.New()
	require.NoError(t, q.Enqueue(ctx, &usecase.Batch{JobID: id}))

	proc := &recordingRunner{done: make(chan struct{}), want: 1}
	r := NewRunner(&flakySource{inner: q}, proc, 1, nil)
	r.retryDelay = time.Millisecond
	go func() { _ = r.Run(ctx) }()

	select {
	case <-proc.done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch was not processed after dequeue error")
	}
	assert.Equal(t, []uuid.UUID{id}, proc.seen)
}

type downSource struct{ calls atomic.Int64 }

func (d *downSource) Dequeue(context.Context) (*usecase.Batch, error) {
	d.calls.Add(1)
	return nil, errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
}

func TestRunner_BacksOffWhileSourceIsDown(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	src := &downSource{}
	r := NewRunner(src, &recordingRunner{done: make(chan struct{})}, 1, nil)
	r.retryDelay = 10 * time.Millisecond
	r.maxDelay = 40 * time.Millisecond
	require.NoError(t, r.Run(ctx))

	// 10+20+40+40+40+40 ms fits about six attempts in the window.
	calls := src.calls.Load()
	assert.GreaterOrEqual(t, calls, int64(2))
	assert.LessOrEqual(t, calls, int64(12))
}

func TestRunner_StopsWhileBackingOff(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())

	r := NewRunner(&downSource{}, &recordingRunner{done: make(chan struct{})}, 1, nil)
	r.retryDelay = time.Hour

	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop during backoff")
	}
}
