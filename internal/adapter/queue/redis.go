package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fit-report/internal/usecase"
)

// pushIfRoom pushes ARGV[2] onto KEYS[1] unless the list already holds
// ARGV[1] entries. It returns 1 when pushed.
var pushIfRoom = redis.NewScript(`
if redis.call("LLEN", KEYS[1]) >= tonumber(ARGV[1]) then
	return 0
end
redis.call("LPUSH", KEYS[1], ARGV[2])
return 1
`)

// Redis is a list-backed queue: LPUSH to enqueue, BRPOP to dequeue. Batches
// survive an API restart but a batch popped by a worker that then dies is
// not redelivered.
type Redis struct {
	client   redis.UniversalClient
	key      string
	capacity int
	// poll bounds each BRPOP so Dequeue notices ctx cancellation.
	poll time.Duration
}

func NewRedis(client redis.UniversalClient, key string, capacity int) *Redis {
	if capacity < 1 {
		capacity = 1
	}
	return &Redis{client: client, key: key, capacity: capacity, poll: time.Second}
}

func (q *Redis) Enqueue(ctx context.Context, b *usecase.Batch) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	pushed, err := pushIfRoom.Run(ctx, q.client, []string{q.key}, q.capacity, payload).Int()
	if err != nil {
		return fmt.Errorf("redis enqueue: %w", err)
	}
	if pushed == 0 {
		return ErrFull
	}
	return nil
}

func (q *Redis) Dequeue(ctx context.Context) (*usecase.Batch, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := q.client.BRPop(ctx, q.poll, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("redis dequeue: %w", err)
		}
		// res is [key, value].
		var b usecase.Batch
		if err := json.Unmarshal([]byte(res[1]), &b); err != nil {
			return nil, fmt.Errorf("decode batch: %w", err)
		}
		return &b, nil
	}
}

func (q *Redis) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Len reports the number of waiting batches.
func (q *Redis) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
