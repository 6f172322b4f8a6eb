package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"algoverse/internal/domain/model"
)

// RetryQueue holds persistence steps that failed inline, as JSON on a Redis
// list. Producers LPUSH, the worker BRPOPs.
type RetryQueue struct {
	rdb  *redis.Client
	name string
}

func NewRetryQueue(rdb *redis.Client, name string) *RetryQueue {
	return &RetryQueue{rdb: rdb, name: name}
}

func (q *RetryQueue) Enqueue(ctx context.Context, job model.DeferredWrite) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode deferred write: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("enqueue deferred write on %s: %w", q.name, err)
	}
	return nil
}

// Pop blocks up to timeout for the next job. It returns nil, nil when the
// queue stayed empty.
func (q *RetryQueue) Pop(ctx context.Context, timeout time.Duration) (*model.DeferredWrite, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	// res is [queueName, value]
	if len(res) < 2 || res[1] == "" {
		return nil, nil
	}
	var job model.DeferredWrite
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decode deferred write: %w", err)
	}
	return &job, nil
}

func (q *RetryQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.name).Result()
}

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end`

// Locker hands out short-lived exclusive locks (SET NX PX) released with a
// compare-and-delete so a holder never frees someone else's lock.
type Locker struct {
	rdb     *redis.Client
	release *redis.Script
}

func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb, release: redis.NewScript(releaseScript)}
}

// Acquire returns the lock token and true when key was free.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return token, ok, nil
}

// Release reports whether the lock was still held by token.
func (l *Locker) Release(ctx context.Context, key, token string) (bool, error) {
	deleted, err := l.release.Run(ctx, l.rdb, []string{key}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", key, err)
	}
	return deleted == 1, nil
}
