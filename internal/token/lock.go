package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes refreshes of one tenant's credential across processes.
type Locker interface {
	Lock(ctx context.Context, tenantID uuid.UUID) (unlock func(), err error)
}

// NoopLocker relies on in-process coalescing only.
type NoopLocker struct{}

func (NoopLocker) Lock(context.Context, uuid.UUID) (func(), error) {
	return func() {}, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker holds a SET NX PX lease per tenant. The lease expires after
// ttl so a crashed holder cannot wedge refreshes.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	poll   time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, poll: 50 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, tenantID uuid.UUID) (func(), error) {
	key := "lock:credential-refresh:" + tenantID.String()
	value := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	for {
		ok, err := l.client.SetNX(ctx, key, value, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire refresh lock: %w", err)
		}
		if ok {
			return func() {
				rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer rcancel()
				_ = releaseScript.Run(rctx, l.client, []string{key}, value).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("acquire refresh lock: timed out after %s", l.ttl)
			}
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}
