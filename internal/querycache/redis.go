package querycache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if it still holds our token, so an
// expired holder never releases a lock that has since passed to someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var errLockLost = errors.New("redis lock expired before release")

// RedisBackend keeps the document in a single Redis string and guards it
// with a SET NX lock key, so any number of hosts can share one cache.
type RedisBackend struct {
	client     *redis.Client
	key        string
	lockKey    string
	lockTTL    time.Duration
	retryDelay time.Duration
}

// NewRedisBackend returns a backend storing the document under key.
func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	return &RedisBackend{
		client:     client,
		key:        key,
		lockKey:    key + ":lock",
		lockTTL:    30 * time.Second,
		retryDelay: 10 * time.Millisecond,
	}
}

// Lock acquires the lock key, polling until ctx ends. The key expires after
// lockTTL so a crashed holder cannot wedge the cache.
func (b *RedisBackend) Lock(ctx context.Context) (func() error, error) {
	token := uuid.NewString()
	for {
		ok, err := b.client.SetNX(ctx, b.lockKey, token, b.lockTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if ok {
			return func() error { return b.release(token) }, nil
		}

		t := time.NewTimer(b.retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (b *RedisBackend) release(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := releaseScript.Run(ctx, b.client, []string{b.lockKey}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return errLockLost
	}
	return nil
}

// Read returns the document bytes, or nil if the key is unset.
func (b *RedisBackend) Read(ctx context.Context) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

// Write replaces the document.
func (b *RedisBackend) Write(ctx context.Context, data []byte) error {
	return b.client.Set(ctx, b.key, data, 0).Err()
}

// CheckReadiness pings the Redis server holding the shared document.
func (b *RedisBackend) CheckReadiness(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("query cache redis unreachable: %w", err)
	}
	return nil
}
