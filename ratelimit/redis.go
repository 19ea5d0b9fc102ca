package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/store"
)

// The first hit of a window sets its expiry, so the window starts at the
// first counted message and the count restarts after it expires.
var incrWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisStore is a store.CounterStore backed by Redis. Each increment runs
// as one server-side script.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ store.CounterStore = (*RedisStore)(nil)

// NewRedisStore connects to redisURL (redis://...) and verifies the
// connection.
func NewRedisStore(ctx context.Context, redisURL, prefix string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisStoreWithClient(rdb, prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "modguard/ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// IncrementWindow counts one hit and returns the post-increment count.
// now is unused; window timing is owned by the Redis key expiry.
func (s *RedisStore) IncrementWindow(ctx context.Context, identifier, actionType string, window time.Duration, now time.Time) (int, error) {
	key := fmt.Sprintf("%s/%s/%s", s.prefix, actionType, identifier)
	n, err := incrWindowScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, modguard.NewStoreError("increment", "redis", err)
	}
	return int(n), nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
