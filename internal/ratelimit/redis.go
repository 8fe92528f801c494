package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript increments the counter and opens the window on first use.
// It returns the new count and the window's remaining lifetime in ms.
var takeScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// RedisStore keeps counters in Redis so several proxy replicas share quota.
type RedisStore struct {
	client redis.Scripter
	prefix string
	policy Policy
	now    func() time.Time
}

// NewRedisStore creates a RedisStore. Keys are stored as prefix+key.
func NewRedisStore(client redis.Scripter, prefix string, p Policy) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		policy: p,
		now:    time.Now,
	}
}

// Take counts one request for key.
func (s *RedisStore) Take(ctx context.Context, key string) (Result, error) {
	vals, err := takeScript.Run(ctx, s.client, []string{s.prefix + key}, s.policy.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: redis take: %w", err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("ratelimit: redis take: unexpected reply of length %d", len(vals))
	}

	resetAt := s.now().Add(time.Duration(vals[1]) * time.Millisecond)
	return s.policy.result(int(vals[0]), resetAt), nil
}
