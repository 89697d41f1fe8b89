package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript rejects without consuming once the window limit is reached, so
// clients hammering a 429 never push their reset time further out.
var takeScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= limit then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < 0 then
    ttl = window_ms
  end
  return {0, 0, ttl}
end

current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], window_ms)
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = window_ms
end
return {1, limit - current, ttl}
`)

// RedisStore shares fixed-window counters across instances. Stale keys need
// no janitor: every window key expires with the window itself.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "mockforge:ratelimit:"}
}

func (s *RedisStore) Take(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	res, err := takeScript.Run(ctx, s.client, []string{s.prefix + key}, limit, window.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit take: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit take: unexpected reply of %d values", len(res))
	}

	allowed, _ := res[0].(int64)
	remaining, _ := res[1].(int64)
	ttlMs, _ := res[2].(int64)

	ttl := time.Duration(ttlMs) * time.Millisecond
	d := Decision{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetAt:   time.Now().Add(ttl),
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d, nil
}
