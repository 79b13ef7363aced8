package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua script for atomic check-and-increment of a window counter.
// The first increment sets the expiry so old windows clean themselves up.
const reserveLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current >= limit then
    return {0, current}  -- denied
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("PEXPIRE", key, ttl)
end

return {1, newVal}  -- reserved
`

// Lua script for a floor-at-zero decrement.
const refundLuaScript = `
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current > 0 then
    return redis.call("DECR", KEYS[1])
end
return 0
`

// RedisCounterStore keeps usage counters in Redis so every worker host
// shares one view of capacity.
type RedisCounterStore struct {
	redis         *redis.Client
	reserveScript *redis.Script
	refundScript  *redis.Script
}

// NewRedisCounterStore creates a counter store with pre-compiled Lua scripts.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{
		redis:         client,
		reserveScript: redis.NewScript(reserveLuaScript),
		refundScript:  redis.NewScript(refundLuaScript),
	}
}

func (s *RedisCounterStore) Reserve(ctx context.Context, resourceID string, window time.Time, limit int, ttl time.Duration) (int, bool, error) {
	res, err := s.reserveScript.Run(ctx, s.redis, []string{usageKey(resourceID, window)}, limit, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("reserve %s: %w", resourceID, err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("reserve %s: unexpected script result %v", resourceID, res)
	}
	return int(res[1]), res[0] == 1, nil
}

func (s *RedisCounterStore) Refund(ctx context.Context, resourceID string, window time.Time) error {
	if err := s.refundScript.Run(ctx, s.redis, []string{usageKey(resourceID, window)}).Err(); err != nil {
		return fmt.Errorf("refund %s: %w", resourceID, err)
	}
	return nil
}

func (s *RedisCounterStore) Usage(ctx context.Context, resourceID string, window time.Time) (int, error) {
	n, err := s.redis.Get(ctx, usageKey(resourceID, window)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("usage %s: %w", resourceID, err)
	}
	return n, nil
}

func (s *RedisCounterStore) RecordFailure(ctx context.Context, resourceID string) (int, error) {
	n, err := s.redis.Incr(ctx, failureKey(resourceID)).Result()
	if err != nil {
		return 0, fmt.Errorf("record failure %s: %w", resourceID, err)
	}
	return int(n), nil
}

func (s *RedisCounterStore) ResetFailures(ctx context.Context, resourceID string) error {
	if err := s.redis.Del(ctx, failureKey(resourceID)).Err(); err != nil {
		return fmt.Errorf("reset failures %s: %w", resourceID, err)
	}
	return nil
}
