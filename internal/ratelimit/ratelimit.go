// Package ratelimit provides an atomic fixed-window rate limiter on Redis.
// A Lua script checks and increments in one round trip, so concurrent
// requests cannot slip past the limit between a GET and an INCR.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkScript atomically rejects once the window counter reaches the
// limit, otherwise increments and sets the TTL on first use.
const checkScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current >= limit then
    return {0, current}
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, ttl)
end
return {1, newVal}
`

// Limiter is a fixed-window rate limiter keyed by caller identity.
type Limiter struct {
	redis  *redis.Client
	script *redis.Script
	limit  int
	window time.Duration
	now    func() time.Time
}

// New creates a limiter allowing limit calls per identity per window.
func New(client *redis.Client, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Limiter{
		redis:  client,
		script: redis.NewScript(checkScript),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow checks and consumes one slot for the identity. When denied it
// returns how long the caller should wait before the window resets.
func (l *Limiter) Allow(ctx context.Context, identity string) (allowed bool, retryAfter time.Duration, err error) {
	now := l.now()
	windowStart := now.Truncate(l.window)
	key := fmt.Sprintf("ratelimit:build:%s:%d", identity, windowStart.Unix())

	ttl := int(l.window.Seconds()) + 1
	result, err := l.script.Run(ctx, l.redis, []string{key}, l.limit, ttl).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check: %w", err)
	}

	if result[0].(int64) == 1 {
		return true, 0, nil
	}
	return false, windowStart.Add(l.window).Sub(now), nil
}
