package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// INCR and PEXPIRE run as one script so the first request of a window always sets the expiry.
var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisFixedWindow shares window counts between instances.
type RedisFixedWindow struct {
	client redis.Scripter
	prefix string
	max    int
	window time.Duration
}

// NewRedisFixedWindow builds a limiter whose keys live under prefix.
func NewRedisFixedWindow(client redis.Scripter, prefix string, max int, windowSize time.Duration) *RedisFixedWindow {
	if prefix == "" {
		prefix = "access:ratelimit:"
	}
	return &RedisFixedWindow{client: client, prefix: prefix, max: max, window: windowSize}
}

func (l *RedisFixedWindow) Consume(ctx context.Context, key string) (Result, error) {
	values, err := fixedWindowScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit consume: %w", err)
	}
	if len(values) != 2 {
		return Result{}, fmt.Errorf("rate limit consume: unexpected script reply %v", values)
	}
	return result(int(values[0]), l.max, time.Duration(values[1])*time.Millisecond), nil
}
