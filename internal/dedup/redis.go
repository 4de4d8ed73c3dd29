package dedup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduplicator swaps the last-tap time atomically with SET ... GET.
type RedisDeduplicator struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisDeduplicator builds a deduplicator whose keys live under prefix.
func NewRedisDeduplicator(client redis.Cmdable, prefix string) *RedisDeduplicator {
	if prefix == "" {
		prefix = "access:tap:"
	}
	return &RedisDeduplicator{client: client, prefix: prefix, now: time.Now}
}

func (d *RedisDeduplicator) IsDuplicateAndRecordTap(ctx context.Context, terminalID, cardUID string, cooldown time.Duration) (Result, error) {
	now := d.now()
	prev, err := d.client.SetArgs(ctx, d.prefix+key(terminalID, cardUID), strconv.FormatInt(now.UnixMilli(), 10), redis.SetArgs{
		TTL: cooldown + ExpiryMargin,
		Get: true,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Result{Cooldown: cooldown}, fmt.Errorf("record tap: %w", err)
	}

	var previous *time.Time
	if err == nil && prev != "" {
		ms, parseErr := strconv.ParseInt(prev, 10, 64)
		if parseErr != nil {
			return Result{Cooldown: cooldown}, fmt.Errorf("record tap: corrupt timestamp %q", prev)
		}
		at := time.UnixMilli(ms)
		previous = &at
	}
	return evaluate(previous, now, cooldown), nil
}
