package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultRedisPrefix = "hometracker:ratelimit:"

// RedisWindow shares counters between replicas through Redis.
type RedisWindow struct {
	rdb    redis.UniversalClient
	policy Policy
	prefix string
}

// RedisOption configures a RedisWindow.
type RedisOption func(*RedisWindow)

// WithPrefix namespaces the keys written to Redis.
func WithPrefix(prefix string) RedisOption {
	return func(w *RedisWindow) {
		if prefix != "" {
			w.prefix = prefix
		}
	}
}

// NewRedisWindow builds a window backed by rdb.
func NewRedisWindow(rdb redis.UniversalClient, policy Policy, opts ...RedisOption) (*RedisWindow, error) {
	if rdb == nil {
		return nil, fmt.Errorf("ratelimit: redis client is nil")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	w := &RedisWindow{rdb: rdb, policy: policy, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *RedisWindow) Hit(ctx context.Context, key string) (Decision, error) {
	now := time.Now()
	blockKey := w.prefix + "block:" + key
	hitsKey := w.prefix + "hits:" + key

	if w.policy.Block > 0 {
		left, err := w.rdb.PTTL(ctx, blockKey).Result()
		if err != nil {
			return Decision{}, fmt.Errorf("ratelimit: read block: %w", err)
		}
		if left > 0 {
			return denied(w.policy, now, left), nil
		}
	}

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	if _, err := w.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, hitsKey)
		ttl = pipe.PTTL(ctx, hitsKey)
		return nil
	}); err != nil {
		return Decision{}, fmt.Errorf("ratelimit: count hit: %w", err)
	}

	windowLeft := ttl.Val()
	if windowLeft <= 0 {
		// First hit of a window: the counter has no expiry yet.
		if err := w.rdb.PExpire(ctx, hitsKey, w.policy.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit: arm window: %w", err)
		}
		windowLeft = w.policy.Window
	}

	hits := int(incr.Val())
	if hits > w.policy.Limit {
		if w.policy.Block == 0 {
			return denied(w.policy, now, windowLeft), nil
		}
		if err := w.rdb.Set(ctx, blockKey, "1", w.policy.Block).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit: set block: %w", err)
		}
		if err := w.rdb.Del(ctx, hitsKey).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit: clear window: %w", err)
		}
		return denied(w.policy, now, w.policy.Block), nil
	}
	return Decision{
		Allowed:   true,
		Limit:     w.policy.Limit,
		Remaining: w.policy.Limit - hits,
		Reset:     now.Add(windowLeft),
	}, nil
}
