package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ActionLimiter counts actions per key in fixed windows.
type ActionLimiter struct {
	c redis.UniversalClient
}

func NewActionLimiter(c redis.UniversalClient) *ActionLimiter {
	return &ActionLimiter{c: c}
}

// Allow увеличивает счётчик окна; TTL ставится только первым запросом окна,
// поэтому окно не продлевается при каждом вызове.
func (l *ActionLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	pipe := l.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, errors.Wrap(err, "redis action limiter")
	}
	n := incr.Val()
	return n <= limit, n, nil
}
