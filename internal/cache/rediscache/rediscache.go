// Package rediscache holds the redis-backed parts of PassportDesk. Callers
// dial one client and share it between the status cache, the action limiter
// and the station snapshot store.
package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

func Dial(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
	})
}

// StatusCache keeps short-lived JSON copies of passports. Misses and
// failures are never fatal for callers.
type StatusCache struct {
	c redis.UniversalClient
}

func NewStatusCache(c redis.UniversalClient) *StatusCache {
	return &StatusCache{c: c}
}

func (s *StatusCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "redis get %s", key)
	}
	return val, true, nil
}

// Set stores value for ttl. A non-positive ttl is ignored: the status cache
// never holds entries without expiry.
func (s *StatusCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return errors.Wrapf(s.c.Set(ctx, key, value, ttl).Err(), "redis set %s", key)
}

func (s *StatusCache) Del(ctx context.Context, key string) error {
	return errors.Wrapf(s.c.Del(ctx, key).Err(), "redis del %s", key)
}

func (s *StatusCache) Ping(ctx context.Context) error {
	return errors.Wrap(s.c.Ping(ctx).Err(), "redis ping")
}
