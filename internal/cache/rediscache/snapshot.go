package rediscache

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// SnapshotStore keeps the pending queue snapshot under one fixed key without
// expiry. Deleting the key is the "nothing pending" signal.
type SnapshotStore struct {
	c   redis.UniversalClient
	key string
}

func NewSnapshotStore(c redis.UniversalClient, key string) *SnapshotStore {
	return &SnapshotStore{c: c, key: key}
}

func (s *SnapshotStore) Load(ctx context.Context) ([]byte, bool, error) {
	val, err := s.c.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis load snapshot")
	}
	return val, true, nil
}

func (s *SnapshotStore) Save(ctx context.Context, data []byte) error {
	if err := s.c.Set(ctx, s.key, data, 0).Err(); err != nil {
		return errors.Wrap(err, "redis save snapshot")
	}
	return nil
}

func (s *SnapshotStore) Delete(ctx context.Context) error {
	if err := s.c.Del(ctx, s.key).Err(); err != nil {
		return errors.Wrap(err, "redis delete snapshot")
	}
	return nil
}
