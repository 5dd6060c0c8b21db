package idempotency

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps keys in Redis so duplicates are caught across replicas.
type RedisStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Begin(ctx context.Context, key string) (*Response, error) {
	k := storageKey(key)
	claimed, err := s.rdb.SetNX(ctx, k, pendingMarker, s.ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "claim key")
	}
	if claimed {
		return nil, nil
	}

	val, err := s.rdb.Get(ctx, k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired or aborted between SETNX and GET; try once more.
		return s.retryClaim(ctx, k)
	case err != nil:
		return nil, errors.Wrap(err, "get key")
	case string(val) == pendingMarker:
		return nil, ErrInProgress
	}
	return decodeResponse(val)
}

func (s *RedisStore) retryClaim(ctx context.Context, k string) (*Response, error) {
	claimed, err := s.rdb.SetNX(ctx, k, pendingMarker, s.ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "claim key")
	}
	if !claimed {
		return nil, ErrInProgress
	}
	return nil, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, resp Response) error {
	if err := s.rdb.Set(ctx, storageKey(key), encodeResponse(resp), s.ttl).Err(); err != nil {
		return errors.Wrap(err, "store response")
	}
	return nil
}

func (s *RedisStore) Abort(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, storageKey(key)).Err(); err != nil {
		return errors.Wrap(err, "delete key")
	}
	return nil
}
