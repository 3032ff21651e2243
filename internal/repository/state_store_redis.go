package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStateStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStateStore namespaces every key under prefix.
func NewRedisStateStore(client *redis.Client, prefix string) StateStore {
	return &redisStateStore{client: client, prefix: prefix}
}

func (s *redisStateStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.wrap(s.client.Set(ctx, s.prefix+key, value, ttl).Err())
}

// Consume relies on GETDEL so concurrent redeemers race inside redis.
func (s *redisStateStore) Consume(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.GetDel(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, s.wrap(err)
}

func (s *redisStateStore) Delete(ctx context.Context, key string) error {
	return s.wrap(s.client.Del(ctx, s.prefix+key).Err())
}

func (s *redisStateStore) wrap(err error) error {
	if err != nil && isConnectivity(err) {
		return unavailable(err)
	}
	return err
}
