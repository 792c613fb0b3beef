package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const responseKeyPrefix = "action:response:"

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	return NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: addr}))
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) GetResponse(ctx context.Context, key string) ([]byte, bool, error) {
	result, err := r.client.Get(ctx, responseKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

func (r *RedisStore) SetResponse(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, responseKeyPrefix+key, value, ttl).Err()
}

func (r *RedisStore) DeleteResponse(ctx context.Context, key string) error {
	return r.client.Del(ctx, responseKeyPrefix+key).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
