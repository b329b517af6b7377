package store

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// redisCommands is the slice of go-redis used here, so tests can stub it.
type redisCommands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisStore is a KeyValueStore backed by Redis. Values never expire.
type RedisStore struct {
	client redisCommands
	prefix string
	logger *zap.Logger
	policy RetryPolicy
}

// NewRedisStore wraps a go-redis client. Keys are namespaced with prefix.
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	return newRedisStore(client, prefix, logger, DefaultRetryPolicy)
}

func newRedisStore(client redisCommands, prefix string, logger *zap.Logger, policy RetryPolicy) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger.Named("redis_store"),
		policy: policy,
	}
}

// Get reads key, mapping redis.Nil to ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := withRetry(ctx, s.logger, s.policy, "store.redis.get", func(ctx context.Context) error {
		v, err := s.client.Get(ctx, s.prefix+key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set writes key without expiration.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return withRetry(ctx, s.logger, s.policy, "store.redis.set", func(ctx context.Context) error {
		return s.client.Set(ctx, s.prefix+key, value, 0).Err()
	})
}
