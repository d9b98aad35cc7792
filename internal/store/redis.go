package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"pengajuan-service/internal/client"
)

const operationTimeout = 5 * time.Second

// RedisStore backs the shared store with Redis so state survives
// restarts and is visible across replicas. Expiry is server-side.
type RedisStore struct {
	client *client.RedisClient
}

func NewRedisStore(redisClient *client.RedisClient) *RedisStore {
	return &RedisStore{client: redisClient}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	val, err := r.client.Client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return val, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	return r.client.Client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	return r.client.Client.Del(ctx, key).Err()
}

// Sweep is a no-op: Redis evicts expired keys itself.
func (r *RedisStore) Sweep(_ context.Context) error {
	return nil
}

func (r *RedisStore) Close() error {
	return nil
}
