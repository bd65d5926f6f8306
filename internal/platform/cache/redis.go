package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the Redis client.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// New creates a Redis client and verifies connectivity.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// TryLock acquires a short-lived exclusive key. It returns false when another
// holder owns the key.
func TryLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (bool, error) {
	ok, err := client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("platform/cache: lock %s: %w", key, err)
	}
	return ok, nil
}

// Unlock releases a key taken with TryLock.
func Unlock(ctx context.Context, client *redis.Client, key string) error {
	return client.Del(ctx, key).Err()
}
