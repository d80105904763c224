package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/authkit/authkit/oidc"
)

// Redis is a Store backed by a Redis instance, for hosts that need
// transactions visible across instances. TTL enforcement is delegated
// to Redis key expiry.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis creates a store over an existing Redis client.
func NewRedis(client redis.UniversalClient) (*Redis, error) {
	const op = "store.NewRedis"
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, oidc.ErrNilParameter)
	}
	return &Redis{client: client}, nil
}

func (s *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	const op = "store.Redis.Set"
	if key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, oidc.ErrInvalidParameter)
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%s: unable to set %q: %w", op, key, err)
	}
	return nil
}

func (s *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	const op = "store.Redis.Get"
	value, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %q: %w", op, key, oidc.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: unable to get %q: %w", op, key, err)
	}
	return value, nil
}

func (s *Redis) Delete(ctx context.Context, key string) error {
	const op = "store.Redis.Delete"
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: unable to delete %q: %w", op, key, err)
	}
	return nil
}
