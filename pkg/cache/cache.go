package cache

import (
	"context"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service is the cache used for analysis results. Values are stored as JSON.
type Service interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Get(ctx context.Context, key string, dest any) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	// TryLock sets key only when absent; the lock expires after ttl.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Close() error
}

// GetTyped reads key into a new T.
func GetTyped[T any](ctx context.Context, c Service, key string) (*T, error) {
	var v T
	if err := c.Get(ctx, key, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
