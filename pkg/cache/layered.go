package cache

import (
	"context"
	"time"
)

// LayeredCache reads memory first and falls back to Redis; writes go through both.
type LayeredCache struct {
	mem   *MemoryCache
	redis *RedisCache
}

var _ Service = (*LayeredCache)(nil)

func NewLayeredCache(redisCache *RedisCache, opts ...MemoryOption) *LayeredCache {
	return &LayeredCache{mem: NewMemoryCache(opts...), redis: redisCache}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	if err := lc.redis.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return lc.mem.Set(ctx, key, value, expiration)
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest any) error {
	if err := lc.mem.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := lc.redis.Get(ctx, key, dest); err != nil {
		return err
	}
	// promote with the memory default TTL; Redis keeps the authoritative expiry
	_ = lc.mem.Set(ctx, key, dest, 0)
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.mem.Delete(ctx, keys...)
	return lc.redis.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, key string) (bool, error) {
	if ok, _ := lc.mem.Exists(ctx, key); ok {
		return true, nil
	}
	return lc.redis.Exists(ctx, key)
}

// Locks live in Redis only so they hold across processes.
func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.redis.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.redis.Unlock(ctx, key)
}

func (lc *LayeredCache) Close() error {
	_ = lc.mem.Close()
	return lc.redis.Close()
}
