package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryItem struct {
	key      string
	data     []byte
	expireAt time.Time
}

// MemoryCache is a size-bounded LRU cache holding JSON-encoded values.
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List // front = most recently used
	maxSize    int
	defaultTTL time.Duration
	stop       chan struct{}
	closeOnce  sync.Once
}

var _ Service = (*MemoryCache)(nil)

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		DefaultTTL:      24 * time.Hour,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		maxSize:    cfg.MaxSize,
		defaultTTL: cfg.DefaultTTL,
		stop:       make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go mc.cleanup(cfg.CleanupInterval)
	}
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = mc.defaultTTL
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.put(key, data, time.Now().Add(expiration))
	return nil
}

func (mc *MemoryCache) put(key string, data []byte, expireAt time.Time) {
	if el, ok := mc.items[key]; ok {
		it := el.Value.(*memoryItem)
		it.data, it.expireAt = data, expireAt
		mc.order.MoveToFront(el)
		return
	}
	for len(mc.items) >= mc.maxSize {
		mc.removeElement(mc.order.Back())
	}
	mc.items[key] = mc.order.PushFront(&memoryItem{key: key, data: data, expireAt: expireAt})
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest any) error {
	mc.mu.Lock()
	el, ok := mc.items[key]
	if !ok {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	it := el.Value.(*memoryItem)
	if time.Now().After(it.expireAt) {
		mc.removeElement(el)
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	mc.order.MoveToFront(el)
	data := it.data
	mc.mu.Unlock()
	return json.Unmarshal(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		if el, ok := mc.items[k]; ok {
			mc.removeElement(el)
		}
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	el, ok := mc.items[key]
	return ok && !time.Now().After(el.Value.(*memoryItem).expireAt), nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if el, ok := mc.items[key]; ok && !time.Now().After(el.Value.(*memoryItem).expireAt) {
		return false, nil
	}
	mc.put(key, []byte(`"locked"`), time.Now().Add(ttl))
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Len reports the number of stored entries, expired ones included.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.items)
}

func (mc *MemoryCache) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	mc.order.Remove(el)
	delete(mc.items, el.Value.(*memoryItem).key)
}

func (mc *MemoryCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-mc.stop:
			return
		case now := <-ticker.C:
			mc.mu.Lock()
			for el := mc.order.Back(); el != nil; {
				prev := el.Prev()
				if now.After(el.Value.(*memoryItem).expireAt) {
					mc.removeElement(el)
				}
				el = prev
			}
			mc.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine.
func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() { close(mc.stop) })
	return nil
}
