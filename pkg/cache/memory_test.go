package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type payload struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

func TestMemoryCacheRoundTripsStructs(t *testing.T) {
	c := NewMemoryCache(WithMemoryCleanup(0))
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "a", payload{ID: "x", Score: 0.5}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := GetTyped[payload](ctx, c, "a")
	if err != nil || got.ID != "x" || got.Score != 0.5 {
		t.Fatalf("unexpected %+v %v", got, err)
	}
	var miss payload
	if err := c.Get(ctx, "missing", &miss); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryCleanup(0))
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "a", 1, time.Minute)
	_ = c.Set(ctx, "b", 2, time.Minute)
	var v int
	_ = c.Get(ctx, "a", &v) // a becomes most recent
	_ = c.Set(ctx, "c", 3, time.Minute)

	if ok, _ := c.Exists(ctx, "b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if ok, _ := c.Exists(ctx, "a"); !ok {
		t.Fatalf("a should survive")
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
}

func TestMemoryCacheExpiryAndLocks(t *testing.T) {
	c := NewMemoryCache(WithMemoryCleanup(0))
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "short", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	var s string
	if err := c.Get(ctx, "short", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}

	if ok, _ := c.TryLock(ctx, "lock", time.Minute); !ok {
		t.Fatalf("first lock must succeed")
	}
	if ok, _ := c.TryLock(ctx, "lock", time.Minute); ok {
		t.Fatalf("second lock must fail")
	}
	_ = c.Unlock(ctx, "lock")
	if ok, _ := c.TryLock(ctx, "lock", time.Minute); !ok {
		t.Fatalf("lock must be free after unlock")
	}
}

func TestGenerateKeyAndHash(t *testing.T) {
	if k := GenerateKey("analysis", "brent", 42); k != "analysis:brent:42" {
		t.Fatalf("unexpected key %q", k)
	}
	a, _ := HashOf(payload{ID: "x"})
	b, _ := HashOf(payload{ID: "x"})
	c, _ := HashOf(payload{ID: "y"})
	if a != b || a == c || len(a) != 16 {
		t.Fatalf("unexpected hashes %q %q %q", a, b, c)
	}
}
