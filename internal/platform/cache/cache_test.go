package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func loaderOf(value string) Loader[string] {
	return func(context.Context) (string, error) { return value, nil }
}

func failingLoader(err error) Loader[string] {
	return func(context.Context) (string, error) { return "", err }
}

func TestCacheGetLoadsOnMissAndCachesOnHit(t *testing.T) {
	clock := newFakeClock()
	c := New[string, string](time.Minute, 10, WithClock(clock.Now))

	calls := 0
	load := func(context.Context) (string, error) {
		calls++
		return "op-profile", nil
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := c.Get(ctx, "op-1", load)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got != "op-profile" {
			t.Fatalf("expected op-profile, got %q", got)
		}
	}
	if calls != 1 {
		t.Fatalf("expected loader called once, got %d", calls)
	}
}

func TestCacheLoaderErrorsAreNotCached(t *testing.T) {
	clock := newFakeClock()
	c := New[string, string](time.Minute, 10, WithClock(clock.Now))

	boom := errors.New("backend down")
	if _, err := c.Get(context.Background(), "svc-1", failingLoader(boom)); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected nothing cached after loader failure, got %d entries", c.Len())
	}

	got, err := c.Get(context.Background(), "svc-1", loaderOf("survey"))
	if err != nil {
		t.Fatalf("get after failure: %v", err)
	}
	if got != "survey" {
		t.Fatalf("expected survey, got %q", got)
	}
}

func TestCacheIdleExpiryMeasuredFromLastAccess(t *testing.T) {
	clock := newFakeClock()
	c := New[string, string](10*time.Minute, 10, WithClock(clock.Now))

	ctx := context.Background()
	if _, err := c.Get(ctx, "user-1", loaderOf("v1")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// A hit just before expiry resets the idle clock.
	clock.Advance(9 * time.Minute)
	if _, err := c.Get(ctx, "user-1", failingLoader(errors.New("should not load"))); err != nil {
		t.Fatalf("expected hit, got %v", err)
	}

	// Another 9 minutes later the entry is still live thanks to the refresh.
	clock.Advance(9 * time.Minute)
	if _, ok := c.Peek("user-1"); !ok {
		t.Fatal("expected entry to survive after access refresh")
	}

	// Idle past the TTL it expires and the loader runs again.
	clock.Advance(11 * time.Minute)
	got, err := c.Get(ctx, "user-1", loaderOf("v2"))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got != "v2" {
		t.Fatalf("expected reloaded value v2, got %q", got)
	}
}

func TestCacheCapacityEvictsLeastRecentlyAccessed(t *testing.T) {
	clock := newFakeClock()
	c := New[string, string](time.Hour, 3, WithClock(clock.Now))

	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		clock.Advance(time.Second)
		if _, err := c.Get(ctx, key, loaderOf("v-"+key)); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}

	// Touch "a" so "b" becomes the least recently accessed entry.
	clock.Advance(time.Second)
	if _, err := c.Get(ctx, "a", failingLoader(errors.New("should not load"))); err != nil {
		t.Fatalf("touch a: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := c.Get(ctx, "d", loaderOf("v-d")); err != nil {
		t.Fatalf("insert d: %v", err)
	}

	if c.Len() != 3 {
		t.Fatalf("expected capacity 3 resident entries, got %d", c.Len())
	}
	if _, ok := c.Peek("b"); ok {
		t.Fatal("expected b to be evicted as least recently accessed")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Peek(key); !ok {
			t.Fatalf("expected %s to survive eviction", key)
		}
	}
}

func TestCacheInvalidateRemovesKey(t *testing.T) {
	clock := newFakeClock()
	c := New[string, string](time.Hour, 10, WithClock(clock.Now))

	ctx := context.Background()
	if _, err := c.Get(ctx, "op-1", loaderOf("v1")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	c.Invalidate("op-1")
	if _, ok := c.Peek("op-1"); ok {
		t.Fatal("expected entry removed after invalidation")
	}

	// Next read goes back to the loader.
	got, err := c.Get(ctx, "op-1", loaderOf("v2"))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got != "v2" {
		t.Fatalf("expected v2 after invalidation, got %q", got)
	}

	// Invalidating an absent key is a no-op.
	c.Invalidate("missing")
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New[int, int](time.Minute, 64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			ctx := context.Background()
			for j := 0; j < 200; j++ {
				key := j % 100
				got, err := c.Get(ctx, key, func(context.Context) (int, error) {
					return key * 2, nil
				})
				if err != nil {
					t.Errorf("worker %d: get %d: %v", worker, key, err)
					return
				}
				if got != key*2 {
					t.Errorf("worker %d: expected %d, got %d", worker, key*2, got)
					return
				}
				if j%17 == 0 {
					c.Invalidate(key)
				}
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 64 {
		t.Fatalf("capacity exceeded: %d entries", c.Len())
	}
}
