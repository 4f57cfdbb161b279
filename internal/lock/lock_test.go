package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestGuard(t *testing.T, ttl time.Duration) (*Guard, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewGuard(rdb, ttl), mr
}

func TestKey(t *testing.T) {
	got := Key("beforeTP", 42, 7)
	want := "alert:lock:beforeTP:42:7"
	if got != want {
		t.Errorf("Key = %q, want %q", got, want)
	}
}

func TestTryAcquireFirstWins(t *testing.T) {
	g, _ := setupTestGuard(t, 300*time.Second)
	ctx := context.Background()

	ok, err := g.TryAcquire(ctx, Key("tpReached", 1, 10))
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if !ok {
		t.Fatal("first TryAcquire should succeed")
	}

	ok, err = g.TryAcquire(ctx, Key("tpReached", 1, 10))
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if ok {
		t.Error("second TryAcquire on the same key should fail inside the TTL")
	}
}

func TestTryAcquireDistinctKeys(t *testing.T) {
	g, _ := setupTestGuard(t, 300*time.Second)
	ctx := context.Background()

	for _, key := range []string{
		Key("beforeTP", 1, 10),
		Key("tpReached", 1, 10), // same alert, different kind
		Key("beforeTP", 2, 10),  // different user
		Key("beforeTP", 1, 11),  // different alert
	} {
		ok, err := g.TryAcquire(ctx, key)
		if err != nil {
			t.Fatalf("TryAcquire(%s): %v", key, err)
		}
		if !ok {
			t.Errorf("TryAcquire(%s) should succeed, keys are independent", key)
		}
	}
}

func TestTryAcquireExclusiveUnderConcurrency(t *testing.T) {
	g, _ := setupTestGuard(t, 300*time.Second)
	key := Key("beforeTP", 5, 50)

	const n = 16
	var wg sync.WaitGroup
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := g.TryAcquire(context.Background(), key)
			if err != nil {
				t.Errorf("TryAcquire: %v", err)
				return
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	acquired := 0
	for ok := range results {
		if ok {
			acquired++
		}
	}
	if acquired != 1 {
		t.Errorf("acquired = %d, want exactly 1", acquired)
	}
}

func TestTryAcquireAfterExpiry(t *testing.T) {
	g, mr := setupTestGuard(t, 10*time.Second)
	ctx := context.Background()
	key := Key("tpReached", 3, 30)

	if ok, _ := g.TryAcquire(ctx, key); !ok {
		t.Fatal("first acquire should succeed")
	}

	mr.FastForward(11 * time.Second)

	ok, err := g.TryAcquire(ctx, key)
	if err != nil {
		t.Fatalf("TryAcquire after expiry: %v", err)
	}
	if !ok {
		t.Error("TryAcquire should succeed after the TTL expired")
	}
}

func TestRelease(t *testing.T) {
	g, _ := setupTestGuard(t, 300*time.Second)
	ctx := context.Background()
	key := Key("beforeTP", 9, 90)

	if ok, _ := g.TryAcquire(ctx, key); !ok {
		t.Fatal("first acquire should succeed")
	}

	g.Release(ctx, key)

	if ok, _ := g.TryAcquire(ctx, key); !ok {
		t.Error("TryAcquire should succeed after Release")
	}
}
