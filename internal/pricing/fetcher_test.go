package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"golang.org/x/time/rate"
)

// fakeSource records chunk calls and serves prices from a fixed map.
type fakeSource struct {
	prices map[string]float64
	calls  [][]string
	failOn int // 1-based call index to fail, 0 = never
}

func (f *fakeSource) SimplePrices(_ context.Context, ids []string) (map[string]float64, error) {
	f.calls = append(f.calls, ids)
	if f.failOn > 0 && len(f.calls) == f.failOn {
		return nil, errors.New("provider unavailable")
	}
	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		if p, ok := f.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func newTestFetcher(t *testing.T, src Source, batchSize int) *Fetcher {
	t.Helper()
	cache, _ := setupTestCache(t)
	f := NewFetcher(cache, src, slog.Default(), batchSize)
	f.limiter = rate.NewLimiter(rate.Inf, 1) // no pacing in tests
	return f
}

func TestBatchPricesChunking(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{}}
	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprintf("token-%d", i)
		src.prices[ids[i]] = float64(i)
	}

	f := newTestFetcher(t, src, 100)
	result, err := f.BatchPrices(context.Background(), ids)
	if err != nil {
		t.Fatalf("BatchPrices: %v", err)
	}

	if len(src.calls) != 3 {
		t.Fatalf("provider calls = %d, want 3", len(src.calls))
	}
	if got := len(src.calls[0]); got != 100 {
		t.Errorf("chunk 1 size = %d, want 100", got)
	}
	if got := len(src.calls[2]); got != 50 {
		t.Errorf("chunk 3 size = %d, want 50", got)
	}
	if len(result) != 250 {
		t.Errorf("len(result) = %d, want 250", len(result))
	}
}

func TestBatchPricesCacheShortCircuit(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"bitcoin": 97000}}
	f := newTestFetcher(t, src, 100)
	ctx := context.Background()

	if err := f.cache.Put(ctx, "bitcoin", 96500); err != nil {
		t.Fatalf("Put: %v", err)
	}

	result, err := f.BatchPrices(ctx, []string{"bitcoin"})
	if err != nil {
		t.Fatalf("BatchPrices: %v", err)
	}
	if len(src.calls) != 0 {
		t.Fatalf("provider calls = %d, want 0 (cache hit)", len(src.calls))
	}
	if result["bitcoin"] != 96500 {
		t.Errorf("bitcoin = %v, want cached 96500", result["bitcoin"])
	}
}

func TestBatchPricesFailedChunkIsolated(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{}, failOn: 1}
	ids := make([]string, 150)
	for i := range ids {
		ids[i] = fmt.Sprintf("token-%d", i)
		src.prices[ids[i]] = float64(i) + 1
	}

	f := newTestFetcher(t, src, 100)
	result, err := f.BatchPrices(context.Background(), ids)
	if err != nil {
		t.Fatalf("BatchPrices: %v", err)
	}

	if len(src.calls) != 2 {
		t.Fatalf("provider calls = %d, want 2 (failed chunk must not abort siblings)", len(src.calls))
	}
	// The 50 IDs of the surviving chunk are present, the 100 of the failed
	// chunk are simply omitted.
	if len(result) != 50 {
		t.Errorf("len(result) = %d, want 50", len(result))
	}
}

func TestBatchPricesNeverReturnsUnrequestedIDs(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"bitcoin": 97000, "ethereum": 3500}}
	f := newTestFetcher(t, src, 100)

	// Provider returns extra IDs the caller never asked for.
	extra := &fakeSource{prices: src.prices}
	extraWrapped := sourceFunc(func(ctx context.Context, ids []string) (map[string]float64, error) {
		out, _ := extra.SimplePrices(ctx, ids)
		out["dogecoin"] = 0.42
		return out, nil
	})
	f.source = extraWrapped

	result, err := f.BatchPrices(context.Background(), []string{"bitcoin"})
	if err != nil {
		t.Fatalf("BatchPrices: %v", err)
	}
	if _, ok := result["dogecoin"]; ok {
		t.Error("result must not contain IDs the caller did not request")
	}
	if result["bitcoin"] != 97000 {
		t.Errorf("bitcoin = %v, want 97000", result["bitcoin"])
	}
}

func TestBatchPricesPopulatesCache(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"bitcoin": 97000}}
	f := newTestFetcher(t, src, 100)
	ctx := context.Background()

	if _, err := f.BatchPrices(ctx, []string{"bitcoin"}); err != nil {
		t.Fatalf("BatchPrices: %v", err)
	}

	price, ok := f.cache.Get(ctx, "bitcoin")
	if !ok {
		t.Fatal("fetched price should be cached")
	}
	if price != 97000 {
		t.Errorf("cached price = %v, want 97000", price)
	}

	// Second call is served from cache.
	if _, err := f.BatchPrices(ctx, []string{"bitcoin"}); err != nil {
		t.Fatalf("BatchPrices: %v", err)
	}
	if len(src.calls) != 1 {
		t.Errorf("provider calls = %d, want 1", len(src.calls))
	}
}

func TestBatchPricesCancelledContext(t *testing.T) {
	src := &fakeSource{prices: map[string]float64{"bitcoin": 97000}}
	f := newTestFetcher(t, src, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.BatchPrices(ctx, []string{"bitcoin"}); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
	if len(src.calls) != 0 {
		t.Errorf("provider calls = %d, want 0 after cancellation", len(src.calls))
	}
}

func TestChunkIDs(t *testing.T) {
	tests := []struct {
		n, size  int
		wantLens []int
	}{
		{0, 100, nil},
		{1, 100, []int{1}},
		{100, 100, []int{100}},
		{101, 100, []int{100, 1}},
		{250, 100, []int{100, 100, 50}},
	}
	for _, tt := range tests {
		ids := make([]string, tt.n)
		chunks := chunkIDs(ids, tt.size)
		if len(chunks) != len(tt.wantLens) {
			t.Errorf("chunkIDs(n=%d) chunks = %d, want %d", tt.n, len(chunks), len(tt.wantLens))
			continue
		}
		for i, c := range chunks {
			if len(c) != tt.wantLens[i] {
				t.Errorf("chunkIDs(n=%d) chunk %d len = %d, want %d", tt.n, i, len(c), tt.wantLens[i])
			}
		}
	}
}

// sourceFunc adapts a function to the Source interface.
type sourceFunc func(ctx context.Context, ids []string) (map[string]float64, error)

func (f sourceFunc) SimplePrices(ctx context.Context, ids []string) (map[string]float64, error) {
	return f(ctx, ids)
}
