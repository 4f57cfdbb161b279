package pricing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cryptofolio/tp-monitor/internal/metrics"
)

const cacheKeyPrefix = "price:"

type cachedPrice struct {
	Price     float64 `json:"price"`
	FetchedAt int64   `json:"fetched_at"` // epoch millis
}

// Cache stores last-known prices in Redis. An entry survives for the full
// TTL but only counts as fresh while younger than the freshness window, so
// a slightly stale price can still be read by other consumers without
// letting the fetcher skip a refetch past the window.
type Cache struct {
	rdb   *redis.Client
	ttl   time.Duration
	fresh time.Duration
	now   func() time.Time
}

func NewCache(rdb *redis.Client, ttl, freshWindow time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, fresh: freshWindow, now: time.Now}
}

// Get returns the cached price for a token ID. Entries that are absent,
// unreadable, or older than the freshness window are all reported as misses.
func (c *Cache) Get(ctx context.Context, tokenID string) (float64, bool) {
	val, err := c.rdb.Get(ctx, cacheKeyPrefix+tokenID).Result()
	if err != nil {
		metrics.CacheMissesTotal.Inc()
		return 0, false
	}

	var entry cachedPrice
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		metrics.CacheMissesTotal.Inc()
		return 0, false
	}

	age := c.now().Sub(time.UnixMilli(entry.FetchedAt))
	if age >= c.fresh {
		metrics.CacheMissesTotal.Inc()
		return 0, false
	}

	metrics.CacheHitsTotal.Inc()
	return entry.Price, true
}

// Put unconditionally rewrites the entry with a fresh timestamp and TTL.
func (c *Cache) Put(ctx context.Context, tokenID string, price float64) error {
	entry := cachedPrice{Price: price, FetchedAt: c.now().UnixMilli()}
	val, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, cacheKeyPrefix+tokenID, val, c.ttl).Err()
}
