// Package lock provides the short-lived advisory lock that keeps a fired
// condition from being enqueued twice while its permanent sent marker is
// still in flight. The persisted marker, not this lock, is the source of
// truth for "already notified".
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Guard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewGuard(rdb *redis.Client, ttl time.Duration) *Guard {
	return &Guard{rdb: rdb, ttl: ttl}
}

// Key builds the lock key for one rule instance and condition kind.
func Key(kind string, userID, alertID int64) string {
	return fmt.Sprintf("alert:lock:%s:%d:%d", kind, userID, alertID)
}

// TryAcquire atomically creates the key with the configured TTL and reports
// whether this call created it. A false return means another evaluation is
// already in flight or recently fired for the same rule.
func (g *Guard) TryAcquire(ctx context.Context, key string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, key, "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// Release drops the key early so the condition can re-fire before the TTL
// lapses. Used when enqueueing failed after acquisition.
func (g *Guard) Release(ctx context.Context, key string) {
	g.rdb.Del(ctx, key) //nolint:errcheck
}
