package pricing

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/cryptofolio/tp-monitor/internal/metrics"
)

// Source is the external market-data provider: one bounded call per ID
// batch, prices absent for unknown IDs.
type Source interface {
	SimplePrices(ctx context.Context, ids []string) (map[string]float64, error)
}

// Fetcher resolves prices for a set of token IDs through the cache,
// fetching misses from the provider in fixed-size chunks. Chunk calls are
// paced by a rate limiter to respect upstream limits.
type Fetcher struct {
	cache     *Cache
	source    Source
	logger    *slog.Logger
	batchSize int
	limiter   *rate.Limiter
}

func NewFetcher(cache *Cache, source Source, logger *slog.Logger, batchSize int) *Fetcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Fetcher{
		cache:     cache,
		source:    source,
		logger:    logger,
		batchSize: batchSize,
		limiter:   rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
	}
}

// BatchPrices returns the current price for every requested ID it can
// resolve. A failed provider chunk is logged and skipped; its IDs are
// simply missing from the result. The result never contains an ID the
// caller did not ask for. The only error is context cancellation, reported
// alongside whatever was resolved before it.
func (f *Fetcher) BatchPrices(ctx context.Context, tokenIDs []string) (map[string]float64, error) {
	result := make(map[string]float64, len(tokenIDs))

	requested := make(map[string]struct{}, len(tokenIDs))
	var missing []string
	for _, id := range tokenIDs {
		if _, dup := requested[id]; dup {
			continue
		}
		requested[id] = struct{}{}
		if price, ok := f.cache.Get(ctx, id); ok {
			result[id] = price
		} else {
			missing = append(missing, id)
		}
	}

	for _, chunk := range chunkIDs(missing, f.batchSize) {
		if err := f.limiter.Wait(ctx); err != nil {
			return result, err
		}

		start := time.Now()
		prices, err := f.source.SimplePrices(ctx, chunk)
		metrics.ProviderCallDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.ProviderCallsTotal.WithLabelValues("error").Inc()
			f.logger.Error("price chunk fetch failed", "chunk_size", len(chunk), "error", err)
			continue
		}
		metrics.ProviderCallsTotal.WithLabelValues("ok").Inc()

		for id, price := range prices {
			if _, ok := requested[id]; !ok {
				continue
			}
			result[id] = price
			if err := f.cache.Put(ctx, id, price); err != nil {
				f.logger.Warn("price cache write failed", "token_id", id, "error", err)
			}
		}
	}

	return result, nil
}

func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}
