package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cryptofolio/tp-monitor/internal/queue"
)

// PriceLookup resolves current prices for a batch of token IDs.
type PriceLookup interface {
	BatchPrices(ctx context.Context, ids []string) (map[string]float64, error)
}

// Worker consumes check-batch jobs: fetch prices for the batch, then run
// every priced token through the evaluator.
type Worker struct {
	prices PriceLookup
	eval   *Evaluator
	logger *slog.Logger
}

func NewWorker(prices PriceLookup, eval *Evaluator, logger *slog.Logger) *Worker {
	return &Worker{prices: prices, eval: eval, logger: logger}
}

// HandleCheckBatch processes one queued batch. A malformed payload is
// dropped; evaluation errors are joined and returned so the message stays
// uncommitted and gets redelivered.
func (w *Worker) HandleCheckBatch(ctx context.Context, payload []byte) error {
	var job queue.CheckBatchJob
	if err := json.Unmarshal(payload, &job); err != nil {
		w.logger.Error("malformed check-batch job, dropping", "error", err)
		return nil
	}
	if len(job.TokenIDs) == 0 {
		return nil
	}

	prices, err := w.prices.BatchPrices(ctx, job.TokenIDs)
	if err != nil {
		return fmt.Errorf("fetch prices for job %s: %w", job.JobID, err)
	}
	if len(prices) == 0 {
		w.logger.Warn("no prices resolved for batch", "job_id", job.JobID, "tokens", len(job.TokenIDs))
		return nil
	}

	var errs []error
	for _, id := range job.TokenIDs {
		price, ok := prices[id]
		if !ok {
			continue
		}
		if err := w.eval.Evaluate(ctx, id, price); err != nil {
			w.logger.Error("evaluate token", "job_id", job.JobID, "token_id", id, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
