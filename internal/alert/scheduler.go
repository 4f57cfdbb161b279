package alert

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cryptofolio/tp-monitor/internal/metrics"
	"github.com/cryptofolio/tp-monitor/internal/queue"
)

// Scheduler turns the watch list into price-check jobs on a fixed interval.
// It only publishes work; evaluation happens in queue workers, and the next
// tick fires on schedule whether or not earlier batches have completed.
type Scheduler struct {
	registry  *Registry
	pub       queue.Publisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewScheduler(registry *Registry, pub queue.Publisher, logger *slog.Logger, interval time.Duration, batchSize int) *Scheduler {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Scheduler{
		registry:  registry,
		pub:       pub,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run ticks until the context is cancelled. The interval is fixed at
// construction; changing it requires a restart.
func (s *Scheduler) Run(ctx context.Context) {
	s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one discovery-and-enqueue pass. Failures are logged and
// swallowed; the scheduler itself must never die.
func (s *Scheduler) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SchedulerTicksTotal.WithLabelValues("panic").Inc()
			s.logger.Error("scheduler tick panicked", "panic", r)
		}
	}()

	tokenIDs := s.registry.WatchedTokenIDs(ctx)
	metrics.WatchedTokens.Set(float64(len(tokenIDs)))
	if len(tokenIDs) == 0 {
		metrics.SchedulerTicksTotal.WithLabelValues("empty").Inc()
		return
	}

	published := 0
	for _, chunk := range chunkTokenIDs(tokenIDs, s.batchSize) {
		job := queue.CheckBatchJob{JobID: uuid.NewString(), TokenIDs: chunk}
		payload, err := json.Marshal(job)
		if err != nil {
			s.logger.Error("marshal check-batch job", "error", err)
			continue
		}
		if err := s.pub.Publish(ctx, queue.TopicCheckBatch, payload); err != nil {
			s.logger.Error("publish check-batch job", "job_id", job.JobID, "error", err)
			continue
		}
		published++
	}

	metrics.SchedulerTicksTotal.WithLabelValues("ok").Inc()
	s.logger.Info("scheduled price checks",
		"watched_tokens", len(tokenIDs),
		"batches", published,
	)
}

func chunkTokenIDs(ids []string, size int) [][]string {
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
