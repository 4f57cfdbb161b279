// Package queue carries the two job streams of the alert pipeline:
// price-check batches produced by the scheduler and email jobs produced by
// the evaluator. Delivery is at-least-once; consumers are expected to be
// idempotent and to return an error when a job should be re-attempted.
package queue

import "context"

const (
	TopicCheckBatch = "alerts.check-batch"
	TopicEmail      = "alerts.email"
)

// Publisher enqueues a payload on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Handler processes one job payload. A non-nil error leaves the job
// eligible for redelivery.
type Handler func(ctx context.Context, payload []byte) error

// CheckBatchJob asks a worker to price-check a batch of token IDs.
type CheckBatchJob struct {
	JobID    string   `json:"job_id"`
	TokenIDs []string `json:"token_ids"`
}

// EmailJob carries everything the dispatcher needs to send one alert email
// without re-running the evaluation.
type EmailJob struct {
	JobID        string  `json:"job_id"`
	UserID       int64   `json:"user_id"`
	AlertID      int64   `json:"alert_id"`
	StepID       int64   `json:"step_id,omitempty"`
	StrategyID   int64   `json:"strategy_id,omitempty"`
	Symbol       string  `json:"symbol"`
	CurrentPrice float64 `json:"current_price"`
	TargetPrice  float64 `json:"target_price"`
	Kind         string  `json:"kind"`   // "beforeTP" or "tpReached"
	Order        int     `json:"order"`  // 1-based step rank by target price
	Source       string  `json:"source"` // "step" or "holding"
}
