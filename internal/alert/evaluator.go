package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cryptofolio/tp-monitor/internal/lock"
	"github.com/cryptofolio/tp-monitor/internal/metrics"
	"github.com/cryptofolio/tp-monitor/internal/queue"
	"github.com/cryptofolio/tp-monitor/internal/store"
)

// RuleStore exposes the reads the evaluator needs.
type RuleStore interface {
	TokenByID(ctx context.Context, id string) (*store.Token, error)
	ActiveRules(ctx context.Context, tokenID, symbol string) ([]store.AlertRule, error)
}

// Locker is the dedup lock guarding the window between "condition holds"
// and "sent marker persisted".
type Locker interface {
	TryAcquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string)
}

// Evaluator decides, per rule and condition kind, whether a notification
// should be enqueued for the current price. It never sends mail itself; the
// dispatcher owns delivery and the permanent sent markers.
type Evaluator struct {
	store            RuleStore
	locks            Locker
	pub              queue.Publisher
	logger           *slog.Logger
	defaultBeforePct float64
}

func NewEvaluator(rs RuleStore, locks Locker, pub queue.Publisher, logger *slog.Logger, defaultBeforePct float64) *Evaluator {
	return &Evaluator{
		store:            rs,
		locks:            locks,
		pub:              pub,
		logger:           logger,
		defaultBeforePct: defaultBeforePct,
	}
}

// Evaluate checks every active rule for a token against the current price.
// Rule-level failures are isolated; only failures loading the token or its
// rule set are returned, so the surrounding batch job can be retried.
func (e *Evaluator) Evaluate(ctx context.Context, tokenID string, price float64) error {
	token, err := e.store.TokenByID(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("load token %s: %w", tokenID, err)
	}
	if token == nil {
		e.logger.Debug("token not registered, skipping", "token_id", tokenID)
		return nil
	}

	rules, err := e.store.ActiveRules(ctx, tokenID, token.Symbol)
	if err != nil {
		return fmt.Errorf("load rules for %s: %w", token.Symbol, err)
	}
	if len(rules) == 0 {
		e.logger.Debug("no active rules", "symbol", token.Symbol)
		return nil
	}

	for _, rule := range rules {
		e.checkRule(ctx, rule, price)
	}
	return nil
}

// checkRule evaluates both condition kinds independently, so a price that
// jumps past the target in one poll can fire beforeTP and tpReached
// together.
func (e *Evaluator) checkRule(ctx context.Context, rule store.AlertRule, price float64) {
	if rule.BeforeTPEnabled && rule.BeforeTPSentAt == nil {
		pct := e.defaultBeforePct
		if rule.BeforeTPPct != nil {
			pct = *rule.BeforeTPPct
		}
		if pct > 0 && BeforeTPHolds(price, rule.TargetPrice, pct) {
			e.fire(ctx, rule, KindBeforeTP, price)
		}
	}

	if rule.TPReachedEnabled && rule.TPReachedSentAt == nil && TPReachedHolds(price, rule.TargetPrice) {
		e.fire(ctx, rule, KindTPReached, price)
	}
}

func (e *Evaluator) fire(ctx context.Context, rule store.AlertRule, kind string, price float64) {
	key := lock.Key(kind, rule.UserID, rule.AlertID)
	acquired, err := e.locks.TryAcquire(ctx, key)
	if err != nil {
		e.logger.Error("dedup lock failed", "key", key, "error", err)
		return
	}
	if !acquired {
		metrics.LockContendedTotal.WithLabelValues(kind).Inc()
		e.logger.Debug("condition already in flight", "key", key)
		return
	}

	job := queue.EmailJob{
		JobID:        uuid.NewString(),
		UserID:       rule.UserID,
		AlertID:      rule.AlertID,
		StepID:       rule.StepID,
		StrategyID:   rule.StrategyID,
		Symbol:       rule.Symbol,
		CurrentPrice: price,
		TargetPrice:  rule.TargetPrice,
		Kind:         kind,
		Order:        rule.Order,
		Source:       string(rule.Source),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		e.logger.Error("marshal email job", "error", err)
		e.locks.Release(ctx, key)
		return
	}

	if err := e.pub.Publish(ctx, queue.TopicEmail, payload); err != nil {
		e.logger.Error("enqueue email job", "key", key, "error", err)
		// Drop the lock so the condition can fire on the next poll instead
		// of waiting out the TTL.
		e.locks.Release(ctx, key)
		return
	}

	metrics.ConditionsFiredTotal.WithLabelValues(kind, string(rule.Source)).Inc()
	e.logger.Info("condition fired",
		"kind", kind,
		"symbol", rule.Symbol,
		"alert_id", rule.AlertID,
		"target", rule.TargetPrice,
		"price", price,
	)
}
