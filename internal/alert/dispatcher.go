package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cryptofolio/tp-monitor/internal/metrics"
	"github.com/cryptofolio/tp-monitor/internal/queue"
	"github.com/cryptofolio/tp-monitor/internal/store"
)

// MarkerStore covers the dispatcher's reads and the permanent sent markers.
type MarkerStore interface {
	RuleSentAt(ctx context.Context, source store.RuleSource, alertID int64, kind string) (*time.Time, bool, error)
	MarkRuleSent(ctx context.Context, source store.RuleSource, alertID int64, kind string, at time.Time) error
	AdvanceStepState(ctx context.Context, stepID int64) error
	UserEmail(ctx context.Context, userID int64) (string, error)
}

// Mailer sends one rendered message and returns the provider's message ID.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) (string, error)
}

// Dispatcher consumes email jobs. The database sent marker, not the Redis
// lock, is the source of truth: every job re-checks it before sending, so a
// duplicate enqueued past an expired lock is suppressed here.
type Dispatcher struct {
	store  MarkerStore
	mail   Mailer
	logger *slog.Logger
	now    func() time.Time
}

func NewDispatcher(ms MarkerStore, mail Mailer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{store: ms, mail: mail, logger: logger, now: time.Now}
}

// HandleEmail processes one queued email job. Returned errors leave the
// message uncommitted for redelivery; a marker already set means the mail
// went out and the job is acked without sending.
func (d *Dispatcher) HandleEmail(ctx context.Context, payload []byte) error {
	var job queue.EmailJob
	if err := json.Unmarshal(payload, &job); err != nil {
		d.logger.Error("malformed email job, dropping", "error", err)
		return nil
	}

	source := store.RuleSource(job.Source)
	sentAt, exists, err := d.store.RuleSentAt(ctx, source, job.AlertID, job.Kind)
	if err != nil {
		return fmt.Errorf("check sent marker for alert %d: %w", job.AlertID, err)
	}
	if !exists {
		// Alert deleted between enqueue and dispatch. Nothing to notify
		// about anymore; retrying would loop forever.
		d.logger.Warn("alert no longer exists, dropping job",
			"job_id", job.JobID, "kind", job.Kind, "alert_id", job.AlertID)
		return nil
	}
	if sentAt != nil {
		metrics.EmailsSuppressedTotal.WithLabelValues(job.Kind).Inc()
		d.logger.Info("email already sent, suppressing",
			"job_id", job.JobID,
			"kind", job.Kind,
			"alert_id", job.AlertID,
			"sent_at", sentAt,
		)
		return nil
	}

	to, err := d.store.UserEmail(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient for user %d: %w", job.UserID, err)
	}
	if to == "" {
		d.logger.Warn("recipient no longer exists, dropping job",
			"job_id", job.JobID, "user_id", job.UserID)
		return nil
	}

	subject, html := composeEmail(job)
	msgID, err := d.mail.Send(ctx, to, subject, html)
	if err != nil {
		metrics.EmailsFailedTotal.WithLabelValues(job.Kind).Inc()
		return fmt.Errorf("send %s email for alert %d: %w", job.Kind, job.AlertID, err)
	}
	metrics.EmailsSentTotal.WithLabelValues(job.Kind).Inc()

	if err := d.store.MarkRuleSent(ctx, source, job.AlertID, job.Kind, d.now()); err != nil {
		// The mail is out but the marker is not persisted. Returning the
		// error retries the whole job, and the marker re-check cannot save
		// us since it is the very write that failed. Accepted tradeoff: a
		// rare duplicate beats a silently lost alert.
		return fmt.Errorf("persist sent marker for alert %d: %w", job.AlertID, err)
	}

	if job.Kind == KindTPReached && source == store.SourceStep && job.StepID != 0 {
		if err := d.store.AdvanceStepState(ctx, job.StepID); err != nil {
			d.logger.Warn("advance step state", "step_id", job.StepID, "error", err)
		}
	}

	d.logger.Info("alert email sent",
		"job_id", job.JobID,
		"kind", job.Kind,
		"symbol", job.Symbol,
		"to", to,
		"message_id", msgID,
	)
	return nil
}

func composeEmail(job queue.EmailJob) (subject, html string) {
	symbol := strings.ToUpper(job.Symbol)
	current := formatPrice(job.CurrentPrice)
	target := formatPrice(job.TargetPrice)

	switch job.Kind {
	case KindBeforeTP:
		subject = fmt.Sprintf("%s is approaching your take-profit target", symbol)
		html = fmt.Sprintf(
			"<h2>%s is close to your target</h2>"+
				"<p>Current price: <b>$%s</b></p>"+
				"<p>Take-profit target: <b>$%s</b></p>"+
				"<p>Consider preparing your sell order.</p>",
			symbol, current, target)
	default:
		subject = fmt.Sprintf("%s reached your take-profit target", symbol)
		stepLine := ""
		if job.Source == string(store.SourceStep) && job.Order > 0 {
			stepLine = fmt.Sprintf("<p>Strategy step: <b>#%d</b></p>", job.Order)
		}
		html = fmt.Sprintf(
			"<h2>%s hit $%s</h2>"+
				"<p>Your take-profit target of <b>$%s</b> has been reached.</p>"+
				"%s"+
				"<p>Time to execute your plan.</p>",
			symbol, current, target, stepLine)
	}
	return subject, html
}

func formatPrice(v float64) string {
	if v >= 1_000 {
		s := fmt.Sprintf("%.2f", v)
		parts := strings.SplitN(s, ".", 2)
		n := len(parts[0])
		var result []byte
		for i, c := range parts[0] {
			if i > 0 && (n-i)%3 == 0 {
				result = append(result, ',')
			}
			result = append(result, byte(c))
		}
		return string(result) + "." + parts[1]
	}
	if v >= 1 {
		return fmt.Sprintf("%.2f", v)
	}
	return fmt.Sprintf("%.6f", v)
}
