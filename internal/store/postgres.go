package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// --- Tokens ---

type Token struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenByID returns the token row for a market-data ID, or nil when the
// token has never been seen.
func (s *Store) TokenByID(ctx context.Context, id string) (*Token, error) {
	var t Token
	err := s.pool.QueryRow(ctx,
		`SELECT id, symbol, created_at FROM tokens WHERE id = $1`, id).
		Scan(&t.ID, &t.Symbol, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// EnsureToken creates the reference row on first encounter. Token rows are
// immutable after creation.
func (s *Store) EnsureToken(ctx context.Context, id, symbol string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (id, symbol) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`, id, symbol)
	return err
}

// --- Watch discovery ---

// StrategyTokenIDs returns token IDs for active strategies with at least one
// pending step. The token ID is taken from the strategy row when present and
// otherwise resolved through the user's most recent transaction carrying the
// strategy's asset symbol (migration shim: older strategies never stored the
// token ID directly).
func (s *Store) StrategyTokenIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT COALESCE(st.token_id, (
			SELECT tx.token_id FROM transactions tx
			WHERE tx.user_id = st.user_id AND tx.symbol = st.asset_symbol
			      AND tx.token_id IS NOT NULL
			ORDER BY tx.executed_at DESC
			LIMIT 1
		)) AS token_id
		FROM strategies st
		WHERE st.status = 'active'
		  AND EXISTS (SELECT 1 FROM steps sp WHERE sp.strategy_id = st.id AND sp.state = 'pending')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTokenIDs(rows)
}

// StepAlertTokenIDs returns token IDs watched through step alerts whose
// parent strategy has an active strategy alert with email enabled.
func (s *Store) StepAlertTokenIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT tk.id
		FROM step_alerts sa
		JOIN steps sp ON sp.id = sa.step_id
		JOIN strategies st ON st.id = sp.strategy_id
		JOIN strategy_alerts ga ON ga.strategy_id = st.id AND ga.active AND ga.email_enabled
		JOIN tokens tk ON tk.symbol = st.asset_symbol
		WHERE sa.before_tp_enabled OR sa.tp_reached_enabled`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTokenIDs(rows)
}

// TPAlertTokenIDs returns token IDs watched through the legacy holding-based
// alert records.
func (s *Store) TPAlertTokenIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ta.token_id
		FROM tp_alerts tp
		JOIN token_alerts ta ON ta.id = tp.token_alert_id
		WHERE tp.before_tp_enabled OR tp.tp_reached_enabled`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTokenIDs(rows)
}

func scanTokenIDs(rows pgx.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id *string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if id != nil && *id != "" {
			ids = append(ids, *id)
		}
	}
	return ids, rows.Err()
}

// --- Alert rules ---

// RuleSource tags which alert hierarchy a rule row came from.
type RuleSource string

const (
	SourceStep    RuleSource = "step"
	SourceHolding RuleSource = "holding"
)

// AlertRule is the unified read model over step alerts and the legacy
// holding/TP alerts. Order is the 1-based rank of the step by ascending
// target price, recomputed on every read.
type AlertRule struct {
	Source     RuleSource
	AlertID    int64
	UserID     int64
	StepID     int64 // zero for holding rules
	StrategyID int64 // zero when the holding is not linked to a strategy
	Symbol     string
	Order      int

	TargetPrice  float64
	SellFraction float64

	BeforeTPEnabled bool
	BeforeTPPct     *float64
	BeforeTPSentAt  *time.Time

	TPReachedEnabled bool
	TPReachedSentAt  *time.Time
}

// ActiveRules loads every rule that may fire for a token: step alerts whose
// active strategy trades this symbol (with an active, email-enabled strategy
// alert), plus legacy TP alerts keyed by the holding's token ID.
func (s *Store) ActiveRules(ctx context.Context, tokenID, symbol string) ([]AlertRule, error) {
	var rules []AlertRule

	rows, err := s.pool.Query(ctx, `
		SELECT sa.id, st.user_id, sp.id, st.id, sp.target_price, sp.sell_fraction, sp.step_order,
		       sa.before_tp_enabled, sa.before_tp_pct, sa.before_tp_email_sent_at,
		       sa.tp_reached_enabled, sa.tp_reached_email_sent_at
		FROM (
			SELECT *, RANK() OVER (PARTITION BY strategy_id ORDER BY target_price ASC) AS step_order
			FROM steps
		) sp
		JOIN strategies st ON st.id = sp.strategy_id
		JOIN step_alerts sa ON sa.step_id = sp.id
		JOIN strategy_alerts ga ON ga.strategy_id = st.id AND ga.active AND ga.email_enabled
		WHERE st.asset_symbol = $1 AND st.status = 'active'`, symbol)
	if err != nil {
		return nil, fmt.Errorf("query step rules: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		r := AlertRule{Source: SourceStep, Symbol: symbol}
		if err := rows.Scan(&r.AlertID, &r.UserID, &r.StepID, &r.StrategyID,
			&r.TargetPrice, &r.SellFraction, &r.Order,
			&r.BeforeTPEnabled, &r.BeforeTPPct, &r.BeforeTPSentAt,
			&r.TPReachedEnabled, &r.TPReachedSentAt); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hrows, err := s.pool.Query(ctx, `
		SELECT tp.id, ta.user_id, COALESCE(ta.strategy_id, 0), tp.target_price,
		       RANK() OVER (PARTITION BY tp.token_alert_id ORDER BY tp.target_price ASC),
		       tp.before_tp_enabled, tp.before_tp_pct, tp.before_tp_email_sent_at,
		       tp.tp_reached_enabled, tp.tp_reached_email_sent_at
		FROM tp_alerts tp
		JOIN token_alerts ta ON ta.id = tp.token_alert_id
		WHERE ta.token_id = $1`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("query holding rules: %w", err)
	}
	defer hrows.Close()
	for hrows.Next() {
		r := AlertRule{Source: SourceHolding, Symbol: symbol}
		if err := hrows.Scan(&r.AlertID, &r.UserID, &r.StrategyID, &r.TargetPrice, &r.Order,
			&r.BeforeTPEnabled, &r.BeforeTPPct, &r.BeforeTPSentAt,
			&r.TPReachedEnabled, &r.TPReachedSentAt); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, hrows.Err()
}

// --- Sent markers ---

func ruleTable(source RuleSource) (string, error) {
	switch source {
	case SourceStep:
		return "step_alerts", nil
	case SourceHolding:
		return "tp_alerts", nil
	default:
		return "", fmt.Errorf("unknown rule source %q", source)
	}
}

func sentColumn(kind string) (string, error) {
	switch kind {
	case "beforeTP":
		return "before_tp_email_sent_at", nil
	case "tpReached":
		return "tp_reached_email_sent_at", nil
	default:
		return "", fmt.Errorf("unknown rule kind %q", kind)
	}
}

// RuleSentAt returns the permanent sent timestamp for one rule kind, nil
// when the rule has never fired. The bool reports whether the alert row
// still exists; a deleted alert is not an error.
func (s *Store) RuleSentAt(ctx context.Context, source RuleSource, alertID int64, kind string) (*time.Time, bool, error) {
	table, err := ruleTable(source)
	if err != nil {
		return nil, false, err
	}
	col, err := sentColumn(kind)
	if err != nil {
		return nil, false, err
	}
	var sentAt *time.Time
	err = s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, col, table), alertID).
		Scan(&sentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return sentAt, true, nil
}

// MarkRuleSent persists the permanent sent timestamp. The column is only
// ever set once; a concurrent writer that lost the race leaves the earlier
// timestamp in place.
func (s *Store) MarkRuleSent(ctx context.Context, source RuleSource, alertID int64, kind string, at time.Time) error {
	table, err := ruleTable(source)
	if err != nil {
		return err
	}
	col, err := sentColumn(kind)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = $2 WHERE id = $1 AND %s IS NULL`, table, col, col),
		alertID, at)
	return err
}

// AdvanceStepState moves a pending step to triggered once its target has
// been reached.
func (s *Store) AdvanceStepState(ctx context.Context, stepID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE steps SET state = 'triggered' WHERE id = $1 AND state = 'pending'`, stepID)
	return err
}

// --- Users ---

// UserEmail returns the user's address, or empty when the user row no
// longer exists.
func (s *Store) UserEmail(ctx context.Context, userID int64) (string, error) {
	var email string
	err := s.pool.QueryRow(ctx,
		`SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return email, err
}

// Pool exposes the underlying connection pool for use by other packages.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
