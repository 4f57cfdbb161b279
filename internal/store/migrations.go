package store

import "context"

const migrationSQL = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tokens (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_tokens_symbol ON tokens(symbol);

CREATE TABLE IF NOT EXISTS transactions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    symbol TEXT NOT NULL,
    token_id TEXT REFERENCES tokens(id),
    quantity NUMERIC NOT NULL DEFAULT 0,
    executed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transactions_user_symbol ON transactions(user_id, symbol, executed_at DESC);

CREATE TABLE IF NOT EXISTS strategies (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    asset_symbol TEXT NOT NULL,
    token_id TEXT REFERENCES tokens(id),
    status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'paused', 'completed')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_strategies_symbol ON strategies(asset_symbol) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS steps (
    id BIGSERIAL PRIMARY KEY,
    strategy_id BIGINT NOT NULL REFERENCES strategies(id) ON DELETE CASCADE,
    target_price NUMERIC NOT NULL,
    sell_fraction NUMERIC NOT NULL DEFAULT 0,
    state TEXT NOT NULL DEFAULT 'pending' CHECK (state IN ('pending', 'triggered', 'done')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_steps_strategy ON steps(strategy_id);

CREATE TABLE IF NOT EXISTS strategy_alerts (
    id BIGSERIAL PRIMARY KEY,
    strategy_id BIGINT NOT NULL UNIQUE REFERENCES strategies(id) ON DELETE CASCADE,
    active BOOLEAN NOT NULL DEFAULT true,
    email_enabled BOOLEAN NOT NULL DEFAULT true,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS step_alerts (
    id BIGSERIAL PRIMARY KEY,
    step_id BIGINT NOT NULL UNIQUE REFERENCES steps(id) ON DELETE CASCADE,
    before_tp_enabled BOOLEAN NOT NULL DEFAULT false,
    before_tp_pct DOUBLE PRECISION,
    before_tp_email_sent_at TIMESTAMPTZ,
    tp_reached_enabled BOOLEAN NOT NULL DEFAULT false,
    tp_reached_email_sent_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- Legacy holding-based alerts, kept in parallel with step alerts.
CREATE TABLE IF NOT EXISTS token_alerts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    token_id TEXT NOT NULL REFERENCES tokens(id),
    strategy_id BIGINT REFERENCES strategies(id) ON DELETE SET NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_token_alerts_token ON token_alerts(token_id);

CREATE TABLE IF NOT EXISTS tp_alerts (
    id BIGSERIAL PRIMARY KEY,
    token_alert_id BIGINT NOT NULL REFERENCES token_alerts(id) ON DELETE CASCADE,
    target_price NUMERIC NOT NULL,
    before_tp_enabled BOOLEAN NOT NULL DEFAULT false,
    before_tp_pct DOUBLE PRECISION,
    before_tp_email_sent_at TIMESTAMPTZ,
    tp_reached_enabled BOOLEAN NOT NULL DEFAULT false,
    tp_reached_email_sent_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migrationSQL)
	return err
}
