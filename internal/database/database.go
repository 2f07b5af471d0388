// Package database owns the Postgres connection pool and schema for the
// durable stores: sessions, bet locks, wallet ledger entries, and
// settlement markers.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Schema is applied on startup. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS wallets (
	user_id     UUID PRIMARY KEY,
	balance     BIGINT NOT NULL DEFAULT 0,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS wallet_entries (
	id            UUID PRIMARY KEY,
	wallet_id     UUID NOT NULL,
	amount        BIGINT NOT NULL,
	entry_type    TEXT NOT NULL,
	session_id    UUID,
	balance_after BIGINT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_wallet_entries_wallet ON wallet_entries (wallet_id, created_at DESC);

CREATE TABLE IF NOT EXISTS bet_locks (
	id         UUID PRIMARY KEY,
	session_id UUID NOT NULL,
	user_id    UUID NOT NULL,
	amount     BIGINT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_bet_locks_session ON bet_locks (session_id);

CREATE TABLE IF NOT EXISTS settlements (
	session_id UUID PRIMARY KEY,
	house_fee  BIGINT NOT NULL,
	payouts    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	id            UUID PRIMARY KEY,
	game_type     TEXT NOT NULL,
	status        TEXT NOT NULL,
	players       UUID[] NOT NULL,
	bet_amount    BIGINT NOT NULL,
	turn_index    INT NOT NULL DEFAULT 0,
	turn_deadline TIMESTAMPTZ,
	winner_idx    INT,
	end_reason    TEXT NOT NULL DEFAULT '',
	settled       BOOLEAN NOT NULL DEFAULT false,
	rule_state    BYTEA NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions (status);
`

// Connect opens a pool against dsn and applies the schema.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	logrus.Info("database: connected and schema applied")
	return pool, nil
}
