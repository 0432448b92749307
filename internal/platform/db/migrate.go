package db

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGINT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		first_seen_at TIMESTAMPTZ NOT NULL,
		balance BIGINT NOT NULL DEFAULT 0,
		referral_count BIGINT NOT NULL DEFAULT 0,
		referred_by BIGINT NULL,
		payout_address TEXT NOT NULL DEFAULT '',
		ads_watched_today INTEGER NOT NULL DEFAULT 0,
		last_ad_at TIMESTAMPTZ NULL,
		last_counter_reset_at TIMESTAMPTZ NOT NULL,
		has_confirmed_membership BOOLEAN NOT NULL DEFAULT FALSE,
		last_active_at TIMESTAMPTZ NOT NULL,
		version BIGINT NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_last_active_at ON accounts (last_active_at)`,
	`CREATE TABLE IF NOT EXISTS payouts (
		id UUID PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts (id),
		amount BIGINT NOT NULL,
		payout_address TEXT NOT NULL,
		requested_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payouts_account_id ON payouts (account_id, requested_at DESC)`,
	`CREATE TABLE IF NOT EXISTS bot_settings (
		key TEXT PRIMARY KEY,
		value JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the tables used by the account store.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return nil
}
