package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// schemaStatements create all tables and indexes owned by this service.
// Every statement is idempotent so InitSchema can run on every startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS deals (
		id                  BIGSERIAL PRIMARY KEY,
		url                 TEXT UNIQUE NOT NULL,
		title               TEXT,
		merchant            TEXT,
		image_url           TEXT,
		price               TEXT,
		discount            TEXT,
		coupon              TEXT,
		description         TEXT,
		published_at        TIMESTAMPTZ,
		expired             BOOLEAN NOT NULL DEFAULT FALSE,
		max_rating_notified INT NOT NULL DEFAULT 0,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS deal_history (
		id                    BIGSERIAL PRIMARY KEY,
		deal_id               BIGINT NOT NULL REFERENCES deals(id) ON DELETE CASCADE,
		observed_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		temperature           DOUBLE PRECISION NOT NULL DEFAULT 0,
		hours_since_published DOUBLE PRECISION NOT NULL DEFAULT 0,
		velocity              DOUBLE PRECISION NOT NULL DEFAULT 0,
		viral_score           DOUBLE PRECISION NOT NULL DEFAULT 0,
		final_score           DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS system_config (
		key        TEXT PRIMARY KEY,
		value      DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS subscribers (
		chat_id    BIGINT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_deal_history_deal_observed
		ON deal_history (deal_id, observed_at DESC)`,

	`CREATE INDEX IF NOT EXISTS idx_deal_history_deal_hours
		ON deal_history (deal_id, hours_since_published)`,

	`CREATE INDEX IF NOT EXISTS idx_deals_created ON deals (created_at)`,
}

// InitSchema creates tables and indexes if they do not exist, and seeds the
// default scoring parameters (ON CONFLICT DO NOTHING, so tuned values are
// never overwritten). Runs over its own plain connection: it must finish
// before the pool opens, because the pool prepares statements against these
// tables on every new connection.
func InitSchema(ctx context.Context, databaseURL string, seedConfig map[string]float64) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect for schema init: %w", err)
	}
	defer conn.Close(ctx)

	for _, stmt := range schemaStatements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	for key, val := range seedConfig {
		_, err := conn.Exec(ctx, `
			INSERT INTO system_config (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO NOTHING`, key, val)
		if err != nil {
			return fmt.Errorf("seed config %s: %w", key, err)
		}
	}
	return nil
}
