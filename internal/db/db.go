// Package db provides a pgxpool-based connection pool with prepared statement
// registration, schema bootstrap, and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PaqoIbanez/promodescuentos-notifications/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers the statements the cycle loop issues
// on every iteration. Prepared statements eliminate parse overhead on the
// hot per-deal path.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Cycle loop: prior snapshot per deal
		"prior_snapshot": `
			SELECT h.id, h.deal_id, h.observed_at, h.temperature,
			       h.hours_since_published, h.velocity, h.viral_score, h.final_score
			FROM deal_history h
			WHERE h.deal_id = $1 AND h.observed_at < $2
			ORDER BY h.observed_at DESC
			LIMIT 1`,

		// Cycle loop: latest snapshots for a batch of URLs
		"prior_snapshots_batch": `
			SELECT DISTINCT ON (d.url)
			       d.url, h.id, h.deal_id, h.observed_at, h.temperature,
			       h.hours_since_published, h.velocity, h.viral_score, h.final_score
			FROM deals d
			JOIN deal_history h ON h.deal_id = d.id
			WHERE d.url = ANY($1)
			ORDER BY d.url, h.observed_at DESC`,

		// Gate: progressive-rating reads
		"max_rating_by_id": "SELECT max_rating_notified FROM deals WHERE id = $1",

		// Config read-through
		"config_get": "SELECT value FROM system_config WHERE key = $1",

		// Subscribers
		"subscribers_all": "SELECT chat_id FROM subscribers",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %s: %w", name, err)
		}
	}
	return nil
}
