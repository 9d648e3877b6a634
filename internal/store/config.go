package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Recognized system_config keys.
const (
	KeyViralThreshold = "viral_threshold"
	KeyMinSeedTemp    = "min_seed_temp"
	KeyGravity        = "gravity"
	KeyScoreTier4     = "score_tier_4"
	KeyScoreTier3     = "score_tier_3"
	KeyScoreTier2     = "score_tier_2"

	// Legacy linear-velocity percentiles, written by the tuner for external
	// consumers. The scorer does not read them.
	KeyVelocityP50 = "velocity_p50"
	KeyVelocityP80 = "velocity_p80"
	KeyVelocityP95 = "velocity_p95"
)

// Defaults are the seed values for every recognized key. Reads fall back
// here whenever a key is missing, so a wiped config table is never fatal.
var Defaults = map[string]float64{
	KeyViralThreshold: 50.0,
	KeyMinSeedTemp:    15.0,
	KeyGravity:        1.2,
	KeyScoreTier4:     500.0,
	KeyScoreTier3:     200.0,
	KeyScoreTier2:     100.0,
}

// Params is the read-through accessor over system_config. Every read hits
// the database — the parameters are few and single-digit, and the cycle
// must pick up tuner writes without restart.
type Params struct {
	pool *pgxpool.Pool
}

// NewParams creates a Params accessor.
func NewParams(pool *pgxpool.Pool) *Params {
	return &Params{pool: pool}
}

// Get returns the stored value for key, or the seed default when the key is
// missing or unreadable.
func (p *Params) Get(ctx context.Context, key string) float64 {
	var value float64
	err := p.pool.QueryRow(ctx, "config_get", key).Scan(&value)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			slog.Warn("config read failed, using default", "key", key, "error", err)
		}
		return Defaults[key]
	}
	return value
}

// Set upserts a single parameter.
func (p *Params) Set(ctx context.Context, key string, value float64) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO system_config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

// SetBulk upserts several parameters in one transaction.
func (p *Params) SetBulk(ctx context.Context, values map[string]float64) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin config tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for key, value := range values {
		_, err := tx.Exec(ctx, `
			INSERT INTO system_config (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			key, value,
		)
		if err != nil {
			return fmt.Errorf("set config %s: %w", key, err)
		}
	}
	return tx.Commit(ctx)
}

// All returns every stored parameter. Unknown keys are included untouched.
func (p *Params) All(ctx context.Context) (map[string]float64, error) {
	rows, err := p.pool.Query(ctx, "SELECT key, value FROM system_config ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list config: %w", err)
	}
	defer rows.Close()

	values := make(map[string]float64)
	for rows.Next() {
		var key string
		var value float64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan config row: %w", err)
		}
		values[key] = value
	}
	return values, rows.Err()
}

// Scoring reads the full parameter set the scorer and gate need for one
// cycle. One read per cycle, never cached longer.
func (p *Params) Scoring(ctx context.Context) ScoringParams {
	return ScoringParams{
		ViralThreshold: p.Get(ctx, KeyViralThreshold),
		MinSeedTemp:    p.Get(ctx, KeyMinSeedTemp),
		Gravity:        p.Get(ctx, KeyGravity),
		ScoreTier4:     p.Get(ctx, KeyScoreTier4),
		ScoreTier3:     p.Get(ctx, KeyScoreTier3),
		ScoreTier2:     p.Get(ctx, KeyScoreTier2),
	}
}

// ScoringParams is the snapshot of tunable parameters used for one cycle.
type ScoringParams struct {
	ViralThreshold float64
	MinSeedTemp    float64
	Gravity        float64
	ScoreTier4     float64
	ScoreTier3     float64
	ScoreTier2     float64
}

// DefaultScoringParams returns the seed defaults as a ScoringParams.
func DefaultScoringParams() ScoringParams {
	return ScoringParams{
		ViralThreshold: Defaults[KeyViralThreshold],
		MinSeedTemp:    Defaults[KeyMinSeedTemp],
		Gravity:        Defaults[KeyGravity],
		ScoreTier4:     Defaults[KeyScoreTier4],
		ScoreTier3:     Defaults[KeyScoreTier3],
		ScoreTier2:     Defaults[KeyScoreTier2],
	}
}
