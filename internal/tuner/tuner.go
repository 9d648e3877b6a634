// Package tuner recomputes the notification thresholds from historical
// outcomes. All heavy lifting happens in SQL — Postgres computes the
// percentiles, Go applies safeguards and writes the result back to
// system_config.
//
// Failures are non-fatal: the cycle keeps running on the previous config.
package tuner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"github.com/PaqoIbanez/promodescuentos-notifications/internal/store"
)

const (
	// winnerTemp is the "eventually successful" cutoff for threshold tuning.
	winnerTemp = 200.0
	// superWinnerTemp is the secondary success cutoff in the report.
	superWinnerTemp = 500.0

	// minWinners is the minimum number of qualifying deals for the
	// viral_threshold tuning, and the minimum number of early velocity
	// samples (history rows) for the legacy velocity percentiles.
	minWinners = 10

	// Safeguard clamp for viral_threshold.
	thresholdFloor = 10.0
	thresholdCeil  = 500.0

	// minLifetime excludes deals too young to have a settled outcome.
	minLifetime = 6 * time.Hour
)

// Checkpoints and temperature floors for the golden-ratio report.
var (
	checkpoints = []float64{0.25, 0.5, 1.0} // hours: 15 min, 30 min, 60 min
	tempFloors  = []float64{20, 30, 50}
)

// Tuner reads history and writes tuned parameters.
type Tuner struct {
	pool   *pgxpool.Pool
	params *store.Params
	logger *slog.Logger
}

// New creates a Tuner.
func New(pool *pgxpool.Pool, params *store.Params, logger *slog.Logger) *Tuner {
	return &Tuner{pool: pool, params: params, logger: logger}
}

// Start runs one tuning pass immediately, then repeats on the given
// interval. Blocks until ctx is cancelled. Intended to be called with `go`.
func (t *Tuner) Start(ctx context.Context, interval time.Duration) {
	if err := t.Run(ctx); err != nil {
		t.logger.Error("startup tuning failed", "error", err)
	}

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if err := t.Run(ctx); err != nil {
			t.logger.Error("scheduled tuning failed", "error", err)
		}
	})
	if err != nil {
		t.logger.Error("tuner schedule invalid", "interval", interval, "error", err)
		return
	}

	c.Start()
	t.logger.Info("AutoTuner scheduled", "interval", interval)
	<-ctx.Done()
	<-c.Stop().Done()
}

// Run executes one full tuning pass.
func (t *Tuner) Run(ctx context.Context) error {
	t.logger.Info("AutoTuner pass started")
	start := time.Now()

	if err := t.tuneViralThreshold(ctx); err != nil {
		return fmt.Errorf("tune viral threshold: %w", err)
	}
	if err := t.reportGoldenRatios(ctx); err != nil {
		return fmt.Errorf("golden-ratio report: %w", err)
	}
	if err := t.writeVelocityPercentiles(ctx); err != nil {
		return fmt.Errorf("velocity percentiles: %w", err)
	}

	t.logger.Info("AutoTuner pass finished", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// tuneViralThreshold sets viral_threshold to the 20th percentile of the
// earliest viral_score observed on deals that eventually reached the winner
// temperature — the minimum score that captures 80% of winners.
func (t *Tuner) tuneViralThreshold(ctx context.Context) error {
	var count int
	var p20 *float64
	err := t.pool.QueryRow(ctx, `
		WITH winners AS (
			SELECT deal_id
			FROM deal_history
			GROUP BY deal_id
			HAVING MAX(temperature) >= $1
			   AND MIN(observed_at) < NOW() - $2::interval
		),
		earliest AS (
			SELECT DISTINCT ON (deal_id) viral_score
			FROM deal_history
			WHERE deal_id IN (SELECT deal_id FROM winners)
			  AND viral_score > 0
			ORDER BY deal_id, observed_at ASC
		)
		SELECT COUNT(*), PERCENTILE_CONT(0.2) WITHIN GROUP (ORDER BY viral_score)
		FROM earliest`,
		winnerTemp, minLifetime.String(),
	).Scan(&count, &p20)
	if err != nil {
		return fmt.Errorf("earliest-score percentile: %w", err)
	}

	threshold, ok := SuggestThreshold(count, p20)
	if !ok {
		t.logger.Warn("not enough winners to tune viral_threshold, keeping config",
			"winners", count, "required", minWinners)
		return nil
	}

	if err := t.params.Set(ctx, store.KeyViralThreshold, threshold); err != nil {
		return err
	}
	t.logger.Info("viral_threshold tuned",
		"winners", count, "p20", *p20, "viral_threshold", threshold)
	return nil
}

// SuggestThreshold applies the sample-size requirement and the safeguard
// clamp. Returns false when the tuning must be skipped.
func SuggestThreshold(winners int, p20 *float64) (float64, bool) {
	if winners < minWinners || p20 == nil || *p20 <= 0 {
		return 0, false
	}
	v := *p20
	if v < thresholdFloor {
		v = thresholdFloor
	}
	if v > thresholdCeil {
		v = thresholdCeil
	}
	return v, true
}

// RatioCell is one (checkpoint, floor) entry of the golden-ratio report.
type RatioCell struct {
	CheckpointHours float64
	TempFloor       float64
	Qualified       int
	Reached200      int
	Reached500      int
}

// Ratio200 is P(eventually reaches 200° | temp >= floor at checkpoint).
func (c RatioCell) Ratio200() float64 { return ratio(c.Reached200, c.Qualified) }

// Ratio500 is the same for 500°.
func (c RatioCell) Ratio500() float64 { return ratio(c.Reached500, c.Qualified) }

func ratio(hits, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// reportGoldenRatios logs, for each checkpoint × floor, the probability
// that a deal already at that temperature goes on to win. Informational:
// the values are reported but never applied as gates.
func (t *Tuner) reportGoldenRatios(ctx context.Context) error {
	for _, checkpoint := range checkpoints {
		for _, floor := range tempFloors {
			cell, err := t.goldenRatioCell(ctx, checkpoint, floor)
			if err != nil {
				return err
			}
			t.logger.Info("golden-ratio",
				"checkpoint_min", int(checkpoint*60),
				"temp_floor", floor,
				"qualified", cell.Qualified,
				"reached_200", cell.Reached200,
				"reached_500", cell.Reached500,
				"ratio_200", fmt.Sprintf("%.3f", cell.Ratio200()),
				"ratio_500", fmt.Sprintf("%.3f", cell.Ratio500()))
		}
	}
	return nil
}

func (t *Tuner) goldenRatioCell(ctx context.Context, checkpointHours, tempFloor float64) (RatioCell, error) {
	cell := RatioCell{CheckpointHours: checkpointHours, TempFloor: tempFloor}
	err := t.pool.QueryRow(ctx, `
		WITH qualified AS (
			SELECT DISTINCT deal_id
			FROM deal_history
			WHERE hours_since_published <= $1 AND temperature >= $2
		),
		outcomes AS (
			SELECT h.deal_id, MAX(h.temperature) AS max_temp
			FROM deal_history h
			JOIN qualified q ON q.deal_id = h.deal_id
			GROUP BY h.deal_id
			HAVING MIN(h.observed_at) < NOW() - $3::interval
		)
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE max_temp >= $4),
		       COUNT(*) FILTER (WHERE max_temp >= $5)
		FROM outcomes`,
		checkpointHours, tempFloor, minLifetime.String(), winnerTemp, superWinnerTemp,
	).Scan(&cell.Qualified, &cell.Reached200, &cell.Reached500)
	if err != nil {
		return cell, fmt.Errorf("ratio cell %.2fh/%.0f°: %w", checkpointHours, tempFloor, err)
	}
	return cell, nil
}

// writeVelocityPercentiles persists the legacy linear-velocity percentiles
// of winners' early observations. The scorer does not read these; they are
// retained for external consumers of system_config.
func (t *Tuner) writeVelocityPercentiles(ctx context.Context) error {
	var count int
	var p50, p80, p95 *float64
	err := t.pool.QueryRow(ctx, `
		WITH winners AS (
			SELECT deal_id FROM deal_history
			GROUP BY deal_id
			HAVING MAX(temperature) >= $1
		)
		SELECT COUNT(*),
		       PERCENTILE_CONT(0.50) WITHIN GROUP (ORDER BY velocity),
		       PERCENTILE_CONT(0.80) WITHIN GROUP (ORDER BY velocity),
		       PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY velocity)
		FROM deal_history
		WHERE deal_id IN (SELECT deal_id FROM winners)
		  AND hours_since_published <= 0.5
		  AND velocity > 0`,
		winnerTemp,
	).Scan(&count, &p50, &p80, &p95)
	if err != nil {
		return fmt.Errorf("velocity percentiles: %w", err)
	}

	if count < minWinners || p50 == nil || p80 == nil || p95 == nil {
		t.logger.Warn("not enough early velocity samples, keeping legacy percentiles", "samples", count)
		return nil
	}

	values := map[string]float64{
		store.KeyVelocityP50: *p50,
		store.KeyVelocityP80: *p80,
		store.KeyVelocityP95: *p95,
	}
	if err := t.params.SetBulk(ctx, values); err != nil {
		return err
	}
	t.logger.Info("legacy velocity percentiles updated",
		"samples", count, "p50", *p50, "p80", *p80, "p95", *p95)
	return nil
}
