// Package scoring computes the Viral Score for a deal observation.
//
// The score is a gravity-decayed temperature-per-time metric (Hacker News
// style), shaped by an acceleration multiplier (second-derivative proxy
// from consecutive snapshots) and a traffic-of-day multiplier on the local
// hour in Mexico City. Pure functions over explicit inputs — no I/O.
package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/PaqoIbanez/promodescuentos-notifications/internal/config"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/store"
)

// hoursDamping is added to the age before applying gravity (~6 minutes).
// Damps division-by-near-zero so the first observation cannot dominate.
const hoursDamping = 0.1

// Input is the current observation of a deal.
type Input struct {
	Temperature float64 // current temperature, >= 0
	Hours       float64 // hours since published, >= 0
}

// Result is the full scoring breakdown for one observation.
type Result struct {
	ViralScore   float64
	Velocity     float64 // temperature per minute
	Acceleration float64
	Traffic      float64
	FinalScore   float64
	Rating       int // 0–4
}

// Engine scores observations. It carries only the traffic timezone so tests
// can inject a fixed location.
type Engine struct {
	loc *time.Location
}

// NewEngine loads the Mexico City timezone.
func NewEngine() (*Engine, error) {
	loc, err := time.LoadLocation(config.TrafficTimezone)
	if err != nil {
		return nil, fmt.Errorf("load traffic timezone: %w", err)
	}
	return &Engine{loc: loc}, nil
}

// NewEngineAt creates an Engine with an explicit location.
func NewEngineAt(loc *time.Location) *Engine {
	return &Engine{loc: loc}
}

// Score computes the full breakdown for one observation. prior may be nil
// (first sighting of the deal). Deterministic given inputs.
func (e *Engine) Score(in Input, prior *store.HistoryRow, now time.Time, p store.ScoringParams) Result {
	viral := ViralScore(in.Temperature, in.Hours, p.Gravity)
	velocity := velocityNow(in, prior, now)
	accel := Acceleration(velocity, prior)
	traffic := TrafficMultiplier(now.In(e.loc).Hour())
	final := viral * accel * traffic

	return Result{
		ViralScore:   viral,
		Velocity:     velocity,
		Acceleration: accel,
		Traffic:      traffic,
		FinalScore:   final,
		Rating:       Rating(final, p),
	}
}

// ViralScore applies gravity decay: (t - 1) / (h + 0.1)^g. A new item with
// a single vote scores zero; temperatures below 1 clamp to zero.
func ViralScore(temperature, hours, gravity float64) float64 {
	if temperature < 1 {
		return 0
	}
	return (temperature - 1) / math.Pow(hours+hoursDamping, gravity)
}

// velocityNow is the linear velocity in degrees per minute since the prior
// snapshot, or since publication when there is no prior.
func velocityNow(in Input, prior *store.HistoryRow, now time.Time) float64 {
	if prior == nil {
		return in.Temperature / math.Max(in.Hours*60, 1.0)
	}
	minutes := now.Sub(prior.ObservedAt).Minutes()
	return (in.Temperature - prior.Temperature) / math.Max(minutes, 1.0)
}

// Acceleration maps the velocity ratio to a multiplier: reward sustained
// acceleration, ignore small wiggles, penalize clear loss of traction.
func Acceleration(velocity float64, prior *store.HistoryRow) float64 {
	if prior == nil || prior.Velocity <= 0 {
		return 1.0
	}
	r := velocity / prior.Velocity
	switch {
	case r >= 2.0:
		return 2.0
	case r >= 1.0:
		return 1.0 + (r - 1.0)
	case r >= 0.5:
		return 1.0
	default:
		return 0.5
	}
}

// TrafficMultiplier shapes the score by local hour: boost the quiet early
// hours when few users are voting, dampen nothing during the daytime bulk.
func TrafficMultiplier(localHour int) float64 {
	switch {
	case localHour < 7:
		return 1.5
	case localHour < 9:
		return 1.2
	case localHour < 22:
		return 1.0
	default:
		return 1.3
	}
}

// Rating maps a final score to a discrete tier using the tuned cutoffs.
func Rating(finalScore float64, p store.ScoringParams) int {
	switch {
	case finalScore >= p.ScoreTier4:
		return 4
	case finalScore >= p.ScoreTier3:
		return 3
	case finalScore >= p.ScoreTier2:
		return 2
	case finalScore >= p.ViralThreshold:
		return 1
	default:
		return 0
	}
}
