package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaqoIbanez/promodescuentos-notifications/internal/store"
)

func defaultParams() store.ScoringParams {
	return store.DefaultScoringParams()
}

// fixedEngine scores in UTC so the traffic hour equals the test time's hour.
func fixedEngine() *Engine {
	return NewEngineAt(time.UTC)
}

func at(hour, min, sec int) time.Time {
	return time.Date(2025, 3, 10, hour, min, sec, 0, time.UTC)
}

func TestViralScore_GravityDecay(t *testing.T) {
	// Single-vote items score zero regardless of age.
	assert.Zero(t, ViralScore(1, 0, 1.2))
	assert.Zero(t, ViralScore(1, 5, 1.2))

	// Below one degree clamps to zero.
	assert.Zero(t, ViralScore(0.999, 0.5, 1.2))
	assert.Zero(t, ViralScore(0, 0, 1.2))

	// Young and hot beats old and hot.
	young := ViralScore(100, 0.25, 1.2)
	old := ViralScore(100, 5, 1.2)
	assert.Greater(t, young, old)
}

func TestScore_EarlyWinner(t *testing.T) {
	// t=50 ten minutes after posting, daytime, no prior.
	res := fixedEngine().Score(Input{Temperature: 50, Hours: 1.0 / 6.0}, nil, at(14, 0, 0), defaultParams())

	assert.InDelta(t, 239.4, res.ViralScore, 0.5)
	assert.Equal(t, 1.0, res.Acceleration)
	assert.Equal(t, 1.0, res.Traffic)
	assert.InDelta(t, 239.4, res.FinalScore, 0.5)
	assert.Equal(t, 3, res.Rating)
}

func TestScore_LateNormal(t *testing.T) {
	res := fixedEngine().Score(Input{Temperature: 100, Hours: 50.0 / 60.0}, nil, at(14, 0, 0), defaultParams())

	assert.InDelta(t, 107.5, res.ViralScore, 0.5)
	assert.Equal(t, 2, res.Rating)
}

func TestScore_NightBonus(t *testing.T) {
	res := fixedEngine().Score(Input{Temperature: 30, Hours: 5.0 / 60.0}, nil, at(4, 0, 0), defaultParams())

	assert.InDelta(t, 222.1, res.ViralScore, 0.5)
	assert.Equal(t, 1.5, res.Traffic)
	assert.InDelta(t, 333.1, res.FinalScore, 0.8)
	assert.Equal(t, 3, res.Rating)
}

func TestScore_AcceleratingDeal(t *testing.T) {
	now := at(14, 0, 0)
	prior := &store.HistoryRow{
		ObservedAt:  now.Add(-15 * time.Minute),
		Temperature: 20,
		Velocity:    1.0,
	}

	res := fixedEngine().Score(Input{Temperature: 50, Hours: 0.5}, prior, now, defaultParams())

	// velocity_now = (50-20)/15 = 2.0, ratio = 2.0 → doubled.
	assert.InDelta(t, 2.0, res.Velocity, 1e-9)
	assert.Equal(t, 2.0, res.Acceleration)
	assert.Equal(t, 2*res.ViralScore, res.FinalScore)
}

func TestVelocity_NoPriorUsesPublication(t *testing.T) {
	// t=10 one minute after posting → 10°/min.
	res := fixedEngine().Score(Input{Temperature: 10, Hours: 1.0 / 60.0}, nil, at(14, 0, 0), defaultParams())
	assert.InDelta(t, 10.0, res.Velocity, 1e-9)

	// Under a minute clamps the divisor to one minute.
	res = fixedEngine().Score(Input{Temperature: 10, Hours: 0}, nil, at(14, 0, 0), defaultParams())
	assert.InDelta(t, 10.0, res.Velocity, 1e-9)
}

func TestAcceleration_Piecewise(t *testing.T) {
	prior := func(v float64) *store.HistoryRow { return &store.HistoryRow{Velocity: v} }

	tests := []struct {
		name     string
		velocity float64
		prior    *store.HistoryRow
		want     float64
	}{
		{"no prior", 5, nil, 1.0},
		{"prior stalled", 5, prior(0), 1.0},
		{"prior falling", 5, prior(-1), 1.0},
		{"doubled", 2.0, prior(1.0), 2.0},
		{"more than doubled", 5.0, prior(1.0), 2.0},
		{"one and a half", 1.5, prior(1.0), 1.5},
		{"steady", 1.0, prior(1.0), 1.0},
		{"small wiggle", 0.75, prior(1.0), 1.0},
		{"half exactly", 0.5, prior(1.0), 1.0},
		{"lost traction", 0.49, prior(1.0), 0.5},
		{"went negative", -0.2, prior(1.0), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Acceleration(tt.velocity, tt.prior))
		})
	}
}

func TestTrafficMultiplier_HourBoundaries(t *testing.T) {
	tests := []struct {
		hour int
		want float64
	}{
		{0, 1.5}, {6, 1.5},
		{7, 1.2}, {8, 1.2},
		{9, 1.0}, {14, 1.0}, {21, 1.0},
		{22, 1.3}, {23, 1.3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TrafficMultiplier(tt.hour), "hour %d", tt.hour)
	}
}

func TestScore_TrafficTransitionAtSeven(t *testing.T) {
	in := Input{Temperature: 40, Hours: 0.5}

	before := fixedEngine().Score(in, nil, at(6, 59, 59), defaultParams())
	after := fixedEngine().Score(in, nil, at(7, 0, 0), defaultParams())

	assert.Equal(t, 1.5, before.Traffic)
	assert.Equal(t, 1.2, after.Traffic)
}

func TestRating_Tiers(t *testing.T) {
	p := defaultParams()

	assert.Equal(t, 0, Rating(49.999, p))
	assert.Equal(t, 1, Rating(50, p))
	assert.Equal(t, 2, Rating(100, p))
	assert.Equal(t, 3, Rating(200, p))
	assert.Equal(t, 4, Rating(500, p))
	assert.Equal(t, 4, Rating(10000, p))
}

func TestScore_Deterministic(t *testing.T) {
	engine := fixedEngine()
	now := at(10, 30, 0)
	prior := &store.HistoryRow{ObservedAt: now.Add(-8 * time.Minute), Temperature: 25, Velocity: 0.8}
	in := Input{Temperature: 60, Hours: 0.4}

	first := engine.Score(in, prior, now, defaultParams())
	for i := 0; i < 10; i++ {
		require.Equal(t, first, engine.Score(in, prior, now, defaultParams()))
	}
}

func TestScore_TimezoneBucketing(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	// 10:00 UTC is 04:00 in Mexico City (CST, UTC-6) → night bonus.
	res := engine.Score(Input{Temperature: 40, Hours: 1}, nil, at(10, 0, 0), defaultParams())
	assert.Equal(t, 1.5, res.Traffic)
}
