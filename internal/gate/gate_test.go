package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaqoIbanez/promodescuentos-notifications/internal/scoring"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/store"
)

type fakeRatings struct {
	ratings map[int64]int
	err     error
	reads   int
}

func (f *fakeRatings) MaxRating(ctx context.Context, dealID int64) (int, error) {
	f.reads++
	if f.err != nil {
		return 0, f.err
	}
	return f.ratings[dealID], nil
}

func hotDeal(temp float64) store.RawDeal {
	return store.RawDeal{URL: "https://www.promodescuentos.com/ofertas/x-1", Temperature: temp}
}

func params() store.ScoringParams {
	return store.DefaultScoringParams()
}

func TestEvaluate_ExpiredDropsFirst(t *testing.T) {
	ratings := &fakeRatings{}
	g := New(ratings)

	deal := hotDeal(400)
	deal.Expired = true
	dec, err := g.Evaluate(context.Background(), 1, deal, scoring.Result{Rating: 4}, params())

	require.NoError(t, err)
	assert.False(t, dec.Notify)
	assert.Equal(t, ReasonExpired, dec.Reason)
	assert.Zero(t, ratings.reads, "expired deals never hit the store")
}

func TestEvaluate_SeedFilterBoundary(t *testing.T) {
	g := New(&fakeRatings{})

	dec, err := g.Evaluate(context.Background(), 1, hotDeal(14.999), scoring.Result{Rating: 2}, params())
	require.NoError(t, err)
	assert.Equal(t, ReasonUnderSeed, dec.Reason)

	dec, err = g.Evaluate(context.Background(), 1, hotDeal(15), scoring.Result{Rating: 2}, params())
	require.NoError(t, err)
	assert.True(t, dec.Notify)
}

func TestEvaluate_BelowThreshold(t *testing.T) {
	ratings := &fakeRatings{}
	g := New(ratings)

	dec, err := g.Evaluate(context.Background(), 1, hotDeal(30), scoring.Result{Rating: 0}, params())
	require.NoError(t, err)
	assert.Equal(t, ReasonBelowThreshold, dec.Reason)
	assert.Zero(t, ratings.reads)
}

func TestEvaluate_ProgressiveGate(t *testing.T) {
	ratings := &fakeRatings{ratings: map[int64]int{7: 2}}
	g := New(ratings)

	// Same tier as already notified → silent.
	dec, err := g.Evaluate(context.Background(), 7, hotDeal(120), scoring.Result{Rating: 2}, params())
	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyNotified, dec.Reason)

	// Lower tier → silent.
	dec, err = g.Evaluate(context.Background(), 7, hotDeal(120), scoring.Result{Rating: 1}, params())
	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyNotified, dec.Reason)

	// Upgrade → notify.
	dec, err = g.Evaluate(context.Background(), 7, hotDeal(300), scoring.Result{Rating: 3}, params())
	require.NoError(t, err)
	assert.True(t, dec.Notify)
	assert.Equal(t, 3, dec.Rating)
}

// A deal that sits in the same tier for many cycles notifies exactly once.
func TestEvaluate_AntiSpamAcrossCycles(t *testing.T) {
	ratings := &fakeRatings{ratings: map[int64]int{}}
	g := New(ratings)

	notifications := 0
	for cycle := 0; cycle < 8; cycle++ {
		dec, err := g.Evaluate(context.Background(), 9, hotDeal(150), scoring.Result{Rating: 2}, params())
		require.NoError(t, err)
		if dec.Notify {
			notifications++
			// The orchestrator records the rating after a successful fan-out.
			ratings.ratings[9] = dec.Rating
		}
	}
	assert.Equal(t, 1, notifications)
}

func TestEvaluate_StoreErrorSurfaces(t *testing.T) {
	g := New(&fakeRatings{err: errors.New("connection reset")})

	_, err := g.Evaluate(context.Background(), 1, hotDeal(100), scoring.Result{Rating: 2}, params())
	assert.Error(t, err)
}
