// Package gate decides whether a scored deal is worth a notification.
//
// Filters run in a fixed order: expired, under-seed, below threshold,
// already notified at this tier. The progressive filter keeps the pipeline
// non-spammy: a deal that sits in the same tier for many cycles notifies
// exactly once, while tier upgrades still go out.
package gate

import (
	"context"
	"fmt"

	"github.com/PaqoIbanez/promodescuentos-notifications/internal/scoring"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/store"
)

// Reason explains why a deal was dropped.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonExpired         Reason = "expired"
	ReasonUnderSeed       Reason = "under_seed_temp"
	ReasonBelowThreshold  Reason = "below_threshold"
	ReasonAlreadyNotified Reason = "already_notified"
)

// Decision is the gate outcome for one scored deal.
type Decision struct {
	Notify bool
	Reason Reason
	Rating int
}

// MaxRatingReader is the single store capability the gate needs.
type MaxRatingReader interface {
	MaxRating(ctx context.Context, dealID int64) (int, error)
}

// Gate applies the notification filters.
type Gate struct {
	ratings MaxRatingReader
}

// New creates a Gate over the given rating reader.
func New(ratings MaxRatingReader) *Gate {
	return &Gate{ratings: ratings}
}

// Evaluate runs the filter chain for one freshly scored deal. The history
// row is persisted by the caller regardless of the outcome here.
func (g *Gate) Evaluate(ctx context.Context, dealID int64, raw store.RawDeal, res scoring.Result, p store.ScoringParams) (Decision, error) {
	if raw.Expired {
		return Decision{Reason: ReasonExpired, Rating: res.Rating}, nil
	}
	if raw.Temperature < p.MinSeedTemp {
		return Decision{Reason: ReasonUnderSeed, Rating: res.Rating}, nil
	}
	if res.Rating == 0 {
		return Decision{Reason: ReasonBelowThreshold}, nil
	}

	maxRating, err := g.ratings.MaxRating(ctx, dealID)
	if err != nil {
		return Decision{}, fmt.Errorf("read max rating: %w", err)
	}
	if res.Rating <= maxRating {
		return Decision{Reason: ReasonAlreadyNotified, Rating: res.Rating}, nil
	}

	return Decision{Notify: true, Rating: res.Rating}, nil
}
