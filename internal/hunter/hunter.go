// Package hunter drives the observation cycle: scrape the newest listing
// page, persist a snapshot per deal, score it, gate it, and fan out
// notifications for the winners.
//
// One cycle every 5–12 minutes (uniform jitter). Per-deal work runs on a
// bounded worker pool; the whole cycle has a soft deadline after which
// queued work is abandoned rather than overlapping the next cycle.
package hunter

import (
	"context"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/PaqoIbanez/promodescuentos-notifications/internal/config"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/gate"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/notify"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/scoring"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/scraper"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/store"
)

// maxConsecutiveFailures is how many failed cycles in a row trigger the
// operator alert log.
const maxConsecutiveFailures = 3

// Store is the persistence capability the cycle loop needs.
type Store interface {
	SaveObservation(ctx context.Context, raw store.RawDeal, obs store.Observation) (int64, error)
	PriorSnapshots(ctx context.Context, urls []string) (map[string]store.HistoryRow, error)
	MaxRating(ctx context.Context, dealID int64) (int, error)
	UpdateMaxRating(ctx context.Context, dealID int64, rating int) error
}

// SubscriberRegistry lists the fan-out recipients.
type SubscriberRegistry interface {
	List(ctx context.Context) ([]int64, error)
}

// Hunter owns the main observation loop.
type Hunter struct {
	cfg        *config.Config
	scraper    scraper.Scraper
	store      Store
	params     *store.Params
	subs       SubscriberRegistry
	engine     *scoring.Engine
	gate       *gate.Gate
	dispatcher *notify.Dispatcher
	logger     *slog.Logger

	lastCycleUnix atomic.Int64
	cycles        atomic.Int64
	notified      atomic.Int64
}

// New wires the cycle loop from its capabilities.
func New(
	cfg *config.Config,
	sc scraper.Scraper,
	st Store,
	params *store.Params,
	subs SubscriberRegistry,
	engine *scoring.Engine,
	dispatcher *notify.Dispatcher,
	logger *slog.Logger,
) *Hunter {
	return &Hunter{
		cfg:        cfg,
		scraper:    sc,
		store:      st,
		params:     params,
		subs:       subs,
		engine:     engine,
		gate:       gate.New(st),
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Run executes cycles until ctx is cancelled. The first cycle starts
// immediately. Blocks; intended to be called with `go` or as the
// foreground task of main.
func (h *Hunter) Run(ctx context.Context) {
	h.logger.Info("hunter loop started",
		"min_wait", h.cfg.CycleMinWait, "max_wait", h.cfg.CycleMaxWait)

	failures := 0
	for {
		cycleStart := time.Now()

		if err := h.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			failures++
			h.logger.Error("cycle failed", "consecutive", failures, "error", err)
			if failures >= maxConsecutiveFailures {
				h.logger.Error("ALERT: repeated cycle failures, service is not observing",
					"consecutive", failures)
			}
		} else {
			failures = 0
			h.lastCycleUnix.Store(time.Now().Unix())
			h.cycles.Add(1)
		}

		if !h.sleepUntilNext(ctx, cycleStart) {
			break
		}
	}
	h.logger.Info("hunter loop stopped")
}

// sleepUntilNext waits a uniform random interval measured from the last
// cycle's start. Returns false when ctx was cancelled.
func (h *Hunter) sleepUntilNext(ctx context.Context, cycleStart time.Time) bool {
	wait := nextWait(h.cfg.CycleMinWait, h.cfg.CycleMaxWait) - time.Since(cycleStart)
	if wait <= 0 {
		return ctx.Err() == nil
	}

	h.logger.Info("sleeping until next cycle", "wait", wait.Round(time.Second))
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// nextWait draws a uniform random interval in [min, max).
func nextWait(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// LastCycle reports when the last successful cycle finished. Zero time
// before the first one.
func (h *Hunter) LastCycle() time.Time {
	unix := h.lastCycleUnix.Load()
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

// Stats is a snapshot of loop counters for the status endpoint.
type Stats struct {
	Cycles    int64     `json:"cycles"`
	Notified  int64     `json:"notified"`
	LastCycle time.Time `json:"last_cycle"`
}

// Stats returns the current counters.
func (h *Hunter) Stats() Stats {
	return Stats{
		Cycles:    h.cycles.Load(),
		Notified:  h.notified.Load(),
		LastCycle: h.LastCycle(),
	}
}
