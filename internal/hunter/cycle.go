package hunter

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/PaqoIbanez/promodescuentos-notifications/internal/notify"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/scoring"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/store"
)

// candidate is a deal that passed the gate this cycle and is waiting for
// fan-out.
type candidate struct {
	dealID int64
	raw    store.RawDeal
	hours  float64
	result scoring.Result
}

// runCycle performs one full observation pass.
func (h *Hunter) runCycle(ctx context.Context) error {
	start := time.Now()

	// Soft deadline: work not started by then is abandoned, transactions
	// already begun are never aborted (see saveObservation).
	cycleCtx, cancel := context.WithTimeout(ctx, h.cfg.CycleDeadline)
	defer cancel()

	// Parameters are re-read once per cycle so tuner writes take effect
	// without restart.
	params := h.params.Scoring(cycleCtx)

	scrapeCtx, scrapeCancel := context.WithTimeout(cycleCtx, h.cfg.ScrapeTimeout)
	deals, err := h.scraper.FetchNewest(scrapeCtx)
	scrapeCancel()
	if err != nil {
		return fmt.Errorf("scrape: %w", err)
	}

	urls := make([]string, 0, len(deals))
	for _, d := range deals {
		if d.URL != "" {
			urls = append(urls, d.URL)
		}
	}
	priors, err := h.store.PriorSnapshots(cycleCtx, urls)
	if err != nil {
		return fmt.Errorf("batch snapshots: %w", err)
	}

	candidates := h.processDeals(cycleCtx, deals, priors, params)

	notifiedNow := h.drainNotifications(cycleCtx, candidates)
	h.notified.Add(int64(notifiedNow))

	h.logger.Info("cycle finished",
		"deals", len(deals),
		"candidates", len(candidates),
		"notified", notifiedNow,
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// processDeals runs the per-deal pipeline (score → persist → gate) on a
// bounded worker pool. Per-deal failures are independent: one bad deal
// never fails the cycle.
func (h *Hunter) processDeals(ctx context.Context, deals []store.RawDeal, priors map[string]store.HistoryRow, params store.ScoringParams) []candidate {
	workers := h.cfg.CycleWorkers
	if workers < 1 {
		workers = 1
	}

	work := make(chan store.RawDeal, len(deals))
	for _, d := range deals {
		work <- d
	}
	close(work)

	var mu sync.Mutex
	var candidates []candidate
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for raw := range work {
				if ctx.Err() != nil {
					h.logger.Warn("cycle deadline reached, abandoning queued deals")
					return
				}
				cand, err := h.processDeal(ctx, raw, priors, params)
				if err != nil {
					h.logger.Warn("deal processing failed", "url", raw.URL, "error", err)
					continue
				}
				if cand != nil {
					mu.Lock()
					candidates = append(candidates, *cand)
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	return candidates
}

// processDeal scores and persists one deal, then runs the gate. Returns a
// candidate when the deal deserves a notification.
func (h *Hunter) processDeal(ctx context.Context, raw store.RawDeal, priors map[string]store.HistoryRow, params store.ScoringParams) (*candidate, error) {
	if !raw.Valid() {
		h.logger.Warn("malformed deal skipped", "raw", fmt.Sprintf("%+v", raw))
		return nil, nil
	}

	now := time.Now()
	hours := math.Max(0, now.Sub(raw.PublishedAt).Hours())

	var prior *store.HistoryRow
	if p, ok := priors[raw.URL]; ok {
		prior = &p
	}

	result := h.engine.Score(scoring.Input{Temperature: raw.Temperature, Hours: hours}, prior, now, params)

	dealID, err := h.saveObservation(ctx, raw, store.Observation{
		Temperature: raw.Temperature,
		Hours:       hours,
		Velocity:    result.Velocity,
		ViralScore:  result.ViralScore,
		FinalScore:  result.FinalScore,
	})
	if err != nil {
		return nil, err
	}

	decision, err := h.gate.Evaluate(ctx, dealID, raw, result, params)
	if err != nil {
		return nil, err
	}
	if !decision.Notify {
		return nil, nil
	}

	h.logger.Info("🔥 viral deal detected",
		"title", raw.Title,
		"rating", decision.Rating,
		"final_score", fmt.Sprintf("%.1f", result.FinalScore),
		"acceleration", fmt.Sprintf("%.2f", result.Acceleration),
		"traffic", fmt.Sprintf("%.1f", result.Traffic))
	return &candidate{dealID: dealID, raw: raw, hours: hours, result: result}, nil
}

// saveObservation runs the upsert+append transaction detached from cycle
// cancellation: once begun, the per-deal unit completes even if the soft
// deadline or shutdown fires mid-write.
func (h *Hunter) saveObservation(ctx context.Context, raw store.RawDeal, obs store.Observation) (int64, error) {
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.StorageTimeout)
	defer cancel()
	return h.store.SaveObservation(txCtx, raw, obs)
}

// drainNotifications fans out every gated candidate and records the new
// max rating only after the fan-out delivered to at least one recipient —
// a transient notifier outage means we try again next cycle instead of
// silently losing the alert.
func (h *Hunter) drainNotifications(ctx context.Context, candidates []candidate) int {
	if len(candidates) == 0 {
		return 0
	}

	targets, err := h.targets(ctx)
	if err != nil {
		h.logger.Error("subscriber list unavailable, deferring notifications", "error", err)
		return 0
	}

	sent := 0
	for _, cand := range candidates {
		if ctx.Err() != nil {
			h.logger.Warn("shutdown during notification drain", "remaining", len(candidates)-sent)
			break
		}

		msg := notify.Format(cand.raw, cand.hours, cand.result)
		delivered := h.dispatcher.Fanout(ctx, targets, msg)
		if delivered == 0 {
			// Nobody accepted the send — empty recipient set included. The
			// rating stays put so the tier notifies once delivery is possible.
			h.logger.Warn("fan-out delivered nothing, rating unchanged",
				"url", cand.raw.URL, "rating", cand.result.Rating, "targets", len(targets))
			continue
		}

		if err := h.updateMaxRating(ctx, cand.dealID, cand.result.Rating); err != nil {
			h.logger.Error("max rating update failed", "deal_id", cand.dealID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// targets is the subscriber set plus the admin chats.
func (h *Hunter) targets(ctx context.Context) ([]int64, error) {
	subs, err := h.subs.List(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(subs)+len(h.cfg.AdminChatIDs))
	targets := make([]int64, 0, len(subs)+len(h.cfg.AdminChatIDs))
	for _, id := range append(subs, h.cfg.AdminChatIDs...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		targets = append(targets, id)
	}
	return targets, nil
}

func (h *Hunter) updateMaxRating(ctx context.Context, dealID int64, rating int) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.StorageTimeout)
	defer cancel()
	return h.store.UpdateMaxRating(writeCtx, dealID, rating)
}
