package notify

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Dispatcher fans a message out to the recipient set with bounded
// concurrency and a global rate limit, respecting Telegram's per-bot send
// budget. Each failed send is retried once with jittered backoff.
type Dispatcher struct {
	notifier    Notifier
	concurrency int
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewDispatcher creates a Dispatcher. perSecond bounds the aggregate send
// rate across all workers.
func NewDispatcher(notifier Notifier, concurrency, perSecond int, logger *slog.Logger) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	if perSecond < 1 {
		perSecond = 1
	}
	return &Dispatcher{
		notifier:    notifier,
		concurrency: concurrency,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), perSecond),
		logger:      logger,
	}
}

// Fanout sends msg to every target and returns the delivered count. Partial
// failure is tolerated; errors are logged per target.
func (d *Dispatcher) Fanout(ctx context.Context, targets []int64, msg Message) int {
	if len(targets) == 0 {
		return 0
	}

	start := time.Now()
	var delivered atomic.Int64
	sem := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup

	for _, chatID := range targets {
		select {
		case <-ctx.Done():
			d.logger.Warn("fan-out cancelled", "remaining", len(targets))
			wg.Wait()
			return int(delivered.Load())
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(chatID int64) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := d.sendOne(ctx, chatID, msg); err != nil {
				d.logger.Warn("notification send failed", "chat_id", chatID, "error", err)
				return
			}
			delivered.Add(1)
		}(chatID)
	}
	wg.Wait()

	d.logger.Info("fan-out finished",
		"targets", len(targets),
		"delivered", delivered.Load(),
		"duration", time.Since(start).Round(time.Millisecond))
	return int(delivered.Load())
}

// sendOne delivers to a single chat with one retry on transient failure.
func (d *Dispatcher) sendOne(ctx context.Context, chatID int64, msg Message) error {
	var last error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			delay := 300*time.Millisecond + time.Duration(rand.Int63n(int64(400*time.Millisecond)))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		if last = d.notifier.Send(ctx, chatID, msg); last == nil {
			return nil
		}
	}
	return last
}
