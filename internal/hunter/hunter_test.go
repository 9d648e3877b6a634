package hunter

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/PaqoIbanez/promodescuentos-notifications/internal/config"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/notify"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/scoring"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/store"
)

type fakeStore struct {
	maxRatings map[int64]int
	updates    []int
}

func (f *fakeStore) SaveObservation(ctx context.Context, raw store.RawDeal, obs store.Observation) (int64, error) {
	return 1, nil
}

func (f *fakeStore) PriorSnapshots(ctx context.Context, urls []string) (map[string]store.HistoryRow, error) {
	return nil, nil
}

func (f *fakeStore) MaxRating(ctx context.Context, dealID int64) (int, error) {
	return f.maxRatings[dealID], nil
}

func (f *fakeStore) UpdateMaxRating(ctx context.Context, dealID int64, rating int) error {
	f.updates = append(f.updates, rating)
	return nil
}

type fakeSubs struct {
	ids []int64
}

func (f *fakeSubs) List(ctx context.Context) ([]int64, error) { return f.ids, nil }

type countingNotifier struct {
	sends atomic.Int64
	fail  bool
}

func (n *countingNotifier) Send(ctx context.Context, chatID int64, msg notify.Message) error {
	n.sends.Add(1)
	if n.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func drainHunter(st *fakeStore, subs *fakeSubs, notifier notify.Notifier, admins []int64) *Hunter {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		AdminChatIDs:   admins,
		StorageTimeout: time.Second,
		FanoutConc:     2,
	}
	return New(cfg, nil, st, nil, subs, nil,
		notify.NewDispatcher(notifier, cfg.FanoutConc, 1000, logger), logger)
}

func viralCandidate() candidate {
	return candidate{
		dealID: 1,
		raw:    store.RawDeal{URL: "https://www.promodescuentos.com/ofertas/x-1", Temperature: 150, TemperatureOK: true},
		hours:  0.5,
		result: scoring.Result{Rating: 2, FinalScore: 150},
	}
}

// No subscribers and no admin chats: nothing is delivered, so the rating
// must not advance — the tier notifies once somebody can receive it.
func TestDrainNotifications_EmptyTargetsKeepsRating(t *testing.T) {
	st := &fakeStore{}
	notifier := &countingNotifier{}
	h := drainHunter(st, &fakeSubs{}, notifier, nil)

	sent := h.drainNotifications(context.Background(), []candidate{viralCandidate()})

	assert.Zero(t, sent)
	assert.Zero(t, notifier.sends.Load())
	assert.Empty(t, st.updates, "rating must not advance without a delivery")
}

func TestDrainNotifications_DeliveryAdvancesRating(t *testing.T) {
	st := &fakeStore{}
	notifier := &countingNotifier{}
	h := drainHunter(st, &fakeSubs{ids: []int64{100, 200}}, notifier, []int64{300})

	sent := h.drainNotifications(context.Background(), []candidate{viralCandidate()})

	assert.Equal(t, 1, sent)
	assert.Equal(t, int64(3), notifier.sends.Load())
	assert.Equal(t, []int{2}, st.updates)
}

func TestDrainNotifications_AllSendsFailKeepsRating(t *testing.T) {
	st := &fakeStore{}
	notifier := &countingNotifier{fail: true}
	h := drainHunter(st, &fakeSubs{ids: []int64{100}}, notifier, nil)

	sent := h.drainNotifications(context.Background(), []candidate{viralCandidate()})

	assert.Zero(t, sent)
	assert.Empty(t, st.updates)
}

func TestNextWait_StaysInsideWindow(t *testing.T) {
	min := 5 * time.Minute
	max := 12 * time.Minute

	for i := 0; i < 1000; i++ {
		wait := nextWait(min, max)
		assert.GreaterOrEqual(t, wait, min)
		assert.Less(t, wait, max)
	}
}

func TestNextWait_DegenerateWindow(t *testing.T) {
	assert.Equal(t, 5*time.Minute, nextWait(5*time.Minute, 5*time.Minute))
	assert.Equal(t, 5*time.Minute, nextWait(5*time.Minute, time.Minute))
}

func TestLastCycle_ZeroBeforeFirst(t *testing.T) {
	h := &Hunter{}
	assert.True(t, h.LastCycle().IsZero())

	stats := h.Stats()
	assert.Zero(t, stats.Cycles)
	assert.Zero(t, stats.Notified)
}
