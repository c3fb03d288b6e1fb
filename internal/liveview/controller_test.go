package liveview

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeview/internal/history"
	"tradeview/internal/models"
	"tradeview/internal/storage"
)

// captureRenderer records every snapshot it receives.
type captureRenderer struct {
	mu        sync.Mutex
	snapshots []*models.Snapshot
}

func (r *captureRenderer) Render(s *models.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *captureRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *captureRenderer) latest() *models.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

// failingStore turns QueryRecent into a transient failure when tripped.
type failingStore struct {
	*storage.MemoryStore
	mu      sync.Mutex
	failing bool
}

func (s *failingStore) QueryRecent(ctx context.Context, symbol string, limit int) (models.HistoryWindow, error) {
	s.mu.Lock()
	failing := s.failing
	s.mu.Unlock()
	if failing {
		return nil, storage.ErrUnavailable
	}
	return s.MemoryStore.QueryRecent(ctx, symbol, limit)
}

func (s *failingStore) setFailing(v bool) {
	s.mu.Lock()
	s.failing = v
	s.mu.Unlock()
}

func seedTrades(t *testing.T, store storage.TradeStore, symbol string, n int) {
	t.Helper()
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	trades := make([]*models.StoredTrade, n)
	for i := range trades {
		trades[i] = &models.StoredTrade{
			TradeEvent: models.TradeEvent{
				Symbol:    symbol,
				TradeTime: base.Add(time.Duration(i) * time.Second),
				Price:     decimal.NewFromInt(int64(10 + i)),
				Quantity:  decimal.NewFromInt(1),
				DedupKey:  fmt.Sprintf("%s-%d", symbol, i),
			},
			IngestedAt: time.Now(),
		}
	}
	require.NoError(t, store.UpsertTrades(context.Background(), trades))
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testController(store storage.TradeStore, renderer Renderer) *Controller {
	return NewController(history.NewService(store), renderer, quietLogger(), Config{
		Interval:      20 * time.Millisecond,
		WindowSize:    3,
		Symbols:       []string{"BTCUSDT", "ETHUSDT"},
		DefaultSymbol: "BTCUSDT",
		DefaultLimit:  200,
	})
}

func TestControllerEmitsFreshSnapshotsOnTicks(t *testing.T) {
	store := storage.NewMemoryStore()
	seedTrades(t, store, "BTCUSDT", 5)

	renderer := &captureRenderer{}
	ctrl := testController(store, renderer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { ctrl.Run(ctx); close(done) }()

	require.Eventually(t, func() bool { return renderer.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	snap := renderer.latest()
	require.NotNil(t, snap)
	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Len(t, snap.Window, 5)
	// WindowSize 3 over 5 points yields 3 trend points.
	assert.Len(t, snap.Trend, 3)
	assert.Equal(t, "Currently showing last 200 trades.", snap.Caption)
}

func TestControllerOmitsTrendWhenWindowTooShort(t *testing.T) {
	store := storage.NewMemoryStore()
	seedTrades(t, store, "BTCUSDT", 2) // below WindowSize 3

	renderer := &captureRenderer{}
	ctrl := testController(store, renderer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { ctrl.Run(ctx); close(done) }()

	require.Eventually(t, func() bool { return renderer.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	snap := renderer.latest()
	assert.Len(t, snap.Window, 2)
	assert.Empty(t, snap.Trend)
}

func TestControllerSelectionChangeTriggersImmediateRefresh(t *testing.T) {
	store := storage.NewMemoryStore()
	seedTrades(t, store, "BTCUSDT", 5)
	seedTrades(t, store, "ETHUSDT", 8)

	renderer := &captureRenderer{}
	ctrl := testController(store, renderer)
	// Long interval so only the change path can produce the next snapshot.
	ctrl.cfg.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { ctrl.Run(ctx); close(done) }()

	require.Eventually(t, func() bool { return renderer.count() >= 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, ctrl.SetSelection("ETHUSDT", 50))
	require.Eventually(t, func() bool {
		s := renderer.latest()
		return s != nil && s.Symbol == "ETHUSDT"
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done

	snap := renderer.latest()
	assert.Equal(t, 50, snap.Limit)
	assert.Len(t, snap.Window, 8)
}

func TestControllerRejectsInvalidSelections(t *testing.T) {
	ctrl := testController(storage.NewMemoryStore(), &captureRenderer{})

	err := ctrl.SetSelection("DOGEUSDT", 100)
	assert.ErrorIs(t, err, ErrUnknownSymbol)

	err = ctrl.SetSelection("BTCUSDT", 0)
	assert.ErrorIs(t, err, history.ErrInvalidLimit)

	err = ctrl.SetSelection("BTCUSDT", 100000)
	assert.ErrorIs(t, err, history.ErrInvalidLimit)

	// Selection unchanged after rejections.
	assert.Equal(t, Selection{Symbol: "BTCUSDT", Limit: 200}, ctrl.Selection())
}

func TestControllerRetainsLastSnapshotThroughFailures(t *testing.T) {
	store := &failingStore{MemoryStore: storage.NewMemoryStore()}
	seedTrades(t, store.MemoryStore, "BTCUSDT", 5)

	renderer := &captureRenderer{}
	ctrl := testController(store, renderer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { ctrl.Run(ctx); close(done) }()

	require.Eventually(t, func() bool { return renderer.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	healthy := ctrl.Latest()
	require.NotNil(t, healthy)

	store.setFailing(true)
	emitted := renderer.count()
	time.Sleep(100 * time.Millisecond) // several failing ticks

	// No new snapshots, but the last good one is still served.
	assert.Equal(t, emitted, renderer.count())
	assert.Equal(t, healthy, ctrl.Latest())

	store.setFailing(false)
	require.Eventually(t, func() bool { return renderer.count() > emitted }, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestControllerEmptyWindowIsRenderableNotError(t *testing.T) {
	store := storage.NewMemoryStore() // nothing ingested yet

	renderer := &captureRenderer{}
	ctrl := testController(store, renderer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { ctrl.Run(ctx); close(done) }()

	require.Eventually(t, func() bool { return renderer.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	snap := renderer.latest()
	require.NotNil(t, snap, "no data must still produce a renderable snapshot")
	assert.NotNil(t, snap.Window)
	assert.Empty(t, snap.Window)
	assert.Empty(t, snap.Trend)
}
