package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeview/internal/models"
)

func makeTrade(key, symbol string, at time.Time, price string) *models.StoredTrade {
	return &models.StoredTrade{
		TradeEvent: models.TradeEvent{
			Symbol:    symbol,
			TradeTime: at,
			Price:     decimal.RequireFromString(price),
			Quantity:  decimal.NewFromInt(1),
			DedupKey:  key,
		},
		IngestedAt: time.Now(),
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	trade := makeTrade("dup-1", "BTCUSDT", base, "100")

	// Same key submitted repeatedly, interleaved with other trades.
	require.NoError(t, store.UpsertTrades(ctx, []*models.StoredTrade{trade}))
	require.NoError(t, store.UpsertTrades(ctx, []*models.StoredTrade{
		makeTrade("other-1", "BTCUSDT", base.Add(time.Second), "101"),
		trade,
	}))
	require.NoError(t, store.UpsertTrades(ctx, []*models.StoredTrade{trade, trade}))

	assert.Equal(t, 2, store.Count())

	window, err := store.QueryRecent(ctx, "BTCUSDT", 10)
	require.NoError(t, err)
	assert.Len(t, window, 2)
}

func TestQueryRecentOrdersAscendingRegardlessOfInsertOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	// Insert out of order, as the bus may deliver.
	offsets := []int{5, 1, 4, 0, 3, 2}
	for _, off := range offsets {
		trade := makeTrade(fmt.Sprintf("t-%d", off), "ETHUSDT", base.Add(time.Duration(off)*time.Second), "10")
		require.NoError(t, store.UpsertTrades(ctx, []*models.StoredTrade{trade}))
	}

	window, err := store.QueryRecent(ctx, "ETHUSDT", 10)
	require.NoError(t, err)
	require.Len(t, window, 6)

	for i := 1; i < len(window); i++ {
		assert.True(t, window[i-1].TradeTime.Before(window[i].TradeTime),
			"window must ascend by trade time at index %d", i)
	}
}

func TestQueryRecentKeepsNewestWhenLimited(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		trade := makeTrade(fmt.Sprintf("t-%d", i), "BTCUSDT", base.Add(time.Duration(i)*time.Second), "10")
		require.NoError(t, store.UpsertTrades(ctx, []*models.StoredTrade{trade}))
	}

	window, err := store.QueryRecent(ctx, "BTCUSDT", 3)
	require.NoError(t, err)
	require.Len(t, window, 3)

	// The newest three, still ascending.
	assert.Equal(t, "t-7", window[0].DedupKey)
	assert.Equal(t, "t-9", window[2].DedupKey)
}

func TestQueryRecentUnknownSymbolIsEmptyNotError(t *testing.T) {
	store := NewMemoryStore()

	window, err := store.QueryRecent(context.Background(), "UNKNOWN", 100)
	require.NoError(t, err)
	assert.Empty(t, window)
}

func TestCursorRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	loaded, err := store.LoadCursors(ctx, "crypto", "viewer-group")
	require.NoError(t, err)
	assert.Empty(t, loaded, "first run has no cursor")

	cursors := []*models.Cursor{
		{Topic: "crypto", GroupID: "viewer-group", Partition: 1, Offset: 42, UpdatedAt: time.Now()},
		{Topic: "crypto", GroupID: "viewer-group", Partition: 0, Offset: 7, UpdatedAt: time.Now()},
	}
	require.NoError(t, store.SaveCursors(ctx, cursors))

	// Advance one partition.
	require.NoError(t, store.SaveCursors(ctx, []*models.Cursor{
		{Topic: "crypto", GroupID: "viewer-group", Partition: 0, Offset: 19, UpdatedAt: time.Now()},
	}))

	loaded, err = store.LoadCursors(ctx, "crypto", "viewer-group")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, 0, loaded[0].Partition)
	assert.Equal(t, int64(19), loaded[0].Offset)
	assert.Equal(t, int64(42), loaded[1].Offset)

	// Other groups are isolated.
	other, err := store.LoadCursors(ctx, "crypto", "another-group")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUpsertBatchWritesTradesAndCursorsTogether(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	trades := []*models.StoredTrade{makeTrade("b-1", "BTCUSDT", base, "50")}
	cursors := []*models.Cursor{{Topic: "crypto", GroupID: "g", Partition: 0, Offset: 3, UpdatedAt: time.Now()}}

	require.NoError(t, store.UpsertBatch(ctx, trades, cursors))

	assert.Equal(t, 1, store.Count())
	loaded, err := store.LoadCursors(ctx, "crypto", "g")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, int64(3), loaded[0].Offset)
}
