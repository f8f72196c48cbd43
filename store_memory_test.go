package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRecentInfoLogs(t *testing.T) {
	store := NewMemoryStore(1000)
	ctx := context.Background()

	require.NoError(t, store.InsertLog(ctx, &LogRow{Type: LogInfo, Message: "first"}))
	require.NoError(t, store.InsertLog(ctx, &LogRow{Type: LogError, Message: "boom"}))
	require.NoError(t, store.InsertLog(ctx, &LogRow{Type: LogInfo, Message: "second"}))
	require.NoError(t, store.InsertLog(ctx, &LogRow{Type: LogTrade, Message: "opened"}))
	require.NoError(t, store.InsertLog(ctx, &LogRow{Type: LogInfo, Message: "third"}))

	rows, err := store.RecentInfoLogs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// Newest first, non-INFO rows filtered out.
	assert.Equal(t, "third", rows[0].Message)
	assert.Equal(t, "second", rows[1].Message)
	assert.False(t, rows[0].CreatedAt.IsZero())
}

func TestMemoryStoreRecentClosedTrades(t *testing.T) {
	store := NewMemoryStore(1000)
	ctx := context.Background()

	ids := make([]string, 3)
	for i := range ids {
		trade := Trade{Side: ActionLong, EntryPrice: 100000, Size: 0.01, Status: StatusOpen, OpenedAt: time.Now()}
		require.NoError(t, store.InsertTrade(ctx, &trade))
		ids[i] = trade.ID
	}
	for i, id := range ids {
		closed, err := store.CloseTrade(ctx, id, 101000, float64(i))
		require.NoError(t, err)
		assert.True(t, closed)
		time.Sleep(time.Millisecond) // distinct close timestamps
	}

	recent, err := store.RecentClosedTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	// Newest close first.
	assert.Equal(t, ids[2], recent[0].ID)
	assert.Equal(t, ids[1], recent[1].ID)
}

func TestMemoryStoreOpenTradesOldestFirst(t *testing.T) {
	store := NewMemoryStore(1000)
	ctx := context.Background()

	// Insert out of chronological order; the primary (oldest) leg must still
	// come back first, since it anchors ADD inheritance and the oracle's
	// position summary.
	now := time.Now()
	add := Trade{Side: ActionLong, EntryPrice: 101000, Size: 0.01, Status: StatusOpen, OpenedAt: now}
	primary := Trade{Side: ActionLong, EntryPrice: 100000, Size: 0.02, Status: StatusOpen, OpenedAt: now.Add(-time.Hour)}
	require.NoError(t, store.InsertTrade(ctx, &add))
	require.NoError(t, store.InsertTrade(ctx, &primary))

	open, err := store.OpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, primary.ID, open[0].ID)
	assert.Equal(t, add.ID, open[1].ID)
}

func TestMemoryStoreCloseTradeGuards(t *testing.T) {
	store := NewMemoryStore(1000)
	ctx := context.Background()

	_, err := store.CloseTrade(ctx, "missing", 100000, 0)
	assert.Error(t, err)

	trade := Trade{Side: ActionShort, EntryPrice: 100000, Size: 0.01, Status: StatusOpen, OpenedAt: time.Now()}
	require.NoError(t, store.InsertTrade(ctx, &trade))

	closed, err := store.CloseTrade(ctx, trade.ID, 99000, 10)
	require.NoError(t, err)
	assert.True(t, closed)

	// Second settlement is refused and the wallet moves only once.
	closed, err = store.CloseTrade(ctx, trade.ID, 98000, 20)
	require.NoError(t, err)
	assert.False(t, closed)

	balance, err := store.WalletBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1010, balance, 1e-9)
}

func TestMemoryStoreUpdateStopLoss(t *testing.T) {
	store := NewMemoryStore(1000)
	ctx := context.Background()

	trade := Trade{Side: ActionLong, EntryPrice: 100000, Size: 0.01, Status: StatusOpen, StopLoss: 98000, OpenedAt: time.Now()}
	require.NoError(t, store.InsertTrade(ctx, &trade))
	require.NoError(t, store.UpdateStopLoss(ctx, trade.ID, 99500))

	open, err := store.OpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 99500.0, open[0].StopLoss)

	assert.Error(t, store.UpdateStopLoss(ctx, "missing", 1))
}
