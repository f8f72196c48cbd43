package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghost-trader/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Symbol:         "BTCUSDT",
		RiskPerTrade:   0.02,
		EntryThreshold: 75,
		AddFraction:    0.01,
		FeeRate:        0.0004,
	}
}

func TestDynamicLeverage(t *testing.T) {
	price := 100000.0

	assert.Equal(t, 20.0, dynamicLeverage(400, price))  // 0.4% vol
	assert.Equal(t, 10.0, dynamicLeverage(500, price))  // exactly 0.5%
	assert.Equal(t, 10.0, dynamicLeverage(900, price))  // 0.9%
	assert.Equal(t, 5.0, dynamicLeverage(1000, price))  // exactly 1%
	assert.Equal(t, 5.0, dynamicLeverage(2500, price))  // 2.5%
	assert.Equal(t, 5.0, dynamicLeverage(100, 0))       // degenerate price
}

func TestPositionNotional(t *testing.T) {
	// $1000 balance, 2% risk, stop 1% away: risk budget gives $2000,
	// well under the 20x buying power cap.
	notional := positionNotional(1000, 100000, 99000, 0.02, 20)
	assert.InDelta(t, 2000, notional, 1e-9)

	// Stop glued to the entry is floored at 1% distance, same result.
	notional = positionNotional(1000, 100000, 99999, 0.02, 20)
	assert.InDelta(t, 2000, notional, 1e-9)

	// Tight leverage cap wins over the risk-derived size.
	notional = positionNotional(1000, 100000, 99000, 0.02, 1)
	assert.InDelta(t, 1000, notional, 1e-9)

	// Short side: stop above entry, same distance math.
	notional = positionNotional(1000, 100000, 102000, 0.02, 20)
	assert.InDelta(t, 1000, notional, 1e-9)
}

func TestRealizedPnL(t *testing.T) {
	// LONG 0.1 BTC from 100k to 101k: +$100 gross, fees on both legs.
	pnl := realizedPnL(ActionLong, 100000, 101000, 0.1, 0.0004)
	fees := 100000*0.1*0.0004 + 101000*0.1*0.0004
	assert.InDelta(t, 100-fees, pnl, 1e-9)

	// SHORT profits on the way down.
	pnl = realizedPnL(ActionShort, 100000, 99000, 0.1, 0.0004)
	fees = 100000*0.1*0.0004 + 99000*0.1*0.0004
	assert.InDelta(t, 100-fees, pnl, 1e-9)

	// LONG losing trade: gross loss plus fees.
	pnl = realizedPnL(ActionLong, 100000, 99000, 0.1, 0.0004)
	assert.Less(t, pnl, -100.0)

	// Zero fee rate is pure gross.
	assert.InDelta(t, 100, realizedPnL(ActionLong, 100000, 101000, 0.1, 0), 1e-9)
}

func TestOpenPositionSizing(t *testing.T) {
	store := NewMemoryStore(1000)
	pm := NewPositionManager(store, testConfig())

	decision := TradeDecision{
		Action:     ActionLong,
		Confidence: 90,
		StopLoss:   99000,
		TakeProfit: 103000,
	}
	trade, err := pm.OpenPosition(context.Background(), decision, 100000, 400)
	require.NoError(t, err)

	// ATR 400 at 100k is low volatility: 20x, risk budget $2000 -> 0.02 BTC.
	assert.Equal(t, 20.0, trade.Leverage)
	assert.InDelta(t, 0.02, trade.Size, 1e-9)
	assert.Equal(t, StatusOpen, trade.Status)
	assert.Equal(t, 99000.0, trade.StopLoss)
	assert.Equal(t, 103000.0, trade.TakeProfit)

	open, err := store.OpenTrades(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
}

func TestOpenPositionDefaultRisk(t *testing.T) {
	store := NewMemoryStore(1000)
	pm := NewPositionManager(store, testConfig())

	// Oracle omitted riskPerTrade: fall back to the configured 2%.
	decision := TradeDecision{Action: ActionShort, StopLoss: 102000}
	trade, err := pm.OpenPosition(context.Background(), decision, 100000, 400)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, trade.Size, 1e-9) // 1000*0.02/0.02 / 100000
}

func TestAddToPositionInheritsLeg(t *testing.T) {
	store := NewMemoryStore(1000)
	pm := NewPositionManager(store, testConfig())

	base := Trade{
		Symbol: "BTCUSDT", Side: ActionLong, EntryPrice: 100000,
		Leverage: 10, Size: 0.02, Status: StatusOpen,
		StopLoss: 99000, TakeProfit: 104000, OpenedAt: time.Now(),
	}
	require.NoError(t, store.InsertTrade(context.Background(), &base))

	add, err := pm.AddToPosition(context.Background(), base, 101000)
	require.NoError(t, err)

	assert.Equal(t, ActionLong, add.Side)
	assert.Equal(t, 10.0, add.Leverage)
	assert.Equal(t, 99000.0, add.StopLoss)
	assert.Equal(t, 104000.0, add.TakeProfit)
	assert.InDelta(t, 1000*0.01/101000, add.Size, 1e-12)

	open, err := store.OpenTrades(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestCloseLegsSettlesWallet(t *testing.T) {
	store := NewMemoryStore(1000)
	pm := NewPositionManager(store, testConfig())

	leg := Trade{Side: ActionLong, EntryPrice: 100000, Size: 0.1, Status: StatusOpen, OpenedAt: time.Now()}
	require.NoError(t, store.InsertTrade(context.Background(), &leg))

	pnl, err := pm.CloseLegs(context.Background(), []Trade{leg}, 101000, "AI_DECISION")
	require.NoError(t, err)
	assert.Greater(t, pnl, 0.0)

	balance, err := store.WalletBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1000+pnl, balance, 1e-9)

	open, err := store.OpenTrades(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCloseLegsIdempotent(t *testing.T) {
	store := NewMemoryStore(1000)
	pm := NewPositionManager(store, testConfig())

	leg := Trade{Side: ActionLong, EntryPrice: 100000, Size: 0.1, Status: StatusOpen, OpenedAt: time.Now()}
	require.NoError(t, store.InsertTrade(context.Background(), &leg))

	first, err := pm.CloseLegs(context.Background(), []Trade{leg}, 101000, "TAKE_PROFIT")
	require.NoError(t, err)

	// The decision loop racing the monitor sees a stale open leg. The second
	// settlement must be a no-op: no PnL, no wallet movement.
	second, err := pm.CloseLegs(context.Background(), []Trade{leg}, 99000, "AI_DECISION")
	require.NoError(t, err)
	assert.Zero(t, second)

	balance, err := store.WalletBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1000+first, balance, 1e-9)
}

func TestMoveStopLossAllLegs(t *testing.T) {
	store := NewMemoryStore(1000)
	pm := NewPositionManager(store, testConfig())

	a := Trade{Side: ActionLong, EntryPrice: 100000, Size: 0.1, Status: StatusOpen, StopLoss: 98000, OpenedAt: time.Now()}
	b := Trade{Side: ActionLong, EntryPrice: 100500, Size: 0.05, Status: StatusOpen, StopLoss: 98000, OpenedAt: time.Now().Add(time.Second)}
	require.NoError(t, store.InsertTrade(context.Background(), &a))
	require.NoError(t, store.InsertTrade(context.Background(), &b))

	require.NoError(t, pm.MoveStopLoss(context.Background(), []Trade{a, b}, 99500))

	open, err := store.OpenTrades(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 2)
	for _, leg := range open {
		assert.Equal(t, 99500.0, leg.StopLoss)
	}
}
