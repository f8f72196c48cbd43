package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMarketHistory(t *testing.T) {
	// Store hands rows back newest-first; the series must come out
	// oldest-first with the live snapshot as the final point.
	logs := []LogRow{
		{MarketData: LogMarketData{OI: 82000, Funding: 0.0003}},
		{MarketData: LogMarketData{OI: 81000, Funding: 0.0002}},
		{MarketData: LogMarketData{OI: 80000, Funding: 0.0001}},
	}
	current := MarketSnapshot{OpenInterest: 83000, FundingRate: 0.0004}

	oi, funding := buildMarketHistory(logs, current)
	assert.Equal(t, []float64{80000, 81000, 82000, 83000}, oi)
	assert.Equal(t, []float64{0.0001, 0.0002, 0.0003, 0.0004}, funding)
}

func TestBuildMarketHistoryEmpty(t *testing.T) {
	oi, funding := buildMarketHistory(nil, MarketSnapshot{OpenInterest: 83000, FundingRate: 0.0004})
	assert.Equal(t, []float64{83000}, oi)
	assert.Equal(t, []float64{0.0004}, funding)
}

func TestPreviousDecision(t *testing.T) {
	logs := []LogRow{
		{AIResponse: `{"action":"STAY","reason":"waiting for pullback","confidence":40}`},
		{AIResponse: `{"action":"LONG","confidence":80}`},
	}

	decision := previousDecision(logs)
	require.NotNil(t, decision)
	assert.Equal(t, ActionStay, decision.Action)
	assert.Equal(t, "waiting for pullback", decision.Reason)

	assert.Nil(t, previousDecision(nil))
	assert.Nil(t, previousDecision([]LogRow{{AIResponse: "not json"}}))
	assert.Nil(t, previousDecision([]LogRow{{}}))
}

func TestOIChangePercent(t *testing.T) {
	logs := []LogRow{{MarketData: LogMarketData{OI: 80000}}}

	assert.InDelta(t, 2.5, oiChangePercent(logs, 82000), 1e-9)
	assert.InDelta(t, -2.5, oiChangePercent(logs, 78000), 1e-9)

	// No history: no baseline, no change.
	assert.Zero(t, oiChangePercent(nil, 82000))
	assert.Zero(t, oiChangePercent(nil, 0))
}

func TestRecentTradesSummary(t *testing.T) {
	assert.Equal(t, "No recent closed trades.", recentTradesSummary(nil))

	trades := []Trade{
		{Side: ActionLong, PnL: 120.5},
		{Side: ActionShort, PnL: -45.25},
		{Side: ActionShort, PnL: 0}, // breakeven counts as a loss
	}
	summary := recentTradesSummary(trades)
	assert.Equal(t, "Last 3 Trades: 1 Wins, 2 Losses. History: LONG (WIN $120.50), SHORT (LOSS $-45.25), SHORT (LOSS $0.00)", summary)
}

func TestBuildPositionSummary(t *testing.T) {
	assert.Nil(t, buildPositionSummary(nil, 100000))

	legs := []Trade{
		{Side: ActionLong, EntryPrice: 100000, Size: 0.02, Leverage: 10, StopLoss: 99000, TakeProfit: 104000},
		{Side: ActionLong, EntryPrice: 101000, Size: 0.01, Leverage: 10, StopLoss: 99000, TakeProfit: 104000},
	}

	// Price up 1% on 10x: 10% ROE on the base leg, sizes summed.
	summary := buildPositionSummary(legs, 101000)
	require.NotNil(t, summary)
	assert.Equal(t, ActionLong, summary.Side)
	assert.InDelta(t, 0.03, summary.Size, 1e-12)
	assert.Equal(t, "10.00", summary.PnlPercent)
	assert.Equal(t, 99000.0, summary.StopLoss)

	// Short side flips the sign.
	short := []Trade{{Side: ActionShort, EntryPrice: 100000, Size: 0.02, Leverage: 5}}
	summary = buildPositionSummary(short, 101000)
	assert.Equal(t, "-5.00", summary.PnlPercent)
}
