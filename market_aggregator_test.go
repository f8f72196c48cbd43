package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlendSnapshotsWeighted(t *testing.T) {
	binance := MarketSnapshot{Price: 100000, FundingRate: 0.0001, OpenInterest: 80000}
	bybit := MarketSnapshot{Price: 100100, FundingRate: 0.0002, OpenInterest: 50000}

	out := blendSnapshots(binance, bybit, 0.6, 0.4)

	assert.InDelta(t, 100000*0.6+100100*0.4, out.Price, 1e-9)
	assert.InDelta(t, 0.0001*0.6+0.0002*0.4, out.FundingRate, 1e-12)
	assert.InDelta(t, 130000, out.OpenInterest, 1e-9)
}

func TestBlendSnapshotsFallback(t *testing.T) {
	live := MarketSnapshot{Price: 100000, FundingRate: 0.0001, OpenInterest: 80000}
	dead := MarketSnapshot{}

	// A dead venue hands over the other's snapshot untouched, weights and all.
	assert.Equal(t, live, blendSnapshots(dead, live, 0.6, 0.4))
	assert.Equal(t, live, blendSnapshots(live, dead, 0.6, 0.4))

	// Both dead yields an empty snapshot the engine will reject.
	assert.Equal(t, MarketSnapshot{}, blendSnapshots(dead, dead, 0.6, 0.4))
}
