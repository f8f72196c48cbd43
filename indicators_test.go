package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// trendingCandles builds a series that moves `step` per bar from `start`,
// with a one-dollar bar range around the close.
func trendingCandles(n int, start, step float64) []Candle {
	candles := make([]Candle, n)
	price := start
	for i := range candles {
		price += step
		candles[i] = Candle{
			OpenTime: int64(i) * 60_000,
			Open:     price - step,
			High:     price + 0.5,
			Low:      price - step - 0.5,
			Close:    price,
			Volume:   10,
		}
	}
	return candles
}

// flatCandles builds a series oscillating tightly around `level`.
func flatCandles(n int, level float64) []Candle {
	candles := make([]Candle, n)
	for i := range candles {
		wiggle := 0.3
		if i%2 == 0 {
			wiggle = -0.3
		}
		close := level + wiggle
		candles[i] = Candle{
			OpenTime: int64(i) * 60_000,
			Open:     level - wiggle,
			High:     close + 0.5,
			Low:      close - 1.0,
			Close:    close,
			Volume:   10,
		}
	}
	return candles
}

func TestCalculateFrameShortSeries(t *testing.T) {
	// 50 bars: EMA20 resolves, the longer studies degrade to zero and the
	// zone stays unknown rather than erroring.
	out := calculateFrame(trendingCandles(50, 100000, 10))

	assert.NotZero(t, out.CurrentPrice)
	assert.NotZero(t, out.EMA20)
	assert.Zero(t, out.EMA200)
	assert.Equal(t, ZoneUnknown, out.WhiteZone.Status)
	assert.Zero(t, out.WhiteZone.Upper)
	assert.NotZero(t, out.Struct.High)
	assert.NotZero(t, out.Struct.Low)
}

func TestCalculateFrameEmpty(t *testing.T) {
	out := calculateFrame(nil)
	assert.Equal(t, ZoneUnknown, out.WhiteZone.Status)
	assert.Zero(t, out.CurrentPrice)
}

func TestWhiteZoneUptrend(t *testing.T) {
	// A steady climb leaves the band far below the last body.
	out := calculateFrame(trendingCandles(2500, 50000, 1))

	assert.Equal(t, ZoneUptrend, out.WhiteZone.Status)
	assert.Greater(t, out.WhiteZone.Upper, 0.0)
	assert.Less(t, out.WhiteZone.Lower, out.WhiteZone.Upper)
	assert.Greater(t, out.CurrentPrice, out.WhiteZone.Upper)
}

func TestWhiteZoneDowntrend(t *testing.T) {
	out := calculateFrame(trendingCandles(2500, 55000, -1))
	assert.Equal(t, ZoneDowntrend, out.WhiteZone.Status)
	assert.Less(t, out.CurrentPrice, out.WhiteZone.Lower)
}

func TestWhiteZoneRubbingOverride(t *testing.T) {
	// Price grinding on the band the whole lookback: every sampled window
	// intersects it, which overrides the plain body classification.
	out := calculateFrame(flatCandles(2500, 100000))

	assert.True(t, strings.HasPrefix(out.WhiteZone.Status, "CHOP_RUBBING"),
		"got status %q", out.WhiteZone.Status)
	assert.Contains(t, out.WhiteZone.Status, "touches")
}

func TestFindSwingPoints(t *testing.T) {
	// Pivot high of 110 at index 4, pivot low of 90 at index 8, both
	// confirmed by two quieter bars on each side.
	highs := []float64{100, 101, 102, 105, 110, 104, 103, 101, 96, 99, 100, 101, 100}
	lows := []float64{99, 100, 101, 103, 108, 102, 100, 98, 90, 97, 98, 99, 98}

	sp := findSwingPoints(highs, lows)
	assert.Equal(t, 110.0, sp.High)
	assert.Equal(t, 90.0, sp.Low)
}

func TestFindSwingPointsFallback(t *testing.T) {
	// Monotonic series never confirms a fractal on either side, so both
	// fall back to the 20-bar extremes.
	n := 30
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = 100 + float64(i)
		lows[i] = 99 + float64(i)
	}

	sp := findSwingPoints(highs, lows)
	assert.Equal(t, highs[n-1], sp.High)
	assert.Equal(t, lows[n-20], sp.Low)
}

func TestCumulativeVWAP(t *testing.T) {
	highs := []float64{110, 120}
	lows := []float64{90, 100}
	closes := []float64{100, 110}
	volumes := []float64{1, 3}

	// Typical prices 100 and 110, volume-weighted 1:3.
	want := (100*1 + 110*3) / 4.0
	assert.InDelta(t, want, cumulativeVWAP(highs, lows, closes, volumes), 1e-9)

	assert.Zero(t, cumulativeVWAP(highs, lows, closes, []float64{0, 0}))
}

func TestCalculateIndicatorsAllFrames(t *testing.T) {
	frames := &MultiFrameCandles{
		M1: trendingCandles(2500, 50000, 1),
		M5: trendingCandles(500, 50000, 5),
		H1: trendingCandles(500, 40000, 20),
		H4: trendingCandles(200, 30000, 80),
		D1: trendingCandles(100, 20000, 300),
	}
	out := CalculateIndicators(frames)

	// Only the 1m frame carries enough depth for the zone.
	assert.Equal(t, ZoneUptrend, out.M1.WhiteZone.Status)
	assert.Equal(t, ZoneUnknown, out.M5.WhiteZone.Status)
	assert.Equal(t, ZoneUnknown, out.D1.WhiteZone.Status)

	assert.NotZero(t, out.H4.EMA200)
	assert.NotZero(t, out.M5.VWAP)
	assert.NotZero(t, out.M5.ATR)
}
