package main

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
)

// Trend band state labels. RUBBING carries a touch tally suffix.
const (
	ZoneUnknown   = "UNKNOWN"
	ZoneUptrend   = "UPTREND"
	ZoneDowntrend = "DOWNTREND"
	ZoneChop      = "CHOP"
)

const (
	zoneSlowPeriod     = 2000
	zoneFastPeriod     = 20
	zoneATRPeriod      = 14
	rubbingLookback    = 240 // minutes
	rubbingStride      = 5
	rubbingTouchFloor  = 24
	fractalWings       = 2
	structFallbackBars = 20
)

// WhiteZone is the slow/fast EMA band that classifies the 1m regime.
type WhiteZone struct {
	Status string  `json:"status"`
	Upper  float64 `json:"upper"`
	Lower  float64 `json:"lower"`
}

// SwingPoints holds the most recent confirmed fractal high and low.
type SwingPoints struct {
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}

// FrameIndicators is the indicator snapshot for one timeframe.
type FrameIndicators struct {
	CurrentPrice float64     `json:"currentPrice"`
	EMA20        float64     `json:"ema20"`
	EMA50        float64     `json:"ema50"`
	EMA100       float64     `json:"ema100"`
	EMA200       float64     `json:"ema200"`
	RSI          float64     `json:"rsi"`
	ADX          float64     `json:"adx"`
	ATR          float64     `json:"atr"`
	VWAP         float64     `json:"vwap"`
	Volume       float64     `json:"volume"`
	WhiteZone    WhiteZone   `json:"whiteZone"`
	Struct       SwingPoints `json:"struct"`
}

// MultiFrameIndicators covers all five timeframes the oracle reads.
type MultiFrameIndicators struct {
	M1 FrameIndicators `json:"m1"`
	M5 FrameIndicators `json:"m5"`
	H1 FrameIndicators `json:"h1"`
	H4 FrameIndicators `json:"h4"`
	D1 FrameIndicators `json:"d1"`
}

// CalculateIndicators runs the full pipeline over every timeframe.
func CalculateIndicators(frames *MultiFrameCandles) *MultiFrameIndicators {
	return &MultiFrameIndicators{
		M1: calculateFrame(frames.M1),
		M5: calculateFrame(frames.M5),
		H1: calculateFrame(frames.H1),
		H4: calculateFrame(frames.H4),
		D1: calculateFrame(frames.D1),
	}
}

func calculateFrame(candles []Candle) FrameIndicators {
	n := len(candles)
	if n == 0 {
		return FrameIndicators{WhiteZone: WhiteZone{Status: ZoneUnknown}}
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	out := FrameIndicators{
		CurrentPrice: closes[n-1],
		Volume:       volumes[n-1],
		VWAP:         cumulativeVWAP(highs, lows, closes, volumes),
		WhiteZone:    WhiteZone{Status: ZoneUnknown},
	}

	// talib yields input-length slices padded with zeros during warmup,
	// so short series degrade to zero values instead of erroring.
	out.EMA20 = lastOf(emaIfEnough(closes, 20))
	out.EMA50 = lastOf(emaIfEnough(closes, 50))
	out.EMA100 = lastOf(emaIfEnough(closes, 100))
	out.EMA200 = lastOf(emaIfEnough(closes, 200))
	out.RSI = lastOf(indIfEnough(closes, 14, func() []float64 { return talib.Rsi(closes, 14) }))
	out.ATR = lastOf(indIfEnough(closes, 14, func() []float64 { return talib.Atr(highs, lows, closes, zoneATRPeriod) }))
	out.ADX = lastOf(indIfEnough(closes, 28, func() []float64 { return talib.Adx(highs, lows, closes, 14) }))

	if n >= zoneSlowPeriod {
		ema20 := talib.Ema(closes, zoneFastPeriod)
		ema2000 := talib.Ema(closes, zoneSlowPeriod)
		atr := talib.Atr(highs, lows, closes, zoneATRPeriod)
		out.WhiteZone = classifyWhiteZone(candles, highs, lows, ema20, ema2000, atr)
	}

	out.Struct = findSwingPoints(highs, lows)
	return out
}

// classifyWhiteZone classifies the last candle against the band, then lets a
// rubbing tally over the trailing window override the call.
func classifyWhiteZone(candles []Candle, highs, lows, ema20, ema2000, atr []float64) WhiteZone {
	n := len(candles)
	upper := (ema20[n-1] + ema2000[n-1]) / 2
	lower := upper - 1.0*atr[n-1]

	last := candles[n-1]
	bodyTop := math.Max(last.Open, last.Close)
	bodyBottom := math.Min(last.Open, last.Close)
	zoneMax := math.Max(upper, lower)
	zoneMin := math.Min(upper, lower)

	status := ZoneChop
	if bodyBottom > zoneMax {
		status = ZoneUptrend
	} else if bodyTop < zoneMin {
		status = ZoneDowntrend
	}

	// Rubbing: sample every 5th 1m candle over the last 240 minutes and count
	// windows whose 5-bar range intersects the band at that point. A churning
	// market touches the band most of the window regardless of the last body.
	touches, samples := 0, 0
	start := n - rubbingLookback
	if start < 0 {
		start = 0
	}
	for i := start; i < n; i += rubbingStride {
		if i < zoneSlowPeriod-1 {
			continue // band undefined this early in the series
		}
		samples++

		up := (ema20[i] + ema2000[i]) / 2
		down := up - atr[i]
		zMax := math.Max(up, down)
		zMin := math.Min(up, down)

		periodHigh := math.Inf(-1)
		periodLow := math.Inf(1)
		for j := 0; j < rubbingStride && i+j < n; j++ {
			periodHigh = math.Max(periodHigh, highs[i+j])
			periodLow = math.Min(periodLow, lows[i+j])
		}

		if periodLow <= zMax && periodHigh >= zMin {
			touches++
		}
	}

	if touches >= rubbingTouchFloor {
		status = fmt.Sprintf("CHOP_RUBBING (%d/%d touches)", touches, samples)
	}

	return WhiteZone{Status: status, Upper: upper, Lower: lower}
}

// findSwingPoints scans backward for the freshest confirmed 5-bar fractal on
// each side. Confirmation needs two bars after the pivot, so the scan starts
// three from the end. Sides that never confirm fall back to the 20-bar extreme.
func findSwingPoints(highs, lows []float64) SwingPoints {
	var sp SwingPoints
	n := len(highs)

	for i := n - fractalWings - 1; i >= fractalWings; i-- {
		if sp.High == 0 &&
			highs[i] > highs[i-1] && highs[i] > highs[i-2] &&
			highs[i] > highs[i+1] && highs[i] > highs[i+2] {
			sp.High = highs[i]
		}
		if sp.Low == 0 &&
			lows[i] < lows[i-1] && lows[i] < lows[i-2] &&
			lows[i] < lows[i+1] && lows[i] < lows[i+2] {
			sp.Low = lows[i]
		}
		if sp.High != 0 && sp.Low != 0 {
			break
		}
	}

	if sp.High == 0 {
		sp.High = extremeOfTail(highs, structFallbackBars, math.Max, math.Inf(-1))
	}
	if sp.Low == 0 {
		sp.Low = extremeOfTail(lows, structFallbackBars, math.Min, math.Inf(1))
	}
	return sp
}

// cumulativeVWAP is the volume-weighted typical price over the whole series.
func cumulativeVWAP(highs, lows, closes, volumes []float64) float64 {
	var pvSum, volSum float64
	for i := range closes {
		typical := (highs[i] + lows[i] + closes[i]) / 3
		pvSum += typical * volumes[i]
		volSum += volumes[i]
	}
	if volSum == 0 {
		return 0
	}
	return pvSum / volSum
}

func emaIfEnough(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}
	return talib.Ema(values, period)
}

func indIfEnough(values []float64, minLen int, calc func() []float64) []float64 {
	if len(values) <= minLen {
		return nil
	}
	return calc()
}

func lastOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

func extremeOfTail(values []float64, bars int, pick func(float64, float64) float64, seed float64) float64 {
	start := len(values) - bars
	if start < 0 {
		start = 0
	}
	out := seed
	for _, v := range values[start:] {
		out = pick(out, v)
	}
	return out
}
