package main

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/adshao/go-binance/v2/futures"
)

// Candle is one OHLCV bar, ascending by open time.
type Candle struct {
	OpenTime int64 // Unix milliseconds
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Per-request cap on the klines endpoint. Binance allows 1500; 1000 is the safe chunk.
const klinesPageLimit = 1000

// Candle depth per timeframe. 1m needs 2500 bars: EMA2000 plus the rubbing window.
var multiFrameDepth = map[string]int{
	"1m": 2500,
	"5m": 500,
	"1h": 500,
	"4h": 200,
	"1d": 100,
}

// MultiFrameCandles bundles the series the indicator engine consumes.
type MultiFrameCandles struct {
	M1 []Candle
	M5 []Candle
	H1 []Candle
	H4 []Candle
	D1 []Candle
}

// CandleSource fetches historical bars from Binance futures
type CandleSource struct {
	client *futures.Client
	symbol string
}

// NewCandleSource creates the fetcher
func NewCandleSource(client *futures.Client, symbol string) *CandleSource {
	return &CandleSource{client: client, symbol: symbol}
}

// FetchCandles gathers `count` bars for an interval, paging backward through
// history until the count is met or the venue runs out of data. The result is
// ascending by open time and may be shorter than requested on a gap.
func (cs *CandleSource) FetchCandles(ctx context.Context, interval string, count int) ([]Candle, error) {
	var gathered []Candle
	remaining := count
	var endTime int64

	for remaining > 0 {
		limit := remaining
		if limit > klinesPageLimit {
			limit = klinesPageLimit
		}

		svc := cs.client.NewKlinesService().
			Symbol(cs.symbol).
			Interval(interval).
			Limit(limit)
		if endTime > 0 {
			svc.EndTime(endTime)
		}

		klines, err := svc.Do(ctx)
		if err != nil {
			if len(gathered) == 0 {
				return nil, fmt.Errorf("fetch %s klines: %w", interval, err)
			}
			// Partial history is usable; the indicator engine degrades per-period.
			break
		}
		if len(klines) == 0 {
			break
		}

		batch := make([]Candle, len(klines))
		for i, k := range klines {
			batch[i] = parseKline(k)
		}

		gathered = append(batch, gathered...)
		endTime = batch[0].OpenTime - 1
		remaining -= len(batch)

		if len(klines) < limit {
			break // venue exhausted
		}
	}

	return gathered, nil
}

// FetchMultiFrame loads all five timeframes concurrently.
func (cs *CandleSource) FetchMultiFrame(ctx context.Context) (*MultiFrameCandles, error) {
	intervals := []string{"1m", "5m", "1h", "4h", "1d"}
	results := make(map[string][]Candle, len(intervals))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, interval := range intervals {
		wg.Add(1)
		go func(iv string) {
			defer wg.Done()
			candles, err := cs.FetchCandles(ctx, iv, multiFrameDepth[iv])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			results[iv] = candles
		}(interval)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	return &MultiFrameCandles{
		M1: results["1m"],
		M5: results["5m"],
		H1: results["1h"],
		H4: results["4h"],
		D1: results["1d"],
	}, nil
}

func parseKline(k *futures.Kline) Candle {
	open, _ := strconv.ParseFloat(k.Open, 64)
	high, _ := strconv.ParseFloat(k.High, 64)
	low, _ := strconv.ParseFloat(k.Low, 64)
	closes, _ := strconv.ParseFloat(k.Close, 64)
	volume, _ := strconv.ParseFloat(k.Volume, 64)
	return Candle{
		OpenTime: k.OpenTime,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closes,
		Volume:   volume,
	}
}
