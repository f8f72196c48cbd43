package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
)

const bybitBaseURL = "https://api.bybit.com"

// MarketSnapshot is the blended venue view the oracle trades on.
type MarketSnapshot struct {
	Price        float64 `json:"price"`
	FundingRate  float64 `json:"fundingRate"`
	OpenInterest float64 `json:"openInterest"` // base-asset quantity
}

// MarketAggregator blends Binance and Bybit into one snapshot.
// Prices and funding are weight-averaged; open interest is summed as a
// liquidity total. A dead venue (price 0) hands the snapshot to the other.
type MarketAggregator struct {
	client          *futures.Client
	httpClient      *http.Client
	symbol          string
	primaryWeight   float64
	secondaryWeight float64
}

// NewMarketAggregator creates the two-venue aggregator
func NewMarketAggregator(client *futures.Client, symbol string, primaryWeight, secondaryWeight float64) *MarketAggregator {
	return &MarketAggregator{
		client:          client,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		symbol:          symbol,
		primaryWeight:   primaryWeight,
		secondaryWeight: secondaryWeight,
	}
}

// Aggregate fetches both venues concurrently and blends the result.
func (ma *MarketAggregator) Aggregate(ctx context.Context) MarketSnapshot {
	var binance, bybit MarketSnapshot
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		binance = ma.fetchBinance(ctx)
	}()
	go func() {
		defer wg.Done()
		bybit = ma.fetchBybit(ctx)
	}()
	wg.Wait()

	return blendSnapshots(binance, bybit, ma.primaryWeight, ma.secondaryWeight)
}

func blendSnapshots(primary, secondary MarketSnapshot, wPrimary, wSecondary float64) MarketSnapshot {
	if primary.Price == 0 {
		return secondary
	}
	if secondary.Price == 0 {
		return primary
	}
	return MarketSnapshot{
		Price:        primary.Price*wPrimary + secondary.Price*wSecondary,
		FundingRate:  primary.FundingRate*wPrimary + secondary.FundingRate*wSecondary,
		OpenInterest: primary.OpenInterest + secondary.OpenInterest,
	}
}

func (ma *MarketAggregator) fetchBinance(ctx context.Context) MarketSnapshot {
	var snap MarketSnapshot
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		prices, err := ma.client.NewListPricesService().Symbol(ma.symbol).Do(ctx)
		if err != nil || len(prices) == 0 {
			log.Printf("⚠️ Binance price fetch failed: %v", err)
			return
		}
		snap.Price, _ = strconv.ParseFloat(prices[0].Price, 64)
	}()
	go func() {
		defer wg.Done()
		premiums, err := ma.client.NewPremiumIndexService().Symbol(ma.symbol).Do(ctx)
		if err != nil || len(premiums) == 0 {
			log.Printf("⚠️ Binance funding fetch failed: %v", err)
			return
		}
		snap.FundingRate, _ = strconv.ParseFloat(premiums[0].LastFundingRate, 64)
	}()
	go func() {
		defer wg.Done()
		oi, err := ma.client.NewGetOpenInterestService().Symbol(ma.symbol).Do(ctx)
		if err != nil {
			log.Printf("⚠️ Binance open interest fetch failed: %v", err)
			return
		}
		snap.OpenInterest, _ = strconv.ParseFloat(oi.OpenInterest, 64)
	}()
	wg.Wait()

	if snap.Price == 0 {
		return MarketSnapshot{}
	}
	return snap
}

type bybitTickerResponse struct {
	Result struct {
		List []struct {
			LastPrice   string `json:"lastPrice"`
			FundingRate string `json:"fundingRate"`
		} `json:"list"`
	} `json:"result"`
}

type bybitOIResponse struct {
	Result struct {
		List []struct {
			OpenInterest string `json:"openInterest"`
		} `json:"list"`
	} `json:"result"`
}

func (ma *MarketAggregator) fetchBybit(ctx context.Context) MarketSnapshot {
	tickerURL := fmt.Sprintf("%s/v5/market/tickers?category=linear&symbol=%s", bybitBaseURL, ma.symbol)
	oiURL := fmt.Sprintf("%s/v5/market/open-interest?category=linear&symbol=%s&intervalTime=5min&limit=1", bybitBaseURL, ma.symbol)

	var ticker bybitTickerResponse
	if err := ma.getJSON(ctx, tickerURL, &ticker); err != nil {
		log.Printf("⚠️ Bybit ticker fetch failed: %v", err)
		return MarketSnapshot{}
	}
	var oi bybitOIResponse
	if err := ma.getJSON(ctx, oiURL, &oi); err != nil {
		log.Printf("⚠️ Bybit open interest fetch failed: %v", err)
		return MarketSnapshot{}
	}
	if len(ticker.Result.List) == 0 || len(oi.Result.List) == 0 {
		log.Printf("⚠️ Bybit returned empty result lists")
		return MarketSnapshot{}
	}

	var snap MarketSnapshot
	snap.Price, _ = strconv.ParseFloat(ticker.Result.List[0].LastPrice, 64)
	snap.FundingRate, _ = strconv.ParseFloat(ticker.Result.List[0].FundingRate, 64)
	snap.OpenInterest, _ = strconv.ParseFloat(oi.Result.List[0].OpenInterest, 64)
	return snap
}

func (ma *MarketAggregator) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := ma.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
