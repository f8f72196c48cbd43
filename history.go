package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// buildMarketHistory turns recent INFO rows (newest first) into oldest-first
// OI and funding series, with the live snapshot appended as the latest point.
func buildMarketHistory(logs []LogRow, current MarketSnapshot) (oiHistory, fundingHistory []float64) {
	for i := len(logs) - 1; i >= 0; i-- {
		oiHistory = append(oiHistory, logs[i].MarketData.OI)
		fundingHistory = append(fundingHistory, logs[i].MarketData.Funding)
	}
	oiHistory = append(oiHistory, current.OpenInterest)
	fundingHistory = append(fundingHistory, current.FundingRate)
	return oiHistory, fundingHistory
}

// previousDecision recovers the last cycle's verdict from the freshest INFO
// row. A missing or garbled payload just means no prior context.
func previousDecision(logs []LogRow) *TradeDecision {
	if len(logs) == 0 || logs[0].AIResponse == "" {
		return nil
	}
	var decision TradeDecision
	if err := json.Unmarshal([]byte(logs[0].AIResponse), &decision); err != nil {
		return nil
	}
	return &decision
}

// oiChangePercent compares live open interest against the previous cycle's.
func oiChangePercent(logs []LogRow, currentOI float64) float64 {
	previous := currentOI
	if len(logs) > 0 && logs[0].MarketData.OI != 0 {
		previous = logs[0].MarketData.OI
	}
	if previous == 0 {
		return 0
	}
	return (currentOI - previous) / previous * 100
}

// recentTradesSummary renders the last closed trades into the self-reflection
// line the oracle reads.
func recentTradesSummary(trades []Trade) string {
	if len(trades) == 0 {
		return "No recent closed trades."
	}

	wins := 0
	entries := make([]string, len(trades))
	for i, t := range trades {
		outcome := "LOSS"
		if t.PnL > 0 {
			outcome = "WIN"
			wins++
		}
		entries[i] = fmt.Sprintf("%s (%s $%.2f)", t.Side, outcome, t.PnL)
	}
	return fmt.Sprintf("Last %d Trades: %d Wins, %d Losses. History: %s",
		len(trades), wins, len(trades)-wins, strings.Join(entries, ", "))
}

// buildPositionSummary digests the open legs into the oracle's position view.
// The first leg anchors entry and protective levels; size is summed so the
// oracle sees the full exposure after pyramiding.
func buildPositionSummary(legs []Trade, price float64) *ActivePositionSummary {
	if len(legs) == 0 {
		return nil
	}

	base := legs[0]
	totalSize := 0.0
	for _, leg := range legs {
		totalSize += leg.Size
	}

	move := (price - base.EntryPrice) / base.EntryPrice
	if base.Side == ActionShort {
		move = -move
	}
	roe := move * base.Leverage * 100

	return &ActivePositionSummary{
		Side:       base.Side,
		EntryPrice: base.EntryPrice,
		Size:       totalSize,
		PnlPercent: fmt.Sprintf("%.2f", roe),
		TakeProfit: base.TakeProfit,
		StopLoss:   base.StopLoss,
	}
}
