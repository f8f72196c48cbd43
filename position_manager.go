package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"ghost-trader/config"
)

// Alerter pushes human-facing trade alerts. Nil-safe at every call site so
// the engine runs fine without Telegram or FCM configured.
type Alerter interface {
	Send(message string)
}

// PositionManager owns the paper position lifecycle: entries, pyramiding,
// stop updates and settlement against the wallet.
type PositionManager struct {
	store    Store
	cfg      *config.Config
	alerters []Alerter
}

// NewPositionManager creates the manager
func NewPositionManager(store Store, cfg *config.Config, alerters ...Alerter) *PositionManager {
	return &PositionManager{store: store, cfg: cfg, alerters: alerters}
}

// dynamicLeverage scales buying power down as volatility rises.
func dynamicLeverage(atr, price float64) float64 {
	if price == 0 {
		return 5
	}
	volatility := atr / price
	if volatility < 0.005 {
		return 20
	}
	if volatility < 0.01 {
		return 10
	}
	return 5
}

// positionNotional sizes an entry from risk budget and stop distance, capped
// by leverage-scaled buying power. Stop distance is floored at 1% so a stop
// placed on top of the entry cannot explode the size.
func positionNotional(balance, price, stopLoss, riskPerTrade, leverage float64) float64 {
	slDistance := math.Abs(price-stopLoss) / price
	if slDistance < 0.01 {
		slDistance = 0.01
	}
	notional := balance * riskPerTrade / slDistance
	maxBuyingPower := balance * leverage
	if notional > maxBuyingPower {
		notional = maxBuyingPower
	}
	return notional
}

// realizedPnL is the net result of one leg: direction-signed gross move minus
// taker fees on both the entry and exit notionals.
func realizedPnL(side string, entry, exit, size, feeRate float64) float64 {
	direction := 1.0
	if side == ActionShort {
		direction = -1.0
	}
	gross := (exit - entry) * size * direction
	fees := entry*size*feeRate + exit*size*feeRate
	return gross - fees
}

// OpenPosition sizes and records a new leg from an entry decision.
func (pm *PositionManager) OpenPosition(ctx context.Context, decision TradeDecision, price, atr float64) (*Trade, error) {
	balance, err := pm.store.WalletBalance(ctx)
	if err != nil {
		return nil, err
	}

	riskPerTrade := decision.RiskPerTrade
	if riskPerTrade <= 0 {
		riskPerTrade = pm.cfg.RiskPerTrade
	}

	leverage := dynamicLeverage(atr, price)
	notional := positionNotional(balance, price, decision.StopLoss, riskPerTrade, leverage)
	size := notional / price

	trade := &Trade{
		Symbol:     pm.cfg.Symbol,
		Side:       decision.Action,
		EntryPrice: price,
		Leverage:   leverage,
		Size:       size,
		Status:     StatusOpen,
		StopLoss:   decision.StopLoss,
		TakeProfit: decision.TakeProfit,
		OpenedAt:   time.Now(),
	}
	if err := pm.store.InsertTrade(ctx, trade); err != nil {
		return nil, err
	}

	log.Printf("🚀 POSITION: Opened %s %.4f @ $%.2f (%.0fx, risk %.1f%%)",
		trade.Side, trade.Size, trade.EntryPrice, trade.Leverage, riskPerTrade*100)
	pm.logTrade(ctx, fmt.Sprintf("Opened %s %.4f @ $%.2f (SL $%.0f / TP $%.0f)",
		trade.Side, trade.Size, trade.EntryPrice, trade.StopLoss, trade.TakeProfit))
	pm.alert(fmt.Sprintf("🚀 %s OPENED\nSize: %.4f BTC @ $%.2f\nLeverage: %.0fx\nSL: $%.0f | TP: $%.0f",
		trade.Side, trade.Size, trade.EntryPrice, trade.Leverage, trade.StopLoss, trade.TakeProfit))
	return trade, nil
}

// AddToPosition pyramids a small leg onto an existing position. The new leg
// inherits the side, leverage and protective levels of the base leg.
func (pm *PositionManager) AddToPosition(ctx context.Context, base Trade, price float64) (*Trade, error) {
	balance, err := pm.store.WalletBalance(ctx)
	if err != nil {
		return nil, err
	}

	notional := balance * pm.cfg.AddFraction
	trade := &Trade{
		Symbol:     pm.cfg.Symbol,
		Side:       base.Side,
		EntryPrice: price,
		Leverage:   base.Leverage,
		Size:       notional / price,
		Status:     StatusOpen,
		StopLoss:   base.StopLoss,
		TakeProfit: base.TakeProfit,
		OpenedAt:   time.Now(),
	}
	if err := pm.store.InsertTrade(ctx, trade); err != nil {
		return nil, err
	}

	log.Printf("🔥 POSITION: Pyramided %s %.4f @ $%.2f", trade.Side, trade.Size, trade.EntryPrice)
	pm.logTrade(ctx, fmt.Sprintf("Pyramided %s %.4f @ $%.2f", trade.Side, trade.Size, trade.EntryPrice))
	pm.alert(fmt.Sprintf("🔥 ADDED to %s\n+%.4f BTC @ $%.2f", trade.Side, trade.Size, trade.EntryPrice))
	return trade, nil
}

// MoveStopLoss rewrites the stop on every open leg.
func (pm *PositionManager) MoveStopLoss(ctx context.Context, legs []Trade, stopLoss float64) error {
	for _, leg := range legs {
		if err := pm.store.UpdateStopLoss(ctx, leg.ID, stopLoss); err != nil {
			return err
		}
	}
	log.Printf("🛡️ POSITION: Stop loss moved to $%.2f on %d leg(s)", stopLoss, len(legs))
	pm.logTrade(ctx, fmt.Sprintf("Stop loss moved to $%.2f on %d leg(s)", stopLoss, len(legs)))
	pm.alert(fmt.Sprintf("🛡️ SL MOVED to $%.2f", stopLoss))
	return nil
}

// CloseLegs settles every given leg at the given price. Legs another path
// already settled are skipped silently. Returns the net PnL actually booked.
func (pm *PositionManager) CloseLegs(ctx context.Context, legs []Trade, price float64, reason string) (float64, error) {
	var total float64
	var settled int
	for _, leg := range legs {
		pnl := realizedPnL(leg.Side, leg.EntryPrice, price, leg.Size, pm.cfg.FeeRate)
		closed, err := pm.store.CloseTrade(ctx, leg.ID, price, pnl)
		if err != nil {
			return total, err
		}
		if !closed {
			continue
		}
		settled++
		total += pnl
		log.Printf("💰 POSITION: Closed %s leg %s @ $%.2f | PnL $%.2f (%s)",
			leg.Side, leg.ID, price, pnl, reason)
	}
	if settled == 0 {
		return 0, nil
	}

	pm.logTrade(ctx, fmt.Sprintf("Closed %d leg(s) @ $%.2f | Net PnL $%.2f (%s)", settled, price, total, reason))
	emoji := "✅"
	if total < 0 {
		emoji = "🔻"
	}
	pm.alert(fmt.Sprintf("%s POSITION CLOSED (%s)\nExit: $%.2f\nNet PnL: $%.2f", emoji, reason, price, total))
	return total, nil
}

func (pm *PositionManager) logTrade(ctx context.Context, message string) {
	if err := pm.store.InsertLog(ctx, &LogRow{Type: LogTrade, Message: message}); err != nil {
		log.Printf("⚠️ POSITION: Trade log failed: %v", err)
	}
}

func (pm *PositionManager) alert(message string) {
	for _, a := range pm.alerters {
		if a != nil {
			a.Send(message)
		}
	}
}
