package main

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
)

// Stale streamed prices are distrusted and replaced with a REST lookup.
const feedMaxAge = 10 * time.Second

// TriggerMonitor sweeps open legs on a short cadence and settles any whose
// stop loss or take profit the price has crossed. It runs independently of
// the decision loop so protective exits never wait on the oracle.
type TriggerMonitor struct {
	store    Store
	manager  *PositionManager
	feed     *PriceFeed
	client   *futures.Client
	symbol   string
	interval time.Duration
	kill     chan bool
	stopOnce sync.Once
}

// NewTriggerMonitor creates the monitor
func NewTriggerMonitor(store Store, manager *PositionManager, feed *PriceFeed, client *futures.Client, symbol string, interval time.Duration) *TriggerMonitor {
	return &TriggerMonitor{
		store:    store,
		manager:  manager,
		feed:     feed,
		client:   client,
		symbol:   symbol,
		interval: interval,
		kill:     make(chan bool),
	}
}

// Start launches the sweep loop
func (tm *TriggerMonitor) Start() {
	go tm.run()
}

// Stop terminates the sweep loop. Safe to call more than once.
func (tm *TriggerMonitor) Stop() {
	tm.stopOnce.Do(func() { close(tm.kill) })
}

func (tm *TriggerMonitor) run() {
	log.Printf("🎯 MONITOR: Trigger sweep every %s", tm.interval)
	ticker := time.NewTicker(tm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-tm.kill:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), tm.interval)
			tm.sweep(ctx)
			cancel()
		}
	}
}

func (tm *TriggerMonitor) sweep(ctx context.Context) {
	legs, err := tm.store.OpenTrades(ctx)
	if err != nil {
		log.Printf("⚠️ MONITOR: Open trades fetch failed: %v", err)
		return
	}
	if len(legs) == 0 {
		return
	}

	price := tm.currentPrice(ctx)
	if price == 0 {
		log.Printf("⚠️ MONITOR: No usable price, skipping sweep")
		return
	}

	for _, leg := range legs {
		if reason, hit := checkTrigger(leg, price); hit {
			if _, err := tm.manager.CloseLegs(ctx, []Trade{leg}, price, reason); err != nil {
				log.Printf("🚨 MONITOR: Close failed for leg %s: %v", leg.ID, err)
			}
		}
	}
}

// checkTrigger reports whether the price has crossed the leg's protective
// levels. A zero level means none is set.
func checkTrigger(leg Trade, price float64) (string, bool) {
	switch leg.Side {
	case ActionLong:
		if leg.TakeProfit > 0 && price >= leg.TakeProfit {
			return "TAKE_PROFIT", true
		}
		if leg.StopLoss > 0 && price <= leg.StopLoss {
			return "STOP_LOSS", true
		}
	case ActionShort:
		if leg.TakeProfit > 0 && price <= leg.TakeProfit {
			return "TAKE_PROFIT", true
		}
		if leg.StopLoss > 0 && price >= leg.StopLoss {
			return "STOP_LOSS", true
		}
	}
	return "", false
}

func (tm *TriggerMonitor) currentPrice(ctx context.Context) float64 {
	if tm.feed != nil {
		if price, age := tm.feed.LastPrice(); price > 0 && age < feedMaxAge {
			return price
		}
	}

	// Feed down or stale, fall back to REST
	prices, err := tm.client.NewListPricesService().Symbol(tm.symbol).Do(ctx)
	if err != nil || len(prices) == 0 {
		return 0
	}
	price, _ := strconv.ParseFloat(prices[0].Price, 64)
	return price
}
