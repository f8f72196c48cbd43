package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"ghost-trader/config"
)

// Rows of oracle memory read back each cycle (~30m at the default cadence).
const historyDepth = 6

// Closed trades fed back for self-reflection.
const reflectionDepth = 5

// Engine is the decision loop: every cycle it assembles the market picture,
// asks the oracle, records the verdict and executes it. The trigger monitor
// runs beside it; the store's guarded close keeps the two from double-settling.
type Engine struct {
	cfg        *config.Config
	store      Store
	candles    *CandleSource
	aggregator *MarketAggregator
	oracle     *Oracle
	manager    *PositionManager
	mu         sync.Mutex
	kill       chan bool
	stopOnce   sync.Once
}

// NewEngine creates the decision loop
func NewEngine(cfg *config.Config, store Store, candles *CandleSource, aggregator *MarketAggregator, oracle *Oracle, manager *PositionManager) *Engine {
	return &Engine{
		cfg:        cfg,
		store:      store,
		candles:    candles,
		aggregator: aggregator,
		oracle:     oracle,
		manager:    manager,
		kill:       make(chan bool),
	}
}

// Start runs one cycle immediately, then on the configured cadence.
func (e *Engine) Start() {
	go func() {
		e.cycle()
		ticker := time.NewTicker(e.cfg.DecisionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-e.kill:
				return
			case <-ticker.C:
				e.cycle()
			}
		}
	}()
}

// Stop terminates the loop. Safe to call more than once: the Telegram /stop
// command can arrive repeatedly.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.kill) })
}

func (e *Engine) cycle() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.DecisionInterval)
	defer cancel()

	if err := e.runCycle(ctx); err != nil {
		log.Printf("🚨 ENGINE: Cycle failed: %v", err)
		if logErr := e.store.InsertLog(ctx, &LogRow{Type: LogError, Message: err.Error()}); logErr != nil {
			log.Printf("⚠️ ENGINE: Error log failed: %v", logErr)
		}
	}
}

func (e *Engine) runCycle(ctx context.Context) error {
	// 1. Market picture
	snapshot := e.aggregator.Aggregate(ctx)
	if snapshot.Price == 0 {
		return fmt.Errorf("both venues unavailable")
	}

	frames, err := e.candles.FetchMultiFrame(ctx)
	if err != nil {
		return fmt.Errorf("candle fetch: %w", err)
	}
	indicators := CalculateIndicators(frames)

	// 2. Short-term memory from prior cycles
	recentLogs, err := e.store.RecentInfoLogs(ctx, historyDepth)
	if err != nil {
		return fmt.Errorf("recent logs: %w", err)
	}
	oiHistory, fundingHistory := buildMarketHistory(recentLogs, snapshot)
	oiChange := oiChangePercent(recentLogs, snapshot.OpenInterest)

	closedTrades, err := e.store.RecentClosedTrades(ctx, reflectionDepth)
	if err != nil {
		return fmt.Errorf("closed trades: %w", err)
	}

	openLegs, err := e.store.OpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("open trades: %w", err)
	}

	log.Printf("📊 ENGINE: Price $%.2f | Funding %.5f%% | OI %.2f BTC (Δ %.4f%%) | WZ %s",
		snapshot.Price, snapshot.FundingRate, snapshot.OpenInterest, oiChange, indicators.M1.WhiteZone.Status)

	// 3. Ask the oracle
	decision := e.oracle.Decide(ctx, &OracleInput{
		Indicators:       indicators,
		Market:           snapshot,
		OIHistory:        oiHistory,
		FundingHistory:   fundingHistory,
		PreviousDecision: previousDecision(recentLogs),
		RecentTrades:     recentTradesSummary(closedTrades),
		ActivePosition:   buildPositionSummary(openLegs, snapshot.Price),
	})
	log.Printf("🤖 ENGINE: Decision %s (%.0f%%) - %s", decision.Action, decision.Confidence, decision.Reason)

	// 4. Record the cycle before acting on it
	decisionJSON, _ := json.Marshal(decision)
	if err := e.store.InsertLog(ctx, &LogRow{
		Type:       LogInfo,
		Message:    fmt.Sprintf("Checked Market. Action: %s (%.0f%%)", decision.Action, decision.Confidence),
		AIResponse: string(decisionJSON),
		MarketData: LogMarketData{
			Price:   snapshot.Price,
			Funding: snapshot.FundingRate,
			OI:      snapshot.OpenInterest,
			VWAP:    indicators.M5.VWAP,
		},
	}); err != nil {
		return fmt.Errorf("cycle log: %w", err)
	}

	// 5. Execute
	return e.execute(ctx, decision, snapshot.Price, indicators.M5.ATR, openLegs)
}

func (e *Engine) execute(ctx context.Context, decision TradeDecision, price, atr float64, openLegs []Trade) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(openLegs) > 0 {
		switch decision.Action {
		case ActionClose:
			_, err := e.manager.CloseLegs(ctx, openLegs, price, "AI_DECISION")
			return err
		case ActionAdd:
			_, err := e.manager.AddToPosition(ctx, openLegs[0], price)
			return err
		case ActionUpdateSL:
			if decision.StopLoss <= 0 {
				log.Printf("⚠️ ENGINE: UPDATE_SL without a stop level, ignoring")
				return nil
			}
			return e.manager.MoveStopLoss(ctx, openLegs, decision.StopLoss)
		default:
			// HOLD / STAY while positioned: nothing to do
			return nil
		}
	}

	// Flat: only a confident directional call opens
	if decision.Action != ActionLong && decision.Action != ActionShort {
		return nil
	}
	if decision.Confidence < float64(e.cfg.EntryThreshold) {
		log.Printf("😴 ENGINE: %s below threshold (%.0f < %d), staying flat",
			decision.Action, decision.Confidence, e.cfg.EntryThreshold)
		return nil
	}

	_, err := e.manager.OpenPosition(ctx, decision, price, atr)
	return err
}
