package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ghost-trader/config"

	"github.com/adshao/go-binance/v2/futures"
)

func main() {
	log.Println("👻 GHOST TRADER: Booting...")

	cfg := config.LoadConfig()

	client := futures.NewClient("", "") // public market data only

	// 1. Persistence
	var store Store
	if cfg.DryRun {
		log.Println("🧪 DRY RUN: Using in-memory ledger")
		store = NewMemoryStore(cfg.StartingBalance)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		fs, err := NewFirestoreStore(ctx, cfg.FirestoreProject, cfg.CredentialsFile, cfg.StartingBalance)
		cancel()
		if err != nil {
			log.Fatalf("🚨 STORE: %v", err)
		}
		defer fs.Close()
		store = fs
	}

	// 2. Alert channels
	notifier := NewNotificationService(cfg.TelegramToken, cfg.TelegramChatID)
	pusher := NewPushService(cfg.CredentialsFile)
	if pusher != nil {
		go pusher.StartWorker()
	}

	// 3. Market plumbing
	candles := NewCandleSource(client, cfg.Symbol)
	aggregator := NewMarketAggregator(client, cfg.Symbol, cfg.PrimaryWeight, cfg.SecondaryWeight)
	feed := NewPriceFeed(cfg.Symbol)
	feed.Start()

	// 4. Decision and execution
	oracle := NewOracle(cfg.GeminiAPIKey, cfg.GeminiModel)
	manager := NewPositionManager(store, cfg, notifier, pusher)
	engine := NewEngine(cfg, store, candles, aggregator, oracle, manager)
	monitor := NewTriggerMonitor(store, manager, feed, client, cfg.Symbol, cfg.MonitorInterval)

	engine.Start()
	monitor.Start()

	// 5. Surfaces
	NewHealthServer(store, feed, cfg.HealthListenAddr).Start()
	if notifier != nil {
		go notifier.StartEventListener(
			func() string { return statusReport(store, feed) },
			engine.Stop,
		)
	}

	log.Println("✅ All systems go")

	// Block until asked to die
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	log.Println("🛑 Shutting down...")
	monitor.Stop()
	feed.Stop()
}

// statusReport renders the /status Telegram reply.
func statusReport(store Store, feed *PriceFeed) string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	balance, err := store.WalletBalance(ctx)
	if err != nil {
		return fmt.Sprintf("⚠️ Wallet unavailable: %v", err)
	}
	legs, err := store.OpenTrades(ctx)
	if err != nil {
		return fmt.Sprintf("⚠️ Trades unavailable: %v", err)
	}

	price, _ := feed.LastPrice()
	report := fmt.Sprintf("💰 *Wallet:* $%.2f\n📈 *Mark Price:* $%.2f\n", balance, price)
	if summary := buildPositionSummary(legs, price); summary != nil {
		report += fmt.Sprintf("📌 *Position:* %s %.4f BTC @ $%.2f\nROE: %s%% | SL $%.0f | TP $%.0f",
			summary.Side, summary.Size, summary.EntryPrice, summary.PnlPercent, summary.StopLoss, summary.TakeProfit)
	} else {
		report += "📌 *Position:* FLAT"
	}
	return report
}
