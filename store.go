package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Trade lifecycle states
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// Log row types
const (
	LogInfo  = "INFO"
	LogTrade = "TRADE"
	LogError = "ERROR"
)

var errAlreadyClosed = errors.New("trade already closed")

// Trade is one position leg. ADD pyramiding inserts additional legs, so an
// open position can span several rows sharing a side.
type Trade struct {
	ID         string    `firestore:"-" json:"id"`
	Symbol     string    `firestore:"symbol" json:"symbol"`
	Side       string    `firestore:"side" json:"side"`
	EntryPrice float64   `firestore:"entry_price" json:"entry_price"`
	ExitPrice  float64   `firestore:"exit_price" json:"exit_price"`
	Leverage   float64   `firestore:"leverage" json:"leverage"`
	Size       float64   `firestore:"size" json:"size"`
	Status     string    `firestore:"status" json:"status"`
	StopLoss   float64   `firestore:"stop_loss" json:"stop_loss"`
	TakeProfit float64   `firestore:"take_profit" json:"take_profit"`
	PnL        float64   `firestore:"pnl" json:"pnl"`
	OpenedAt   time.Time `firestore:"opened_at" json:"opened_at"`
	ClosedAt   time.Time `firestore:"closed_at" json:"closed_at"`
}

// LogMarketData is the market context attached to each cycle log.
type LogMarketData struct {
	Price   float64 `firestore:"price" json:"price"`
	Funding float64 `firestore:"funding" json:"funding"`
	OI      float64 `firestore:"oi" json:"oi"`
	VWAP    float64 `firestore:"vwap" json:"vwap"`
}

// LogRow is one engine log entry. INFO rows double as the oracle's short-term
// memory: the history builder reads OI, funding and the previous decision
// back out of them.
type LogRow struct {
	Type       string        `firestore:"type" json:"type"`
	Message    string        `firestore:"message" json:"message"`
	AIResponse string        `firestore:"ai_response" json:"ai_response"`
	MarketData LogMarketData `firestore:"market_data" json:"market_data"`
	CreatedAt  time.Time     `firestore:"created_at" json:"created_at"`
}

// Store is the persistence surface of the engine. CloseTrade must be
// idempotent: the decision loop and the trigger monitor can race on the same
// leg, and exactly one of them may settle it.
type Store interface {
	OpenTrades(ctx context.Context) ([]Trade, error)
	InsertTrade(ctx context.Context, trade *Trade) error
	// CloseTrade settles a leg and credits the realized PnL to the wallet in
	// one atomic step. Returns false when the leg was already closed.
	CloseTrade(ctx context.Context, id string, exitPrice, pnl float64) (bool, error)
	UpdateStopLoss(ctx context.Context, id string, stopLoss float64) error
	RecentClosedTrades(ctx context.Context, limit int) ([]Trade, error)
	WalletBalance(ctx context.Context) (float64, error)
	InsertLog(ctx context.Context, row *LogRow) error
	// RecentInfoLogs returns INFO rows newest-first.
	RecentInfoLogs(ctx context.Context, limit int) ([]LogRow, error)
}

// FirestoreStore keeps trades, the wallet and engine logs in Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

const walletDocID = "main"

// NewFirestoreStore connects to Firestore and seeds the wallet document if it
// does not exist yet.
func NewFirestoreStore(ctx context.Context, projectID, credFile string, startingBalance float64) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID, option.WithCredentialsFile(credFile))
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}

	fs := &FirestoreStore{client: client}
	if err := fs.ensureWallet(ctx, startingBalance); err != nil {
		client.Close()
		return nil, err
	}

	log.Println("✅ STORE: Firestore connected")
	return fs, nil
}

// Close releases the underlying client.
func (fs *FirestoreStore) Close() error {
	return fs.client.Close()
}

func (fs *FirestoreStore) ensureWallet(ctx context.Context, startingBalance float64) error {
	ref := fs.client.Collection("wallet").Doc(walletDocID)
	_, err := ref.Get(ctx)
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("read wallet: %w", err)
	}

	_, err = ref.Set(ctx, map[string]interface{}{
		"balance":    startingBalance,
		"updated_at": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("seed wallet: %w", err)
	}
	log.Printf("💰 STORE: Wallet seeded with $%.2f", startingBalance)
	return nil
}

func (fs *FirestoreStore) OpenTrades(ctx context.Context) ([]Trade, error) {
	// Oldest leg first: callers treat the first row as the primary leg.
	iter := fs.client.Collection("trades").
		Where("status", "==", StatusOpen).
		OrderBy("opened_at", firestore.Asc).
		Documents(ctx)
	return collectTrades(iter)
}

func (fs *FirestoreStore) InsertTrade(ctx context.Context, trade *Trade) error {
	ref, _, err := fs.client.Collection("trades").Add(ctx, trade)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	trade.ID = ref.ID
	return nil
}

func (fs *FirestoreStore) CloseTrade(ctx context.Context, id string, exitPrice, pnl float64) (bool, error) {
	tradeRef := fs.client.Collection("trades").Doc(id)
	walletRef := fs.client.Collection("wallet").Doc(walletDocID)

	err := fs.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		tradeDoc, err := tx.Get(tradeRef)
		if err != nil {
			return err
		}
		var trade Trade
		if err := tradeDoc.DataTo(&trade); err != nil {
			return err
		}
		if trade.Status != StatusOpen {
			return errAlreadyClosed
		}

		walletDoc, err := tx.Get(walletRef)
		if err != nil {
			return err
		}
		balance, err := walletDoc.DataAt("balance")
		if err != nil {
			return err
		}
		current, _ := balance.(float64)

		if err := tx.Update(tradeRef, []firestore.Update{
			{Path: "status", Value: StatusClosed},
			{Path: "exit_price", Value: exitPrice},
			{Path: "pnl", Value: pnl},
			{Path: "closed_at", Value: time.Now()},
		}); err != nil {
			return err
		}
		return tx.Update(walletRef, []firestore.Update{
			{Path: "balance", Value: current + pnl},
			{Path: "updated_at", Value: time.Now()},
		})
	})
	if errors.Is(err, errAlreadyClosed) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("close trade %s: %w", id, err)
	}
	return true, nil
}

func (fs *FirestoreStore) UpdateStopLoss(ctx context.Context, id string, stopLoss float64) error {
	_, err := fs.client.Collection("trades").Doc(id).Update(ctx, []firestore.Update{
		{Path: "stop_loss", Value: stopLoss},
	})
	if err != nil {
		return fmt.Errorf("update stop loss %s: %w", id, err)
	}
	return nil
}

func (fs *FirestoreStore) RecentClosedTrades(ctx context.Context, limit int) ([]Trade, error) {
	iter := fs.client.Collection("trades").
		Where("status", "==", StatusClosed).
		OrderBy("closed_at", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	return collectTrades(iter)
}

func (fs *FirestoreStore) WalletBalance(ctx context.Context) (float64, error) {
	doc, err := fs.client.Collection("wallet").Doc(walletDocID).Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("read wallet: %w", err)
	}
	balance, err := doc.DataAt("balance")
	if err != nil {
		return 0, fmt.Errorf("read wallet balance: %w", err)
	}
	value, _ := balance.(float64)
	return value, nil
}

func (fs *FirestoreStore) InsertLog(ctx context.Context, row *LogRow) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	_, _, err := fs.client.Collection("logs").Add(ctx, row)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

func (fs *FirestoreStore) RecentInfoLogs(ctx context.Context, limit int) ([]LogRow, error) {
	iter := fs.client.Collection("logs").
		Where("type", "==", LogInfo).
		OrderBy("created_at", firestore.Desc).
		Limit(limit).
		Documents(ctx)

	var rows []LogRow
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate logs: %w", err)
		}
		var row LogRow
		if err := doc.DataTo(&row); err != nil {
			return nil, fmt.Errorf("decode log row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func collectTrades(iter *firestore.DocumentIterator) ([]Trade, error) {
	var trades []Trade
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate trades: %w", err)
		}
		var trade Trade
		if err := doc.DataTo(&trade); err != nil {
			return nil, fmt.Errorf("decode trade: %w", err)
		}
		trade.ID = doc.Ref.ID
		trades = append(trades, trade)
	}
	return trades, nil
}
