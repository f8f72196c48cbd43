package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used for dry runs and tests. It mirrors
// the Firestore semantics, including the status-guarded close.
type MemoryStore struct {
	mu      sync.Mutex
	trades  map[string]*Trade
	logs    []LogRow
	balance float64
	nextID  int
}

// NewMemoryStore creates a store seeded with the starting balance
func NewMemoryStore(startingBalance float64) *MemoryStore {
	return &MemoryStore{
		trades:  make(map[string]*Trade),
		balance: startingBalance,
	}
}

func (ms *MemoryStore) OpenTrades(ctx context.Context) ([]Trade, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var open []Trade
	for _, t := range ms.trades {
		if t.Status == StatusOpen {
			open = append(open, *t)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].OpenedAt.Before(open[j].OpenedAt) })
	return open, nil
}

func (ms *MemoryStore) InsertTrade(ctx context.Context, trade *Trade) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.nextID++
	trade.ID = fmt.Sprintf("trade-%d", ms.nextID)
	copied := *trade
	ms.trades[trade.ID] = &copied
	return nil
}

func (ms *MemoryStore) CloseTrade(ctx context.Context, id string, exitPrice, pnl float64) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	trade, ok := ms.trades[id]
	if !ok {
		return false, fmt.Errorf("trade %s not found", id)
	}
	if trade.Status != StatusOpen {
		return false, nil
	}

	trade.Status = StatusClosed
	trade.ExitPrice = exitPrice
	trade.PnL = pnl
	trade.ClosedAt = time.Now()
	ms.balance += pnl
	return true, nil
}

func (ms *MemoryStore) UpdateStopLoss(ctx context.Context, id string, stopLoss float64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	trade, ok := ms.trades[id]
	if !ok {
		return fmt.Errorf("trade %s not found", id)
	}
	trade.StopLoss = stopLoss
	return nil
}

func (ms *MemoryStore) RecentClosedTrades(ctx context.Context, limit int) ([]Trade, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var closed []Trade
	for _, t := range ms.trades {
		if t.Status == StatusClosed {
			closed = append(closed, *t)
		}
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].ClosedAt.After(closed[j].ClosedAt) })
	if len(closed) > limit {
		closed = closed[:limit]
	}
	return closed, nil
}

func (ms *MemoryStore) WalletBalance(ctx context.Context) (float64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.balance, nil
}

func (ms *MemoryStore) InsertLog(ctx context.Context, row *LogRow) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	ms.logs = append(ms.logs, *row)
	return nil
}

func (ms *MemoryStore) RecentInfoLogs(ctx context.Context, limit int) ([]LogRow, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var rows []LogRow
	for i := len(ms.logs) - 1; i >= 0 && len(rows) < limit; i-- {
		if ms.logs[i].Type == LogInfo {
			rows = append(rows, ms.logs[i])
		}
	}
	return rows, nil
}
