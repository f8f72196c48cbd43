package main

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// PriceFeed keeps a live mark price off the futures websocket so the trigger
// monitor never waits on a REST round trip.
type PriceFeed struct {
	symbol     string
	mu         sync.Mutex
	lastPrice  float64
	lastUpdate time.Time
	kill       chan bool
	stopOnce   sync.Once
}

type markPriceMsg struct {
	EventType string `json:"e"`
	Price     string `json:"p"`
}

// NewPriceFeed creates the feed
func NewPriceFeed(symbol string) *PriceFeed {
	return &PriceFeed{
		symbol: symbol,
		kill:   make(chan bool),
	}
}

// Start launches the stream loop
func (pf *PriceFeed) Start() {
	go pf.run()
}

// Stop terminates the stream loop. Safe to call more than once.
func (pf *PriceFeed) Stop() {
	pf.stopOnce.Do(func() { close(pf.kill) })
}

func (pf *PriceFeed) run() {
	log.Printf("📡 PRICE FEED: Starting mark price stream for %s", pf.symbol)

	url := fmt.Sprintf("wss://fstream.binance.com/ws/%s@markPrice@1s", strings.ToLower(pf.symbol))

	// Retry Loop
	for {
		select {
		case <-pf.kill:
			return
		default:
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				log.Printf("⚠️ PRICE FEED: Dial failed: %v", err)
				time.Sleep(5 * time.Second)
				continue
			}

			// Read Loop
			for {
				_, message, err := conn.ReadMessage()
				if err != nil {
					conn.Close()
					break
				}
				pf.handleMessage(message)
			}
		}
	}
}

func (pf *PriceFeed) handleMessage(msg []byte) {
	var update markPriceMsg
	if err := json.Unmarshal(msg, &update); err != nil {
		return
	}
	if update.EventType != "markPriceUpdate" {
		return
	}
	price, err := strconv.ParseFloat(update.Price, 64)
	if err != nil || price <= 0 {
		return
	}

	pf.mu.Lock()
	pf.lastPrice = price
	pf.lastUpdate = time.Now()
	pf.mu.Unlock()
}

// LastPrice returns the freshest streamed price and its age. Callers treat a
// stale or zero price as "no feed" and fall back to REST.
func (pf *PriceFeed) LastPrice() (float64, time.Duration) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pf.lastPrice == 0 {
		return 0, 0
	}
	return pf.lastPrice, time.Since(pf.lastUpdate)
}
