package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// HealthServer exposes liveness endpoints and a read-only status view of the
// wallet and open position.
type HealthServer struct {
	store Store
	feed  *PriceFeed
	addr  string
}

// NewHealthServer creates the server
func NewHealthServer(store Store, feed *PriceFeed, addr string) *HealthServer {
	return &HealthServer{store: store, feed: feed, addr: addr}
}

// Start runs the HTTP server in the background.
func (hs *HealthServer) Start() {
	mux := http.NewServeMux()

	// Health Check
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// System Health Ping - Returns server time
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "ok",
			"server_time": time.Now().UnixMilli(),
			"timestamp":   time.Now().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/api/status", hs.handleStatus)

	go func() {
		log.Printf("🌐 Health server running on %s", hs.addr)
		if err := http.ListenAndServe(hs.addr, mux); err != nil {
			log.Fatal(err)
		}
	}()
}

func (hs *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	balance, err := hs.store.WalletBalance(ctx)
	if err != nil {
		http.Error(w, "wallet unavailable", http.StatusInternalServerError)
		return
	}
	legs, err := hs.store.OpenTrades(ctx)
	if err != nil {
		http.Error(w, "trades unavailable", http.StatusInternalServerError)
		return
	}

	price, _ := hs.feed.LastPrice()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"balance":    balance,
		"mark_price": price,
		"open_legs":  legs,
		"position":   buildPositionSummary(legs, price),
	})
}
