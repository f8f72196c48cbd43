package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Symbol string

	// Risk & Sizing
	RiskPerTrade   float64 // Fraction of balance risked per entry
	EntryThreshold int     // Minimum oracle confidence to open a position
	AddFraction    float64 // Balance fraction used for pyramid adds
	FeeRate        float64 // Taker fee per side

	// Loop cadence
	DecisionInterval time.Duration // Slow decision loop
	MonitorInterval  time.Duration // Fast SL/TP trigger loop

	// Venue blend
	PrimaryWeight   float64 // Binance
	SecondaryWeight float64 // Bybit

	// Oracle
	GeminiAPIKey string
	GeminiModel  string

	// Telegram
	TelegramToken  string
	TelegramChatID string

	// Persistence
	FirestoreProject string
	CredentialsFile  string
	DryRun           bool // In-memory ledger, no external persistence
	StartingBalance  float64

	HealthListenAddr string
}

// LoadConfig loads variables from .env and returns a Config struct
func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("⚠️  Warning: .env file not found. Relying on system environment variables.")
	}

	cfg := &Config{
		Symbol:           envStr("TRADE_SYMBOL", "BTCUSDT"),
		RiskPerTrade:     envFloat("RISK_PER_TRADE", 0.02),
		EntryThreshold:   envInt("ENTRY_CONFIDENCE_THRESHOLD", 75),
		AddFraction:      envFloat("ADD_FRACTION", 0.01),
		FeeRate:          envFloat("FEE_RATE", 0.0004),
		DecisionInterval: envDuration("DECISION_INTERVAL", 5*time.Minute),
		MonitorInterval:  envDuration("MONITOR_INTERVAL", 10*time.Second),
		PrimaryWeight:    envFloat("PRIMARY_VENUE_WEIGHT", 0.6),
		SecondaryWeight:  envFloat("SECONDARY_VENUE_WEIGHT", 0.4),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      envStr("GEMINI_MODEL", "gemini-2.0-flash"),
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		FirestoreProject: os.Getenv("FIRESTORE_PROJECT_ID"),
		CredentialsFile:  envStr("GOOGLE_CREDENTIALS_FILE", "serviceAccountKey.json"),
		DryRun:           envBool("DRY_RUN", false),
		StartingBalance:  envFloat("STARTING_BALANCE", 1000.0),
		HealthListenAddr: envStr("HEALTH_LISTEN_ADDR", ":8081"),
	}

	if cfg.GeminiAPIKey == "" {
		log.Println("⚠️  CRITICAL: GEMINI_API_KEY missing! Oracle calls will fail and the engine will STAY.")
	}

	return cfg
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
