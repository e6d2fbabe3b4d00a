package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"papertrader/internal/adapters/logger" // For LOG_LEVEL parsing
)

// Config holds all application configuration.
type Config struct {
	// Paper account
	StartingBalance decimal.Decimal // Cash balance a fresh ledger starts with, in euros
	DeviceID        string          // Device owning the alert store

	// Alerts
	MaxAlertsPerDevice int           // Per-device alert rule cap
	AlertCooldown      time.Duration // Minimum time between two firings of the same rule
	EvalInterval       time.Duration // Alert evaluation tick interval

	// Quote Source
	QuoteSource   string                     // "sim" or "binance"
	InitialPrices map[string]decimal.Decimal // Instruments and starting prices for the sim feed
	SimSeed       int64                      // Random-walk seed
	SimDrift      float64                    // Per-tick drift of the sim feed
	SimVolatility float64                    // Per-tick volatility of the sim feed

	// Binance (only used when QuoteSource == "binance")
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Database
	DBPath string

	// Logging
	LogLevel zerolog.Level
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	balanceStr := getEnv("STARTING_BALANCE", "10000")
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STARTING_BALANCE %q: %v", balanceStr, err))
	} else if balance.IsNegative() {
		errs = append(errs, "STARTING_BALANCE cannot be negative")
	} else {
		cfg.StartingBalance = balance
	}

	cfg.DeviceID = getEnv("DEVICE_ID", "local-device")
	if cfg.DeviceID == "" {
		errs = append(errs, "DEVICE_ID must be set")
	}

	cfg.MaxAlertsPerDevice = getEnvAsInt("MAX_ALERTS_PER_DEVICE", 20)
	if cfg.MaxAlertsPerDevice <= 0 {
		errs = append(errs, "MAX_ALERTS_PER_DEVICE must be positive")
	}

	cooldownSeconds := getEnvAsInt("ALERT_COOLDOWN_SECONDS", 300)
	if cooldownSeconds <= 0 {
		errs = append(errs, "ALERT_COOLDOWN_SECONDS must be positive")
	}
	cfg.AlertCooldown = time.Duration(cooldownSeconds) * time.Second

	evalSeconds := getEnvAsInt("EVAL_INTERVAL_SECONDS", 30)
	if evalSeconds <= 0 {
		errs = append(errs, "EVAL_INTERVAL_SECONDS must be positive")
	}
	cfg.EvalInterval = time.Duration(evalSeconds) * time.Second

	cfg.QuoteSource = strings.ToLower(getEnv("QUOTE_SOURCE", "sim"))
	if cfg.QuoteSource != "sim" && cfg.QuoteSource != "binance" {
		errs = append(errs, fmt.Sprintf("QUOTE_SOURCE must be 'sim' or 'binance', got %q", cfg.QuoteSource))
	}

	symbolsStr := getEnv("SYMBOLS", "AAPL:190.50,MSFT:415.30,TSLA:245.70")
	initialPrices, err := parseSymbols(symbolsStr)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SYMBOLS: %v", err))
	}
	cfg.InitialPrices = initialPrices

	cfg.SimSeed = int64(getEnvAsInt("SIM_SEED", 42))
	cfg.SimDrift = getEnvAsFloat("SIM_DRIFT", 0.0002)
	cfg.SimVolatility = getEnvAsFloat("SIM_VOLATILITY", 0.01)
	if cfg.SimVolatility < 0 {
		errs = append(errs, "SIM_VOLATILITY cannot be negative")
	}

	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	cfg.DBPath = getEnv("DB_PATH", "./data/papertrader.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// parseSymbols parses "ID:price,ID:price" pairs into an initial price map.
func parseSymbols(s string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("expected 'SYMBOL:price', got %q", pair)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid price for %s: %w", parts[0], err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("price for %s must be positive", parts[0])
		}
		out[strings.TrimSpace(parts[0])] = price
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no symbols configured")
	}
	return out, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
