package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the growth controller.
type Config struct {
	Port     string
	LogLevel string

	// Trading universe
	Markets []string

	// Capital
	InitialCapital float64

	// Feeds
	UseMockFeed bool
	FeedURL     string // websocket tick stream
	RestURL     string // historical bars endpoint

	// Rate limiting for external trading calls
	RateLimitMax        int
	RateLimitWindowSecs float64

	// Risk
	MaxPositionSize   float64 // fraction of equity per position
	MaxDrawdown       float64 // portfolio risk budget
	EmergencyStopLoss float64 // drawdown threshold triggering emergency stop
	VolatilityLimit   float64 // annualized volatility gate
	StopLossPct       float64
	KellyWinRate      float64 // configurable default, not live statistics
	KellyPayoffRatio  float64
	LiquidationBuffer float64 // minimum |liq - price|/price before de-risking

	// Performance / milestones
	HorizonDays int
	Milestones  []float64

	// Backtest
	BacktestFeeRate   float64
	BacktestSlippage  float64
	RiskFreeDailyRate float64

	// Phase definitions (YAML); compiled defaults when empty or absent.
	PhaseConfigPath string

	// Persistence
	DBPath             string
	EquitySnapshotSecs int

	// API auth
	JWTSecret string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the controller still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8090"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Markets:             splitAndTrim(getEnv("MARKETS", "BTC-PERP,ETH-PERP")),
		InitialCapital:      getEnvFloat("INITIAL_CAPITAL", 100.0),
		UseMockFeed:         getEnv("USE_MOCK_FEED", "true") == "true",
		FeedURL:             getEnv("FEED_URL", ""),
		RestURL:             getEnv("REST_URL", ""),
		RateLimitMax:        getEnvInt("RATE_LIMIT_MAX", 10),
		RateLimitWindowSecs: getEnvFloat("RATE_LIMIT_WINDOW_SECS", 1.0),
		MaxPositionSize:     getEnvFloat("MAX_POSITION_SIZE", 0.1),
		MaxDrawdown:         getEnvFloat("MAX_DRAWDOWN", 0.25),
		EmergencyStopLoss:   getEnvFloat("EMERGENCY_STOP_LOSS", 0.15),
		VolatilityLimit:     getEnvFloat("VOLATILITY_LIMIT", 1.5),
		StopLossPct:         getEnvFloat("STOP_LOSS_PCT", 0.02),
		KellyWinRate:        getEnvFloat("KELLY_WIN_RATE", 0.55),
		KellyPayoffRatio:    getEnvFloat("KELLY_PAYOFF_RATIO", 1.5),
		LiquidationBuffer:   getEnvFloat("LIQUIDATION_BUFFER", 0.05),
		HorizonDays:         getEnvInt("HORIZON_DAYS", 365),
		Milestones:          splitFloats(getEnv("MILESTONES", "1000,10000,100000,1000000")),
		BacktestFeeRate:     getEnvFloat("BACKTEST_FEE_RATE", 0.0005),
		BacktestSlippage:    getEnvFloat("BACKTEST_SLIPPAGE", 0.001),
		RiskFreeDailyRate:   getEnvFloat("RISK_FREE_DAILY_RATE", 0.0001),
		PhaseConfigPath:     getEnv("PHASE_CONFIG_PATH", ""),
		DBPath:              getEnv("DB_PATH", "./data/growth.db"),
		EquitySnapshotSecs:  getEnvInt("EQUITY_SNAPSHOT_SECS", 60),
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func splitFloats(val string) []float64 {
	parts := splitAndTrim(val)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		if f, err := strconv.ParseFloat(p, 64); err == nil {
			out = append(out, f)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
