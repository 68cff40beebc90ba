package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the bot
type Config struct {
	// Telegram
	TelegramToken string

	// Providers
	OddsAPIKey     string
	OddsAPIURL     string
	ScoresAPIKey   string
	ScoresAPIURL   string
	Bookmaker      string // preferred bookmaker key for spread extraction
	RequestTimeout time.Duration

	// Monitoring
	PollInterval time.Duration
	AlertMargin  decimal.Decimal // points behind the spread before alerting

	// Mode
	Debug bool

	// Database
	DatabasePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		// Telegram
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		// Providers
		OddsAPIKey:     os.Getenv("ODDS_API_KEY"),
		OddsAPIURL:     getEnv("ODDS_API_URL", "https://api.the-odds-api.com/v4"),
		ScoresAPIKey:   os.Getenv("BALLDONTLIE_API_KEY"),
		ScoresAPIURL:   getEnv("BALLDONTLIE_API_URL", "https://api.balldontlie.io/v1"),
		Bookmaker:      getEnv("PREFERRED_BOOKMAKER", "draftkings"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),

		// Monitoring
		PollInterval: getEnvDuration("POLL_INTERVAL", 300*time.Second),
		AlertMargin:  getEnvDecimal("ALERT_MARGIN", decimal.NewFromInt(10)),

		// Mode
		Debug: getEnvBool("DEBUG", false),

		// Database
		DatabasePath: getEnv("DATABASE_PATH", "data/marginbot.db"),
	}

	// Validate required fields
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.OddsAPIKey == "" {
		return nil, fmt.Errorf("ODDS_API_KEY is required")
	}
	if cfg.ScoresAPIKey == "" {
		return nil, fmt.Errorf("BALLDONTLIE_API_KEY is required")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
