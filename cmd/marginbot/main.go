package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/courtside/marginbot/internal/bot"
	"github.com/courtside/marginbot/internal/config"
	"github.com/courtside/marginbot/internal/database"
	"github.com/courtside/marginbot/internal/monitor"
	"github.com/courtside/marginbot/internal/odds"
	"github.com/courtside/marginbot/internal/registry"
	"github.com/courtside/marginbot/internal/scores"
)

func main() {
	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found")
	}

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msg("🏀 NBA MARGIN ALERT BOT")

	// Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Storage (chat settings + alert log)
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	log.Info().Msg("✅ Storage layer initialized")

	// Provider clients
	oddsClient := odds.NewClient(cfg.OddsAPIURL, cfg.OddsAPIKey, cfg.Bookmaker, cfg.RequestTimeout)
	scoresClient := scores.NewClient(cfg.ScoresAPIURL, cfg.ScoresAPIKey, cfg.RequestTimeout)
	log.Info().Msg("✅ Provider clients initialized")

	// Subscriptions
	reg := registry.New()

	// Margin monitor
	mon := monitor.New(oddsClient, scoresClient, cfg.PollInterval, cfg.RequestTimeout)
	mon.SetAlertStore(db)

	// Telegram bot
	tgBot, err := bot.New(cfg, db, reg, mon)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
	}
	mon.SetNotifier(tgBot)
	log.Info().Msg("✅ Telegram bot initialized")

	// Start
	mon.Start()
	tgBot.Start()

	log.Info().
		Str("interval", cfg.PollInterval.String()).
		Str("margin", cfg.AlertMargin.String()).
		Str("bookmaker", cfg.Bookmaker).
		Msg("🚀 All systems running...")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("🛑 Shutting down...")
	tgBot.Stop()
	mon.Stop()

	log.Info().Msg("👋 Goodbye!")
}
