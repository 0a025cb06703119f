// Package main is the entry point for the points ledger bot and its web API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"points-ledger-bot/internal/api"
	"points-ledger-bot/internal/bot"
	"points-ledger-bot/internal/config"
	"points-ledger-bot/internal/pkg/cache"
	"points-ledger-bot/internal/pkg/db"
	"points-ledger-bot/internal/pkg/lock"
	"points-ledger-bot/internal/scheduler"
	"points-ledger-bot/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := db.RunMigrations(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	ledger := service.NewLedgerService(dbPool.Pool, service.Rules{
		DailyPoints:    cfg.Points.Daily,
		ReferralPoints: cfg.Points.Referral,
		SocialPoints:   cfg.Points.Social,
		Cooldown:       cfg.Points.Cooldown,
		Channels:       cfg.Channels,
	})

	log.Info().
		Int64("daily", cfg.Points.Daily).
		Int64("referral", cfg.Points.Referral).
		Int64("social", cfg.Points.Social).
		Dur("cooldown", cfg.Points.Cooldown).
		Int("channels", len(cfg.Channels)).
		Msg("Ledger configured")

	// Redis is optional; without it the leaderboard is read straight from Postgres
	redisClient := cache.NewRedisClient(ctx, cfg.Redis)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	leaderboard := cache.NewLeaderboardCache(redisClient, cfg.Redis.LeaderboardTTL)
	ledger.SetRankingInvalidator(leaderboard)

	sched, err := scheduler.New(cfg.Scheduler, leaderboard, ledger, dbPool)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	sched.Start()

	// Web app API
	apiServer := api.NewServer(cfg.API, api.NewRouter(cfg.API, api.NewHandler(ledger, leaderboard, dbPool)))
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	// Initialize bot
	telegramBot, err := bot.New(&bot.Dependencies{
		Config:   cfg,
		Ledger:   ledger,
		UserLock: lock.NewUserLock(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server shutdown failed")
	}

	if err := sched.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Scheduler shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
