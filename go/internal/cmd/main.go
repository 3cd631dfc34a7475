package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	setupLogging()

	cfg, err := loadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	repos, err := setupStore(ctx, cfg, clock)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Store).Msg("failed to set up store")
	}
	defer repos.Close()

	services, err := setupServices(ctx, cfg, repos, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer services.Close()

	server := setupServer(cfg, services)

	log.Info().
		Str("port", cfg.Port).
		Str("store", cfg.Store).
		Str("relay", cfg.Relay.Kind).
		Dur("bidding_window", cfg.Auction.BiddingWindow).
		Dur("scheduler_interval", cfg.Scheduler.Interval).
		Msg("starting gavel")

	// Background components stop when ctx is cancelled
	var wg sync.WaitGroup
	services.Notifier.Start(ctx)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := services.Gateway.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("gateway stopped")
		}
	}()
	go func() {
		defer wg.Done()
		if err := services.Scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	// Start HTTP server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	wg.Wait()
	services.Notifier.Wait()
	log.Info().Msg("gavel shutdown complete")
}
