// Package main is the reconciliation client: it keeps one account's
// local snapshot in sync with the server by pulling on the configured
// interval and after connectivity returns.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"poke-backend/internal/config"
	"poke-backend/internal/sync"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	accountID := flag.Int64("account", 0, "account id to reconcile")
	serverURL := flag.String("server", "http://localhost:8080", "server base URL")
	flag.Parse()
	if *accountID <= 0 {
		log.Fatal().Msg("the -account flag is required")
	}

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reconciler := sync.NewReconciler(sync.NewHTTPSource(*serverURL), *accountID, cfg.Sync.Interval)

	// Stop on shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	log.Info().
		Int64("account_id", *accountID).
		Str("server", *serverURL).
		Dur("interval", cfg.Sync.Interval).
		Msg("Reconciliation client starting")

	reconciler.Run(ctx)

	if snapshot := reconciler.Snapshot(); snapshot != nil {
		log.Info().
			Int64("balance", snapshot.Balance.Balance).
			Int("remaining_sends", snapshot.Quota.RemainingSends).
			Time("server_time", snapshot.ServerTime).
			Msg("Final snapshot")
	}
	log.Info().Msg("Client stopped gracefully")
}
