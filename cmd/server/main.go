// Package main is the entry point for the poke rewards backend.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"poke-backend/internal/config"
	"poke-backend/internal/handler"
	"poke-backend/internal/pkg/db"
	"poke-backend/internal/pkg/lock"
	"poke-backend/internal/repository"
	"poke-backend/internal/service"
)

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

	loc, err := cfg.Quota.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve quota timezone")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(dbPool.Pool)
	quotaRepo := repository.NewQuotaRepository(dbPool.Pool, cfg.Quota.DailyLimit, loc)
	ledgerRepo := repository.NewLedgerRepository(dbPool.Pool)
	actionRepo := repository.NewActionRepository(dbPool.Pool)
	attestRepo := repository.NewAttestationRepository(dbPool.Pool, cfg.Attestation.TTL)

	// Initialize account lock
	accountLock := lock.NewAccountLock()

	// Initialize services
	ledgerService := service.NewLedgerService(ledgerRepo, accountLock)
	accountService := service.NewAccountService(
		accountRepo,
		ledgerService,
		cfg.Rewards.SignupBonus,
		cfg.Rewards.ReferralBonus,
		cfg.Rewards.MinimumWithdrawal,
	)
	attestationService := service.NewAttestationService(attestRepo, accountRepo)

	var policy service.CommitPolicy = service.NoopPolicy{}
	if cfg.Policy.Cooldown > 0 {
		policy = service.CooldownPolicy{Duration: cfg.Policy.Cooldown}
	}

	pokeService := service.NewPokeService(
		accountRepo,
		quotaRepo,
		actionRepo,
		attestationService,
		ledgerService,
		accountLock,
		cfg.Rewards.PokeReward,
		policy,
	)
	snapshotService := service.NewSnapshotService(accountRepo, quotaRepo)

	log.Info().
		Int("daily_limit", cfg.Quota.DailyLimit).
		Int64("poke_reward", cfg.Rewards.PokeReward).
		Str("timezone", loc.String()).
		Dur("attestation_ttl", cfg.Attestation.TTL).
		Msg("Core services initialized")

	// Build HTTP API
	router := handler.NewRouter(&handler.Dependencies{
		Pokes:        pokeService,
		Accounts:     accountService,
		Attestations: attestationService,
		Ledger:       ledgerService,
		Snapshots:    snapshotService,
		Health:       dbPool,
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router,
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	log.Info().Msg("Server stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create accounts table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id BIGINT PRIMARY KEY,
			display_name VARCHAR(255) NOT NULL,
			balance BIGINT NOT NULL DEFAULT 0,
			total_earned BIGINT NOT NULL DEFAULT 0,
			total_withdrawn BIGINT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: accounts table created")

	// Migration 2: Create daily quota table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS daily_quotas (
			account_id BIGINT NOT NULL,
			day_key VARCHAR(10) NOT NULL,
			sent_count INT NOT NULL DEFAULT 0,
			received_count INT NOT NULL DEFAULT 0,
			sent_to BIGINT[] NOT NULL DEFAULT '{}',
			received_from BIGINT[] NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (account_id, day_key)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: daily_quotas table created")

	// Migration 3: Create ledger transactions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id),
			kind VARCHAR(50) NOT NULL,
			amount BIGINT NOT NULL,
			balance_before BIGINT NOT NULL,
			balance_after BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'completed',
			description TEXT NOT NULL DEFAULT '',
			reference TEXT,
			idempotency_key VARCHAR(128) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_idempotency ON transactions(idempotency_key);
		CREATE INDEX IF NOT EXISTS idx_transactions_account_time ON transactions(account_id, id DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: transactions table created")

	// Migration 4: Create attestations table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS attestations (
			token UUID PRIMARY KEY,
			actor_id BIGINT NOT NULL,
			target_id BIGINT NOT NULL,
			issued_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NOT NULL,
			consumed BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS idx_attestations_expires ON attestations(expires_at);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: attestations table created")

	// Migration 5: Create actions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS actions (
			id UUID PRIMARY KEY,
			actor_id BIGINT NOT NULL REFERENCES accounts(id),
			target_id BIGINT NOT NULL REFERENCES accounts(id),
			actor_points BIGINT NOT NULL,
			target_points BIGINT NOT NULL,
			day_key VARCHAR(10) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_actions_actor_day ON actions(actor_id, day_key);
		CREATE INDEX IF NOT EXISTS idx_actions_target_day ON actions(target_id, day_key);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: actions table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
