package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"poke-backend/internal/model"
	"poke-backend/internal/pkg/lock"
	"poke-backend/internal/repository"
)

// Bounded retry of transient storage failures. Retries reuse the same
// idempotency key, so a commit that succeeded but failed to report is
// never applied twice.
const (
	storageRetryAttempts = 3
	storageRetryBackoff  = 50 * time.Millisecond
)

// LedgerService applies point transactions to account balances. It is
// agnostic to who calls it beyond enforcing the balance invariant: the
// withdrawal and admin collaborators use the same Apply path as poke
// rewards.
type LedgerService struct {
	ledgerRepo *repository.LedgerRepository
	locks      *lock.AccountLock
}

// NewLedgerService creates a new LedgerService instance.
func NewLedgerService(ledgerRepo *repository.LedgerRepository, locks *lock.AccountLock) *LedgerService {
	return &LedgerService{
		ledgerRepo: ledgerRepo,
		locks:      locks,
	}
}

// Apply appends one transaction under the account's lock, retrying
// transient storage failures with the same idempotency key.
func (s *LedgerService) Apply(ctx context.Context, params repository.ApplyParams) (*model.Transaction, error) {
	var applied *model.Transaction
	err := s.locks.WithLock(params.AccountID, func() error {
		var err error
		applied, err = s.applyWithRetry(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func (s *LedgerService) applyWithRetry(ctx context.Context, params repository.ApplyParams) (*model.Transaction, error) {
	var lastErr error
	for attempt := 1; attempt <= storageRetryAttempts; attempt++ {
		applied, err := s.ledgerRepo.Apply(ctx, params)
		if err == nil {
			return applied, nil
		}
		if isPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		lastErr = err
		log.Warn().
			Err(err).
			Int64("account_id", params.AccountID).
			Str("idempotency_key", params.IdempotencyKey).
			Int("attempt", attempt).
			Msg("Transient ledger failure, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(storageRetryBackoff * time.Duration(attempt)):
		}
	}
	return nil, MarkRetryable(lastErr)
}

// ListTransactions retrieves one page of an account's history.
func (s *LedgerService) ListTransactions(ctx context.Context, accountID int64, page, pageSize int) ([]*model.Transaction, error) {
	return s.ledgerRepo.ListByAccount(ctx, accountID, page, pageSize)
}

// CompleteWithdrawal and ReverseWithdrawal move a pending withdrawal debit
// through its lifecycle on behalf of the external approval workflow. A
// reversal credits the amount back as a new row; the original is never
// edited.
func (s *LedgerService) CompleteWithdrawal(ctx context.Context, transactionID int64) error {
	return s.ledgerRepo.UpdateStatus(ctx, transactionID, model.StatusCompleted)
}

func (s *LedgerService) ReverseWithdrawal(ctx context.Context, original *model.Transaction, idempotencyKey string) (*model.Transaction, error) {
	if err := s.ledgerRepo.UpdateStatus(ctx, original.ID, model.StatusReversed); err != nil {
		return nil, err
	}
	return s.Apply(ctx, repository.ApplyParams{
		AccountID:      original.AccountID,
		Kind:           original.Kind,
		Amount:         -original.Amount,
		Description:    "reversal of transaction",
		Reference:      original.Reference,
		IdempotencyKey: idempotencyKey,
	})
}
