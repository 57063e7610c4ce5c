package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"poke-backend/internal/model"
	"poke-backend/internal/repository"
)

// ErrBelowMinimumWithdrawal means the requested cash-out is under the
// configured minimum.
var ErrBelowMinimumWithdrawal = errors.New("withdrawal below minimum")

// AccountService handles account registration, wallet reads, and the
// ledger entry points used by the external withdrawal and referral
// collaborators.
type AccountService struct {
	accountRepo       *repository.AccountRepository
	ledger            *LedgerService
	signupBonus       int64
	referralBonus     int64
	minimumWithdrawal int64
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	accountRepo *repository.AccountRepository,
	ledger *LedgerService,
	signupBonus int64,
	referralBonus int64,
	minimumWithdrawal int64,
) *AccountService {
	return &AccountService{
		accountRepo:       accountRepo,
		ledger:            ledger,
		signupBonus:       signupBonus,
		referralBonus:     referralBonus,
		minimumWithdrawal: minimumWithdrawal,
	}
}

// Register ensures an account exists, applying the signup bonus as a
// ledger transaction on first registration. The bonus idempotency key is
// derived from the account id, so a retried registration never pays twice.
func (s *AccountService) Register(ctx context.Context, id int64, displayName string) (*model.Account, bool, error) {
	account, created, err := s.accountRepo.GetOrCreate(ctx, id, displayName)
	if err != nil {
		return nil, false, fmt.Errorf("failed to register account: %w", err)
	}

	if created && s.signupBonus > 0 {
		_, err := s.ledger.Apply(ctx, repository.ApplyParams{
			AccountID:      id,
			Kind:           model.KindSignupBonus,
			Amount:         s.signupBonus,
			Description:    "signup bonus",
			IdempotencyKey: fmt.Sprintf("signup:%d", id),
		})
		if err != nil {
			return nil, false, err
		}
		account, err = s.accountRepo.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		log.Info().Int64("account_id", id).Int64("bonus", s.signupBonus).Msg("Signup bonus applied")
	}

	// Keep the stored display name current
	if !created && displayName != "" && account.DisplayName != displayName {
		if err := s.accountRepo.UpdateDisplayName(ctx, id, displayName); err == nil {
			account.DisplayName = displayName
		}
	}

	return account, created, nil
}

// GetAccount retrieves an account by id.
func (s *AccountService) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// GetBalance retrieves an account's wallet view.
func (s *AccountService) GetBalance(ctx context.Context, id int64) (*model.BalanceStatus, error) {
	account, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.BalanceStatus{
		Balance:        account.Balance,
		TotalEarned:    account.TotalEarned,
		TotalWithdrawn: account.TotalWithdrawn,
	}, nil
}

// ApplyReferralBonus credits the configured referral reward. The key is
// derived from the pair so each referral pays at most once.
func (s *AccountService) ApplyReferralBonus(ctx context.Context, referrerID, refereeID int64) (*model.Transaction, error) {
	return s.ledger.Apply(ctx, repository.ApplyParams{
		AccountID:      referrerID,
		Kind:           model.KindReferralBonus,
		Amount:         s.referralBonus,
		Description:    fmt.Sprintf("referral of account %d", refereeID),
		IdempotencyKey: fmt.Sprintf("referral:%d:%d", referrerID, refereeID),
	})
}

// RequestWithdrawal records a pending withdrawal debit after validating
// the minimum. Approval and payout stay with the external workflow; the
// ledger only guarantees the balance invariant.
func (s *AccountService) RequestWithdrawal(ctx context.Context, accountID, amount int64) (*model.Transaction, error) {
	if amount < s.minimumWithdrawal {
		return nil, ErrBelowMinimumWithdrawal
	}

	reference := uuid.NewString()
	return s.ledger.Apply(ctx, repository.ApplyParams{
		AccountID:      accountID,
		Kind:           model.KindWithdrawal,
		Amount:         -amount,
		Description:    "withdrawal request",
		Reference:      &reference,
		IdempotencyKey: "withdrawal:" + reference,
		Status:         model.StatusPending,
	})
}

// AdminAdjust applies a privileged manual adjustment. Override permits a
// negative resulting balance.
func (s *AccountService) AdminAdjust(ctx context.Context, accountID, amount int64, description, idempotencyKey string, override bool) (*model.Transaction, error) {
	return s.ledger.Apply(ctx, repository.ApplyParams{
		AccountID:      accountID,
		Kind:           model.KindAdminAdjustment,
		Amount:         amount,
		Description:    description,
		IdempotencyKey: idempotencyKey,
		Override:       override,
	})
}
