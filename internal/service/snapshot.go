package service

import (
	"context"
	"time"

	"poke-backend/internal/model"
	"poke-backend/internal/repository"
)

// SnapshotService assembles the authoritative quota + balance snapshot
// that reconciliation pulls. Reads only; it never joins a lock or a
// transaction scope.
type SnapshotService struct {
	accountRepo *repository.AccountRepository
	quotaRepo   *repository.QuotaRepository
}

// NewSnapshotService creates a new SnapshotService instance.
func NewSnapshotService(accountRepo *repository.AccountRepository, quotaRepo *repository.QuotaRepository) *SnapshotService {
	return &SnapshotService{
		accountRepo: accountRepo,
		quotaRepo:   quotaRepo,
	}
}

// Pull returns the account's current snapshot tagged with server time.
func (s *SnapshotService) Pull(ctx context.Context, accountID int64) (*model.Snapshot, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, mapAccountErr(err)
	}

	quota, err := s.quotaRepo.Status(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &model.Snapshot{
		AccountID: accountID,
		Quota:     *quota,
		Balance: model.BalanceStatus{
			Balance:        account.Balance,
			TotalEarned:    account.TotalEarned,
			TotalWithdrawn: account.TotalWithdrawn,
		},
		ServerTime: time.Now().UTC(),
	}, nil
}
