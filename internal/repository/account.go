// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poke-backend/internal/model"
)

// Common errors for repository operations.
var (
	ErrAccountNotFound = errors.New("account not found")
)

const accountColumns = `id, display_name, balance, total_earned, total_withdrawn, active, last_seen, created_at, updated_at`

// AccountRepository handles account data persistence.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository instance.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.DisplayName,
		&a.Balance,
		&a.TotalEarned,
		&a.TotalWithdrawn,
		&a.Active,
		&a.LastSeen,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create creates a new account with a zero balance. Balances are only
// ever mutated through ledger transactions, so even the signup bonus
// arrives as a transaction after creation.
func (r *AccountRepository) Create(ctx context.Context, id int64, displayName string) (*model.Account, error) {
	const query = `
		INSERT INTO accounts (id, display_name, balance, total_earned, total_withdrawn, active, last_seen, created_at, updated_at)
		VALUES ($1, $2, 0, 0, 0, TRUE, NOW(), NOW(), NOW())
		RETURNING ` + accountColumns

	account, err := scanAccount(r.pool.QueryRow(ctx, query, id, displayName))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// GetByID retrieves an account by its ID.
// Returns ErrAccountNotFound if the account does not exist.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetOrCreate retrieves an account by ID, creating one if it doesn't exist.
// Returns the account and whether it was newly created.
func (r *AccountRepository) GetOrCreate(ctx context.Context, id int64, displayName string) (*model.Account, bool, error) {
	// Try to get existing account first
	account, err := r.GetByID(ctx, id)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, err
	}

	// Account doesn't exist, create new one
	account, err = r.Create(ctx, id, displayName)
	if err != nil {
		// Handle race condition: another request might have created it
		account, err = r.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return account, false, nil
	}

	return account, true, nil
}

// SetActive activates or deactivates an account. Accounts are never
// deleted, only deactivated.
func (r *AccountRepository) SetActive(ctx context.Context, id int64, active bool) error {
	const query = `
		UPDATE accounts
		SET active = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("failed to set account active: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// TouchLastSeen records poke traffic as account activity.
func (r *AccountRepository) TouchLastSeen(ctx context.Context, id int64) error {
	const query = `
		UPDATE accounts
		SET last_seen = NOW(), updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to touch last seen: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdateDisplayName updates an account's display name.
func (r *AccountRepository) UpdateDisplayName(ctx context.Context, id int64, displayName string) error {
	const query = `
		UPDATE accounts
		SET display_name = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, displayName)
	if err != nil {
		return fmt.Errorf("failed to update display name: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Exists checks if an account with the given ID exists.
func (r *AccountRepository) Exists(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check account existence: %w", err)
	}
	return exists, nil
}
