package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"poke-backend/internal/model"
)

// Ledger errors.
var (
	// ErrInsufficientBalance means the transaction would drive the balance
	// below zero and the caller did not set the admin override.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrLedgerCorrupted indicates a balance chain mismatch between the
	// account row and its latest transaction. A bug, never user-facing.
	ErrLedgerCorrupted = errors.New("ledger balance chain mismatch")
	// ErrTransactionNotFound is returned for lookups of unknown rows.
	ErrTransactionNotFound = errors.New("transaction not found")
)

const transactionColumns = `id, account_id, kind, amount, balance_before, balance_after, status, description, reference, idempotency_key, created_at`

// uniqueViolation is the PostgreSQL error code for unique constraint breaks.
const uniqueViolation = "23505"

// ApplyParams describes one ledger application.
type ApplyParams struct {
	AccountID      int64
	Kind           string
	Amount         int64
	Description    string
	Reference      *string
	IdempotencyKey string
	Status         string
	// Override permits a negative resulting balance. Used only by
	// privileged admin adjustment.
	Override bool
}

// LedgerRepository handles the append-only transaction log and the
// materialized per-account balance. Transactions are never edited; a
// correction is a new reversing row.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository instance.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(
		&t.ID,
		&t.AccountID,
		&t.Kind,
		&t.Amount,
		&t.BalanceBefore,
		&t.BalanceAfter,
		&t.Status,
		&t.Description,
		&t.Reference,
		&t.IdempotencyKey,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Apply appends one transaction and moves the account balance, all inside
// a single database transaction with the account row locked. Applying the
// same idempotency key twice produces exactly one row and returns the
// original result on the duplicate call.
func (r *LedgerRepository) Apply(ctx context.Context, params ApplyParams) (*model.Transaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Duplicate call with a known key returns the original row untouched.
	existing, err := getByIdempotencyKey(ctx, tx, params.IdempotencyKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrTransactionNotFound) {
		return nil, err
	}

	// Serialize concurrent applies on the same account.
	var balance, totalEarned, totalWithdrawn int64
	err = tx.QueryRow(ctx, `
		SELECT balance, total_earned, total_withdrawn
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, params.AccountID).Scan(&balance, &totalEarned, &totalWithdrawn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to lock account row: %w", err)
	}

	// The account balance must equal the latest transaction's balance_after.
	var lastAfter int64
	err = tx.QueryRow(ctx, `
		SELECT balance_after
		FROM transactions
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT 1
	`, params.AccountID).Scan(&lastAfter)
	if err == nil && lastAfter != balance {
		return nil, fmt.Errorf("%w: account %d balance %d, last transaction after %d",
			ErrLedgerCorrupted, params.AccountID, balance, lastAfter)
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to read chain tail: %w", err)
	}

	after := balance + params.Amount
	if after < 0 && !params.Override {
		return nil, ErrInsufficientBalance
	}

	status := params.Status
	if status == "" {
		status = model.StatusCompleted
	}

	applied, err := scanTransaction(tx.QueryRow(ctx, `
		INSERT INTO transactions (account_id, kind, amount, balance_before, balance_after, status, description, reference, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING `+transactionColumns,
		params.AccountID, params.Kind, params.Amount, balance, after, status,
		params.Description, params.Reference, params.IdempotencyKey,
	))
	if err != nil {
		// Race on the idempotency key: another request committed the same
		// key between our lookup and insert. Return its row.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			tx.Rollback(ctx)
			return r.GetByIdempotencyKey(ctx, params.IdempotencyKey)
		}
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}

	earned := totalEarned
	withdrawn := totalWithdrawn
	if params.Amount > 0 && isEarningKind(params.Kind) {
		earned += params.Amount
	}
	if params.Kind == model.KindWithdrawal && params.Amount < 0 {
		withdrawn += -params.Amount
	}

	_, err = tx.Exec(ctx, `
		UPDATE accounts
		SET balance = $2, total_earned = $3, total_withdrawn = $4, updated_at = NOW()
		WHERE id = $1
	`, params.AccountID, after, earned, withdrawn)
	if err != nil {
		return nil, fmt.Errorf("failed to move account balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit ledger transaction: %w", err)
	}

	return applied, nil
}

// GetByIdempotencyKey retrieves the transaction recorded under a key.
func (r *LedgerRepository) GetByIdempotencyKey(ctx context.Context, key string) (*model.Transaction, error) {
	return getByIdempotencyKey(ctx, r.pool, key)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getByIdempotencyKey(ctx context.Context, q queryRower, key string) (*model.Transaction, error) {
	const query = `SELECT ` + transactionColumns + ` FROM transactions WHERE idempotency_key = $1`

	t, err := scanTransaction(q.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction by key: %w", err)
	}
	return t, nil
}

// UpdateStatus moves a transaction between lifecycle statuses. Amounts and
// balances are never touched here; reversals are separate rows.
func (r *LedgerRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	const query = `UPDATE transactions SET status = $2 WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// ListByAccount retrieves one page of an account's transactions, newest
// first. Page numbering starts at 1.
func (r *LedgerRepository) ListByAccount(ctx context.Context, accountID int64, page, pageSize int) ([]*model.Transaction, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	const query = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, accountID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// Replay walks an account's full transaction sequence in creation order and
// verifies the chain invariant. Used by audits and tests.
func (r *LedgerRepository) Replay(ctx context.Context, accountID int64) ([]*model.Transaction, error) {
	const query = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		ORDER BY id ASC
	`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to replay transactions: %w", err)
	}
	defer rows.Close()

	var sequence []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if t.BalanceAfter != t.BalanceBefore+t.Amount {
			return nil, fmt.Errorf("%w: transaction %d", ErrLedgerCorrupted, t.ID)
		}
		if n := len(sequence); n > 0 && sequence[n-1].BalanceAfter != t.BalanceBefore {
			return nil, fmt.Errorf("%w: transaction %d does not continue %d",
				ErrLedgerCorrupted, t.ID, sequence[n-1].ID)
		}
		sequence = append(sequence, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return sequence, nil
}

func isEarningKind(kind string) bool {
	for _, k := range model.EarningKinds() {
		if k == kind {
			return true
		}
	}
	return false
}
