package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poke-backend/internal/model"
)

// Quota reservation outcomes.
var (
	// ErrAlreadyActedWithCounterpart means the counterpart is already in the
	// relevant set for the current day.
	ErrAlreadyActedWithCounterpart = errors.New("already acted with counterpart today")
	// ErrDailyLimitReached means the relevant count already equals the
	// configured daily limit.
	ErrDailyLimitReached = errors.New("daily limit reached")
	// ErrQuotaCorrupted indicates count/set divergence in a stored record.
	// This is a bug, never a user condition, and must abort the operation.
	ErrQuotaCorrupted = errors.New("quota record count/set divergence")
)

// QuotaRepository handles per-account, per-day poke quota persistence.
// The current day is computed in a single reference timezone; records for
// past days are immutable history and a stale day key always reads back as
// a fresh zero record rather than resurrecting the old one.
type QuotaRepository struct {
	pool  *pgxpool.Pool
	limit int
	loc   *time.Location
	now   func() time.Time
}

// NewQuotaRepository creates a new QuotaRepository instance.
func NewQuotaRepository(pool *pgxpool.Pool, dailyLimit int, loc *time.Location) *QuotaRepository {
	return &QuotaRepository{
		pool:  pool,
		limit: dailyLimit,
		loc:   loc,
		now:   time.Now,
	}
}

// DailyLimit returns the configured per-direction daily limit.
func (r *QuotaRepository) DailyLimit() int {
	return r.limit
}

// CurrentDayKey returns today's day key in the reference timezone.
func (r *QuotaRepository) CurrentDayKey() string {
	return r.now().In(r.loc).Format("2006-01-02")
}

// CheckAndReserve atomically checks and reserves one quota slot for the
// given direction. The check and the increment are a single conditional
// UPDATE, so two concurrent reservations for the same account can never
// both succeed when only one slot remains.
//
// Returns ErrAlreadyActedWithCounterpart or ErrDailyLimitReached on denial.
func (r *QuotaRepository) CheckAndReserve(ctx context.Context, accountID, counterpartID int64, direction model.QuotaDirection) error {
	dayKey := r.CurrentDayKey()

	if err := r.ensureRecord(ctx, accountID, dayKey); err != nil {
		return err
	}

	countCol, setCol := directionColumns(direction)

	// Conditional single-statement reservation: succeeds only while the
	// count is below the limit and the counterpart is not yet in the set.
	query := fmt.Sprintf(`
		UPDATE daily_quotas
		SET %[1]s = %[1]s + 1, %[2]s = array_append(%[2]s, $3), updated_at = NOW()
		WHERE account_id = $1 AND day_key = $2
		  AND %[1]s < $4
		  AND NOT ($3 = ANY(%[2]s))
		RETURNING %[1]s
	`, countCol, setCol)

	var count int
	err := r.pool.QueryRow(ctx, query, accountID, dayKey, counterpartID, r.limit).Scan(&count)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to reserve quota: %w", err)
	}

	// Reservation denied: distinguish the reason.
	record, err := r.GetDay(ctx, accountID, dayKey)
	if err != nil {
		return err
	}
	set := record.SentTo
	if direction == model.DirectionReceive {
		set = record.ReceivedFrom
	}
	for _, id := range set {
		if id == counterpartID {
			return ErrAlreadyActedWithCounterpart
		}
	}
	return ErrDailyLimitReached
}

// Release compensates a prior reservation when a multi-step attempt fails
// after one side was already reserved. It is a no-op if the counterpart is
// not in the set, so a double release cannot drive counts negative.
func (r *QuotaRepository) Release(ctx context.Context, accountID, counterpartID int64, direction model.QuotaDirection) error {
	dayKey := r.CurrentDayKey()
	countCol, setCol := directionColumns(direction)

	query := fmt.Sprintf(`
		UPDATE daily_quotas
		SET %[1]s = %[1]s - 1, %[2]s = array_remove(%[2]s, $3), updated_at = NOW()
		WHERE account_id = $1 AND day_key = $2
		  AND $3 = ANY(%[2]s)
	`, countCol, setCol)

	_, err := r.pool.Exec(ctx, query, accountID, dayKey, counterpartID)
	if err != nil {
		return fmt.Errorf("failed to release quota: %w", err)
	}
	return nil
}

// Get retrieves the account's quota record for the current day.
// A missing record yields a fresh zero-valued one; nothing is written.
func (r *QuotaRepository) Get(ctx context.Context, accountID int64) (*model.DailyQuota, error) {
	return r.GetDay(ctx, accountID, r.CurrentDayKey())
}

// GetDay retrieves the quota record for a specific day key. Past days are
// readable as history with their original counts unchanged.
func (r *QuotaRepository) GetDay(ctx context.Context, accountID int64, dayKey string) (*model.DailyQuota, error) {
	const query = `
		SELECT account_id, day_key, sent_count, received_count, sent_to, received_from, updated_at
		FROM daily_quotas
		WHERE account_id = $1 AND day_key = $2
	`

	var q model.DailyQuota
	err := r.pool.QueryRow(ctx, query, accountID, dayKey).Scan(
		&q.AccountID,
		&q.DayKey,
		&q.SentCount,
		&q.ReceivedCount,
		&q.SentTo,
		&q.ReceivedFrom,
		&q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.DailyQuota{AccountID: accountID, DayKey: dayKey}, nil
		}
		return nil, fmt.Errorf("failed to get quota record: %w", err)
	}

	if q.SentCount != len(q.SentTo) || q.ReceivedCount != len(q.ReceivedFrom) {
		return nil, fmt.Errorf("%w: account %d day %s", ErrQuotaCorrupted, accountID, dayKey)
	}

	return &q, nil
}

// Status builds the remaining-quota view for the current day.
func (r *QuotaRepository) Status(ctx context.Context, accountID int64) (*model.QuotaStatus, error) {
	record, err := r.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &model.QuotaStatus{
		DayKey:            record.DayKey,
		SentToday:         record.SentCount,
		ReceivedToday:     record.ReceivedCount,
		RemainingSends:    r.limit - record.SentCount,
		RemainingReceives: r.limit - record.ReceivedCount,
	}, nil
}

// ensureRecord lazily creates the day's record on first use.
func (r *QuotaRepository) ensureRecord(ctx context.Context, accountID int64, dayKey string) error {
	const query = `
		INSERT INTO daily_quotas (account_id, day_key, sent_count, received_count, sent_to, received_from, updated_at)
		VALUES ($1, $2, 0, 0, '{}', '{}', NOW())
		ON CONFLICT (account_id, day_key) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query, accountID, dayKey)
	if err != nil {
		return fmt.Errorf("failed to ensure quota record: %w", err)
	}
	return nil
}

func directionColumns(direction model.QuotaDirection) (countCol, setCol string) {
	if direction == model.DirectionReceive {
		return "received_count", "received_from"
	}
	return "sent_count", "sent_to"
}
