package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poke-backend/internal/model"
)

// ErrActionNotFound is returned for lookups of unknown action ids.
var ErrActionNotFound = errors.New("action not found")

// ActionRepository handles committed poke records. Once a poke commits
// its row is an immutable audit entry, never updated or deleted; Delete
// exists only to clean up rows whose commit failed partway.
type ActionRepository struct {
	pool *pgxpool.Pool
}

// NewActionRepository creates a new ActionRepository instance.
func NewActionRepository(pool *pgxpool.Pool) *ActionRepository {
	return &ActionRepository{pool: pool}
}

// Create records one committed poke.
func (r *ActionRepository) Create(ctx context.Context, action *model.Action) (*model.Action, error) {
	const query = `
		INSERT INTO actions (id, actor_id, target_id, actor_points, target_points, day_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO NOTHING
		RETURNING id, actor_id, target_id, actor_points, target_points, day_key, created_at
	`

	var a model.Action
	err := r.pool.QueryRow(ctx, query,
		action.ID, action.ActorID, action.TargetID,
		action.ActorPoints, action.TargetPoints, action.DayKey,
	).Scan(
		&a.ID,
		&a.ActorID,
		&a.TargetID,
		&a.ActorPoints,
		&a.TargetPoints,
		&a.DayKey,
		&a.CreatedAt,
	)
	if err != nil {
		// Retried commits re-insert the same id; return the original row.
		if errors.Is(err, pgx.ErrNoRows) {
			return r.GetByID(ctx, action.ID)
		}
		return nil, fmt.Errorf("failed to create action: %w", err)
	}
	return &a, nil
}

// Delete removes an action row after a failed commit, so the retried
// attempt starts clean. Never called for committed pokes.
func (r *ActionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM actions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete action: %w", err)
	}
	return nil
}

// GetByID retrieves one action record.
func (r *ActionRepository) GetByID(ctx context.Context, id string) (*model.Action, error) {
	const query = `
		SELECT id, actor_id, target_id, actor_points, target_points, day_key, created_at
		FROM actions
		WHERE id = $1
	`

	var a model.Action
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.ActorID,
		&a.TargetID,
		&a.ActorPoints,
		&a.TargetPoints,
		&a.DayKey,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrActionNotFound
		}
		return nil, fmt.Errorf("failed to get action: %w", err)
	}
	return &a, nil
}

// ListByAccount retrieves an account's actions for a day, either side.
func (r *ActionRepository) ListByAccount(ctx context.Context, accountID int64, dayKey string) ([]*model.Action, error) {
	const query = `
		SELECT id, actor_id, target_id, actor_points, target_points, day_key, created_at
		FROM actions
		WHERE (actor_id = $1 OR target_id = $1) AND day_key = $2
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, accountID, dayKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []*model.Action
	for rows.Next() {
		var a model.Action
		err := rows.Scan(
			&a.ID,
			&a.ActorID,
			&a.TargetID,
			&a.ActorPoints,
			&a.TargetPoints,
			&a.DayKey,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return actions, nil
}
