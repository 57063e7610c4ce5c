package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poke-backend/internal/model"
)

// ErrInvalidAttestation covers unknown, already-consumed, and expired
// tokens alike; callers cannot distinguish which, modeling exactly-once
// semantics for the gated resource.
var ErrInvalidAttestation = errors.New("invalid attestation token")

// AttestationRepository handles single-use ad-completion tokens.
type AttestationRepository struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewAttestationRepository creates a new AttestationRepository instance.
func NewAttestationRepository(pool *pgxpool.Pool, ttl time.Duration) *AttestationRepository {
	return &AttestationRepository{pool: pool, ttl: ttl}
}

// Issue records a completed side task and returns its one-time token.
// There is no partial-completion state: a token either exists or it does
// not.
func (r *AttestationRepository) Issue(ctx context.Context, actorID, targetID int64) (*model.Attestation, error) {
	const query = `
		INSERT INTO attestations (token, actor_id, target_id, issued_at, expires_at, consumed)
		VALUES ($1, $2, $3, NOW(), NOW() + $4, FALSE)
		RETURNING token, actor_id, target_id, issued_at, expires_at, consumed
	`

	var a model.Attestation
	err := r.pool.QueryRow(ctx, query, uuid.NewString(), actorID, targetID, r.ttl).Scan(
		&a.Token,
		&a.ActorID,
		&a.TargetID,
		&a.IssuedAt,
		&a.ExpiresAt,
		&a.Consumed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to issue attestation: %w", err)
	}
	return &a, nil
}

// Consume marks a token used and returns the pair it attests. The
// conditional UPDATE makes the consumption exactly-once: a second call
// with the same token finds no unconsumed row and returns
// ErrInvalidAttestation, as do expired and unknown tokens.
func (r *AttestationRepository) Consume(ctx context.Context, token string) (actorID, targetID int64, err error) {
	const query = `
		UPDATE attestations
		SET consumed = TRUE
		WHERE token = $1 AND consumed = FALSE AND expires_at > NOW()
		RETURNING actor_id, target_id
	`

	err = r.pool.QueryRow(ctx, query, token).Scan(&actorID, &targetID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrInvalidAttestation
		}
		return 0, 0, fmt.Errorf("failed to consume attestation: %w", err)
	}
	return actorID, targetID, nil
}

// Get retrieves a token without consuming it.
func (r *AttestationRepository) Get(ctx context.Context, token string) (*model.Attestation, error) {
	const query = `
		SELECT token, actor_id, target_id, issued_at, expires_at, consumed
		FROM attestations
		WHERE token = $1
	`

	var a model.Attestation
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&a.Token,
		&a.ActorID,
		&a.TargetID,
		&a.IssuedAt,
		&a.ExpiresAt,
		&a.Consumed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidAttestation
		}
		return nil, fmt.Errorf("failed to get attestation: %w", err)
	}
	return &a, nil
}

// PruneExpired deletes expired tokens. Consumed rows are kept for audit.
func (r *AttestationRepository) PruneExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM attestations WHERE expires_at <= NOW() AND consumed = FALSE`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prune attestations: %w", err)
	}
	return result.RowsAffected(), nil
}
