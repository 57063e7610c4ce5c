package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"poke-backend/internal/model"
	"poke-backend/internal/pkg/lock"
	"poke-backend/internal/repository"
)

// pokeState enumerates the stages of one poke attempt. An attempt either
// reaches stateCommitted or terminates rejected; once quota reservation
// has begun it always runs to one of those two ends, never abandoned
// half-reserved.
type pokeState int

const (
	stateRequested pokeState = iota
	stateAttested
	stateQuotaReserved
	stateCommitted
)

func (s pokeState) String() string {
	switch s {
	case stateRequested:
		return "requested"
	case stateAttested:
		return "attested"
	case stateQuotaReserved:
		return "quota_reserved"
	case stateCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// PokeResult is the successful outcome of one poke: the committed action,
// both parties' new balances, and the actor's remaining quota.
type PokeResult struct {
	Action        *model.Action
	ActorBalance  int64
	TargetBalance int64
	ActorQuota    *model.QuotaStatus
}

// PokeService is the action processor: it takes an attested poke request
// through quota reservation to a committed action record plus one reward
// transaction per party.
type PokeService struct {
	accountRepo *repository.AccountRepository
	quotaRepo   *repository.QuotaRepository
	actionRepo  *repository.ActionRepository
	attestation *AttestationService
	ledger      *LedgerService
	locks       *lock.AccountLock
	reward      int64
	policy      CommitPolicy
}

// NewPokeService creates a new PokeService instance.
func NewPokeService(
	accountRepo *repository.AccountRepository,
	quotaRepo *repository.QuotaRepository,
	actionRepo *repository.ActionRepository,
	attestation *AttestationService,
	ledger *LedgerService,
	locks *lock.AccountLock,
	reward int64,
	policy CommitPolicy,
) *PokeService {
	if policy == nil {
		policy = NoopPolicy{}
	}
	return &PokeService{
		accountRepo: accountRepo,
		quotaRepo:   quotaRepo,
		actionRepo:  actionRepo,
		attestation: attestation,
		ledger:      ledger,
		locks:       locks,
		reward:      reward,
		policy:      policy,
	}
}

// Poke runs one attempt through the state machine. Rejections carry a
// specific user-correctable reason; transient storage failures are
// retried internally with stable idempotency keys and, if retries
// exhaust, the whole attempt is rolled back: any half-applied reward is
// reversed, the action row removed, and both quota reservations released
// before the attempt is reported retryable.
func (s *PokeService) Poke(ctx context.Context, actorID, targetID int64, attestationToken string) (*PokeResult, error) {
	state := stateRequested

	// Requested: structural checks before anything is consumed.
	if actorID == targetID {
		return nil, ErrSelfPoke
	}
	if _, err := s.accountRepo.GetByID(ctx, actorID); err != nil {
		return nil, mapAccountErr(err)
	}
	target, err := s.accountRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, mapAccountErr(err)
	}
	if !target.Active {
		return nil, ErrTargetInactive
	}

	// Attested: the token burns here whether or not the attempt proceeds.
	attActor, attTarget, err := s.attestation.Consume(ctx, attestationToken)
	if err != nil {
		return nil, err
	}
	if attActor != actorID || attTarget != targetID {
		return nil, ErrGateNotSatisfied
	}
	state = stateAttested

	// QuotaReserved: both sides reserve or neither does. The pair lock is
	// taken in fixed id order so two accounts poking each other
	// concurrently cannot deadlock.
	err = s.locks.WithPairLock(actorID, targetID, func() error {
		if err := s.quotaRepo.CheckAndReserve(ctx, actorID, targetID, model.DirectionSend); err != nil {
			return err
		}
		if err := s.quotaRepo.CheckAndReserve(ctx, targetID, actorID, model.DirectionReceive); err != nil {
			if relErr := s.quotaRepo.Release(ctx, actorID, targetID, model.DirectionSend); relErr != nil {
				log.Error().Err(relErr).
					Int64("actor_id", actorID).
					Int64("target_id", targetID).
					Msg("Failed to release send reservation after receive denial")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	state = stateQuotaReserved

	// Committed: the action record and both reward transactions share
	// keys derived from the action id, so retries cannot double-pay.
	result, err := s.commit(ctx, actorID, targetID)
	if err != nil {
		s.releaseBoth(ctx, actorID, targetID)
		return nil, err
	}
	state = stateCommitted

	// Reservations stay held once committed; a failed quota read here only
	// degrades the response, it must not trigger compensation.
	if quota, qerr := s.quotaRepo.Status(ctx, actorID); qerr == nil {
		result.ActorQuota = quota
	} else {
		log.Warn().Err(qerr).Int64("actor_id", actorID).Msg("Quota status read failed after commit")
	}

	log.Info().
		Str("action_id", result.Action.ID).
		Int64("actor_id", actorID).
		Int64("target_id", targetID).
		Str("state", state.String()).
		Msg("Poke committed")

	if err := s.policy.AfterCommit(ctx, result.Action); err != nil {
		log.Warn().Err(err).Str("action_id", result.Action.ID).Msg("Post-commit policy interrupted")
	}

	// Poke traffic counts as account activity.
	_ = s.accountRepo.TouchLastSeen(ctx, actorID)

	return result, nil
}

func (s *PokeService) commit(ctx context.Context, actorID, targetID int64) (*PokeResult, error) {
	action, err := s.actionRepo.Create(ctx, &model.Action{
		ID:           uuid.NewString(),
		ActorID:      actorID,
		TargetID:     targetID,
		ActorPoints:  s.reward,
		TargetPoints: s.reward,
		DayKey:       s.quotaRepo.CurrentDayKey(),
	})
	if err != nil {
		return nil, MarkRetryable(err)
	}

	actorTx, err := s.ledger.Apply(ctx, repository.ApplyParams{
		AccountID:      actorID,
		Kind:           model.KindActionReward,
		Amount:         s.reward,
		Description:    fmt.Sprintf("poke reward: poked account %d", targetID),
		Reference:      &action.ID,
		IdempotencyKey: fmt.Sprintf("poke:%s:actor", action.ID),
	})
	if err != nil {
		s.undoCommit(ctx, action, false)
		return nil, err
	}

	targetTx, err := s.ledger.Apply(ctx, repository.ApplyParams{
		AccountID:      targetID,
		Kind:           model.KindActionReward,
		Amount:         s.reward,
		Description:    fmt.Sprintf("poke reward: poked by account %d", actorID),
		Reference:      &action.ID,
		IdempotencyKey: fmt.Sprintf("poke:%s:target", action.ID),
	})
	if err != nil {
		s.undoCommit(ctx, action, true)
		return nil, err
	}

	return &PokeResult{
		Action:        action,
		ActorBalance:  actorTx.BalanceAfter,
		TargetBalance: targetTx.BalanceAfter,
	}, nil
}

// undoCommit rolls back a partial commit. A reward already applied to the
// actor is reversed with a compensating row keyed off the failed action
// id, and the action row is removed. A retried attempt commits under a
// fresh id, so without this the actor would keep the first reward and be
// paid again on the retry.
func (s *PokeService) undoCommit(ctx context.Context, action *model.Action, actorPaid bool) {
	if actorPaid {
		_, err := s.ledger.Apply(ctx, repository.ApplyParams{
			AccountID:      action.ActorID,
			Kind:           model.KindActionReward,
			Amount:         -action.ActorPoints,
			Description:    fmt.Sprintf("poke reward reversal: action %s did not commit", action.ID),
			Reference:      &action.ID,
			IdempotencyKey: fmt.Sprintf("poke:%s:actor:reversal", action.ID),
			Override:       true,
		})
		if err != nil {
			log.Error().Err(err).
				Str("action_id", action.ID).
				Int64("actor_id", action.ActorID).
				Msg("Failed to reverse actor reward after commit failure")
		}
	}
	if err := s.actionRepo.Delete(ctx, action.ID); err != nil {
		log.Error().Err(err).Str("action_id", action.ID).Msg("Failed to remove uncommitted action")
	}
}

// releaseBoth compensates the paired reservation after a failed commit.
// Release is membership-guarded, so releasing an already-released side is
// harmless.
func (s *PokeService) releaseBoth(ctx context.Context, actorID, targetID int64) {
	if err := s.quotaRepo.Release(ctx, actorID, targetID, model.DirectionSend); err != nil {
		log.Error().Err(err).Int64("actor_id", actorID).Msg("Failed to release send reservation")
	}
	if err := s.quotaRepo.Release(ctx, targetID, actorID, model.DirectionReceive); err != nil {
		log.Error().Err(err).Int64("target_id", targetID).Msg("Failed to release receive reservation")
	}
}

// GetQuota retrieves the actor's remaining-quota view for the current day.
func (s *PokeService) GetQuota(ctx context.Context, accountID int64) (*model.QuotaStatus, error) {
	return s.quotaRepo.Status(ctx, accountID)
}

func mapAccountErr(err error) error {
	if errors.Is(err, repository.ErrAccountNotFound) {
		return ErrAccountNotFound
	}
	return err
}
