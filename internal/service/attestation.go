package service

import (
	"context"
	"errors"
	"fmt"

	"poke-backend/internal/model"
	"poke-backend/internal/repository"
)

// AttestationService gates pokes behind the ad-view side task. The
// completion signal arrives from the external ad flow; this service only
// records and consumes the resulting single-use token. A dismissed ad
// never reaches Issue, so there is no partial-completion state.
type AttestationService struct {
	attestRepo  *repository.AttestationRepository
	accountRepo *repository.AccountRepository
}

// NewAttestationService creates a new AttestationService instance.
func NewAttestationService(attestRepo *repository.AttestationRepository, accountRepo *repository.AccountRepository) *AttestationService {
	return &AttestationService{
		attestRepo:  attestRepo,
		accountRepo: accountRepo,
	}
}

// Issue creates a one-time token for a completed side task. Issuing for a
// self-pair or an unknown account is refused up front; the later poke
// would be rejected anyway.
func (s *AttestationService) Issue(ctx context.Context, actorID, targetID int64) (*model.Attestation, error) {
	if actorID == targetID {
		return nil, ErrSelfPoke
	}

	for _, id := range []int64{actorID, targetID} {
		exists, err := s.accountRepo.Exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %d", ErrAccountNotFound, id)
		}
	}

	return s.attestRepo.Issue(ctx, actorID, targetID)
}

// Consume redeems a token for its attested pair. Expired, unknown, and
// already-consumed tokens are all ErrGateNotSatisfied.
func (s *AttestationService) Consume(ctx context.Context, token string) (actorID, targetID int64, err error) {
	actorID, targetID, err = s.attestRepo.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidAttestation) {
			return 0, 0, ErrGateNotSatisfied
		}
		return 0, 0, err
	}
	return actorID, targetID, nil
}
