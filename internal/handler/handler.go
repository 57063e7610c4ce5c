// Package handler exposes the core operations over HTTP for a UI or API
// gateway. Authentication happens upstream: every request arrives with an
// already-authenticated account id, and these handlers trust that
// contract.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"poke-backend/internal/model"
	"poke-backend/internal/service"
)

// PokeProcessor runs poke attempts and serves quota reads.
type PokeProcessor interface {
	Poke(ctx context.Context, actorID, targetID int64, attestationToken string) (*service.PokeResult, error)
	GetQuota(ctx context.Context, accountID int64) (*model.QuotaStatus, error)
}

// AccountManager serves registration, wallet reads, and the ledger entry
// points used by the withdrawal/admin collaborators.
type AccountManager interface {
	Register(ctx context.Context, id int64, displayName string) (*model.Account, bool, error)
	GetBalance(ctx context.Context, id int64) (*model.BalanceStatus, error)
	RequestWithdrawal(ctx context.Context, accountID, amount int64) (*model.Transaction, error)
	AdminAdjust(ctx context.Context, accountID, amount int64, description, idempotencyKey string, override bool) (*model.Transaction, error)
	ApplyReferralBonus(ctx context.Context, referrerID, refereeID int64) (*model.Transaction, error)
}

// AttestationIssuer records ad-completion signals.
type AttestationIssuer interface {
	Issue(ctx context.Context, actorID, targetID int64) (*model.Attestation, error)
}

// TransactionLister serves paginated ledger history.
type TransactionLister interface {
	ListTransactions(ctx context.Context, accountID int64, page, pageSize int) ([]*model.Transaction, error)
}

// SnapshotPuller serves reconciliation pulls.
type SnapshotPuller interface {
	Pull(ctx context.Context, accountID int64) (*model.Snapshot, error)
}

// HealthChecker reports storage connectivity for the health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies bundles everything the router needs.
type Dependencies struct {
	Pokes        PokeProcessor
	Accounts     AccountManager
	Attestations AttestationIssuer
	Ledger       TransactionLister
	Snapshots    SnapshotPuller
	Health       HealthChecker
}

// respondError maps a service error to an HTTP response following the
// propagation policy: user-correctable rejections surface verbatim,
// transient failures say try again, everything else is generic with the
// detail logged by the service layer.
func respondError(c *gin.Context, err error) {
	if reason, ok := service.RejectionReason(err); ok {
		c.JSON(http.StatusConflict, gin.H{"accepted": false, "reason": reason})
		return
	}
	if errors.Is(err, service.ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	if errors.Is(err, service.ErrBelowMinimumWithdrawal) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "withdrawal below minimum"})
		return
	}
	if service.IsRetryable(err) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporary failure, try again"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
