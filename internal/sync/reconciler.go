// Package sync reconciles a client-held optimistic snapshot with the
// authoritative server state. The local copy is a cache, never a source
// of truth: every successful pull replaces it wholesale, and on any
// conflict the authoritative copy wins.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"poke-backend/internal/model"
)

// Source supplies authoritative snapshots. The server's SnapshotService
// satisfies it in process; an HTTP client satisfies it across the wire.
type Source interface {
	Pull(ctx context.Context, accountID int64) (*model.Snapshot, error)
}

// Reconciler keeps one account's LocalSnapshot fresh. It pulls on a fixed
// interval while running and immediately after any locally-initiated
// action via Refresh. Field-level merging is deliberately absent.
type Reconciler struct {
	source    Source
	accountID int64
	interval  time.Duration

	mu       sync.RWMutex
	snapshot *model.Snapshot
}

// NewReconciler creates a Reconciler for one account.
func NewReconciler(source Source, accountID int64, interval time.Duration) *Reconciler {
	return &Reconciler{
		source:    source,
		accountID: accountID,
		interval:  interval,
	}
}

// Run pulls on the configured interval until the context ends. Pull
// failures are non-fatal: the previous snapshot stays usable as a
// stale-but-usable cache until the next successful pull.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Prime the cache before the first tick.
	r.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}

// Refresh pulls once, replacing the snapshot wholesale on success.
// Returns whether the pull succeeded.
func (r *Reconciler) Refresh(ctx context.Context) bool {
	snapshot, err := r.source.Pull(ctx, r.accountID)
	if err != nil {
		log.Warn().
			Err(err).
			Int64("account_id", r.accountID).
			Msg("Snapshot pull failed, keeping stale cache")
		return false
	}

	r.mu.Lock()
	r.snapshot = snapshot
	r.mu.Unlock()
	return true
}

// Snapshot returns the current local copy, which may be stale or nil if
// no pull has ever succeeded.
func (r *Reconciler) Snapshot() *model.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Stale reports whether the cache is older than the given age, or empty.
func (r *Reconciler) Stale(maxAge time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.snapshot == nil {
		return true
	}
	return time.Since(r.snapshot.ServerTime) > maxAge
}
