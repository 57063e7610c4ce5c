package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poke-backend/internal/model"
)

// fakeSource serves scripted snapshots and failures.
type fakeSource struct {
	snapshot *model.Snapshot
	err      error
	pulls    atomic.Int64
}

func (f *fakeSource) Pull(_ context.Context, accountID int64) (*model.Snapshot, error) {
	f.pulls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	s := *f.snapshot
	s.AccountID = accountID
	return &s, nil
}

func snapshotAt(balance int64, sent int, at time.Time) *model.Snapshot {
	return &model.Snapshot{
		Quota: model.QuotaStatus{
			DayKey:         "2026-08-31",
			SentToday:      sent,
			RemainingSends: 2 - sent,
		},
		Balance:    model.BalanceStatus{Balance: balance},
		ServerTime: at,
	}
}

func TestReconciler_RefreshReplacesWholesale(t *testing.T) {
	source := &fakeSource{snapshot: snapshotAt(100, 0, time.Now())}
	r := NewReconciler(source, 1, 30*time.Second)

	require.True(t, r.Refresh(context.Background()))
	got := r.Snapshot()
	require.NotNil(t, got)
	assert.Equal(t, int64(100), got.Balance.Balance)
	assert.Equal(t, int64(1), got.AccountID)

	// A later pull replaces every field, not a merge: the old quota view
	// disappears entirely
	source.snapshot = snapshotAt(150, 1, time.Now())
	require.True(t, r.Refresh(context.Background()))
	got = r.Snapshot()
	assert.Equal(t, int64(150), got.Balance.Balance)
	assert.Equal(t, 1, got.Quota.SentToday)
	assert.Equal(t, 1, got.Quota.RemainingSends)
}

func TestReconciler_FailureKeepsStaleCache(t *testing.T) {
	stale := snapshotAt(100, 1, time.Now().Add(-time.Minute))
	source := &fakeSource{snapshot: stale}
	r := NewReconciler(source, 1, 30*time.Second)

	require.True(t, r.Refresh(context.Background()))

	// Pulls start failing: the stale copy stays usable, nothing crashes
	source.err = errors.New("server unreachable")
	assert.False(t, r.Refresh(context.Background()))

	got := r.Snapshot()
	require.NotNil(t, got)
	assert.Equal(t, int64(100), got.Balance.Balance)

	// Connectivity returns: the next pull replaces the stale copy
	source.err = nil
	source.snapshot = snapshotAt(200, 2, time.Now())
	require.True(t, r.Refresh(context.Background()))
	assert.Equal(t, int64(200), r.Snapshot().Balance.Balance)
}

func TestReconciler_EmptyCacheBeforeFirstPull(t *testing.T) {
	source := &fakeSource{err: errors.New("down")}
	r := NewReconciler(source, 1, 30*time.Second)

	assert.False(t, r.Refresh(context.Background()))
	assert.Nil(t, r.Snapshot())
	assert.True(t, r.Stale(time.Second))
}

func TestReconciler_Stale(t *testing.T) {
	source := &fakeSource{snapshot: snapshotAt(100, 0, time.Now().Add(-2*time.Minute))}
	r := NewReconciler(source, 1, 30*time.Second)

	require.True(t, r.Refresh(context.Background()))
	assert.True(t, r.Stale(time.Minute))
	assert.False(t, r.Stale(5*time.Minute))
}

func TestReconciler_RunPullsOnInterval(t *testing.T) {
	source := &fakeSource{snapshot: snapshotAt(100, 0, time.Now())}
	r := NewReconciler(source, 1, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// The priming pull plus at least one tick
	assert.Eventually(t, func() bool { return source.pulls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
