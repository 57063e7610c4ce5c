// Package lock provides per-account locking for balance and quota operations.
package lock

import (
	"sync"
)

// accountMutex wraps a mutex with reference counting for cleanup.
type accountMutex struct {
	mu       sync.Mutex
	refCount int
}

// AccountLock provides per-account locking to prevent race conditions
// during quota reservation and ledger application.
type AccountLock struct {
	locks sync.Map // map[int64]*accountMutex
	pool  sync.Pool
}

// NewAccountLock creates a new AccountLock instance.
func NewAccountLock() *AccountLock {
	return &AccountLock{
		pool: sync.Pool{
			New: func() any {
				return &accountMutex{}
			},
		},
	}
}

// getLock retrieves or creates a mutex for the given account ID.
func (al *AccountLock) getLock(accountID int64) *accountMutex {
	// Try to load existing lock
	if v, ok := al.locks.Load(accountID); ok {
		return v.(*accountMutex)
	}

	// Create new lock from pool
	newLock := al.pool.Get().(*accountMutex)
	newLock.refCount = 0

	// Store or load existing (handles race condition)
	actual, loaded := al.locks.LoadOrStore(accountID, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool
		al.pool.Put(newLock)
	}
	return actual.(*accountMutex)
}

// Lock acquires the lock for an account.
// This must be called before any balance- or quota-modifying operation.
func (al *AccountLock) Lock(accountID int64) {
	l := al.getLock(accountID)
	l.mu.Lock()
	l.refCount++
}

// Unlock releases the lock for an account.
func (al *AccountLock) Unlock(accountID int64) {
	if v, ok := al.locks.Load(accountID); ok {
		l := v.(*accountMutex)
		l.refCount--
		l.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (al *AccountLock) TryLock(accountID int64) bool {
	l := al.getLock(accountID)
	if l.mu.TryLock() {
		l.refCount++
		return true
	}
	return false
}

// WithLock executes a function while holding the account's lock.
func (al *AccountLock) WithLock(accountID int64, fn func() error) error {
	al.Lock(accountID)
	defer al.Unlock(accountID)
	return fn()
}

// LockPair acquires the locks for two accounts in ascending id order.
// The fixed global order prevents deadlock between two accounts poking
// each other concurrently.
func (al *AccountLock) LockPair(a, b int64) {
	if a == b {
		al.Lock(a)
		return
	}
	first, second := orderPair(a, b)
	al.Lock(first)
	al.Lock(second)
}

// UnlockPair releases the locks for two accounts in reverse acquisition
// order.
func (al *AccountLock) UnlockPair(a, b int64) {
	if a == b {
		al.Unlock(a)
		return
	}
	first, second := orderPair(a, b)
	al.Unlock(second)
	al.Unlock(first)
}

// WithPairLock executes a function while holding both accounts' locks.
func (al *AccountLock) WithPairLock(a, b int64, fn func() error) error {
	al.LockPair(a, b)
	defer al.UnlockPair(a, b)
	return fn()
}

// IsLocked checks if an account currently has an active lock.
// Note: This is a point-in-time check and may change immediately after.
func (al *AccountLock) IsLocked(accountID int64) bool {
	if v, ok := al.locks.Load(accountID); ok {
		l := v.(*accountMutex)
		// Try to acquire and immediately release to check if locked
		if l.mu.TryLock() {
			l.mu.Unlock()
			return false
		}
		return true
	}
	return false
}

func orderPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}
