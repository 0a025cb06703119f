// Package lock provides a per-user in-flight guard for the bot front end.
// It only stops one user from running two ledger calls at once from the same
// process; correctness of balances never depends on it.
package lock

import (
	"sync"
)

// UserLock tracks which users currently have a request in flight.
// Entries are removed when Do returns, so the map never grows beyond the number
// of concurrent requests.
type UserLock struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{held: make(map[int64]struct{})}
}

// tryLock marks the user as busy. Returns false if they already are.
func (ul *UserLock) tryLock(userID int64) bool {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	if _, busy := ul.held[userID]; busy {
		return false
	}
	ul.held[userID] = struct{}{}
	return true
}

// unlock releases the user. Unlocking a free user is a no-op.
func (ul *UserLock) unlock(userID int64) {
	ul.mu.Lock()
	delete(ul.held, userID)
	ul.mu.Unlock()
}

// Len returns the number of users with a request in flight.
func (ul *UserLock) Len() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.held)
}

// Do runs fn while the user is marked busy.
// Returns ErrBusy without calling fn if the user already has a request in flight.
func (ul *UserLock) Do(userID int64, fn func() error) error {
	if !ul.tryLock(userID) {
		return ErrBusy
	}
	defer ul.unlock(userID)
	return fn()
}
