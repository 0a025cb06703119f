// Package service provides business logic implementations.
package service

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Input errors, returned in Result.Reason. They are detected before any
// storage access.
var (
	ErrSelfReferral   = errors.New("a user cannot refer themselves")
	ErrUnknownChannel = errors.New("unknown social channel")
	ErrInvalidAmount  = errors.New("invalid amount: must be positive")
)

// Outcome is the recoverable result of a ledger operation. Operational
// failures are never an Outcome; they come back as a non-nil error.
type Outcome int

const (
	// Granted means the operation applied (or, for eligibility checks, would apply).
	Granted Outcome = iota
	// NotFound means a referenced user does not exist.
	NotFound
	// Blocked means the daily cooldown has not elapsed yet.
	Blocked
	// AlreadyDone means a one-time action was already rewarded.
	AlreadyDone
	// InvalidInput means the request was rejected before touching storage.
	InvalidInput
	// InsufficientBalance means a withdrawal exceeds the current balance.
	InsufficientBalance
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case NotFound:
		return "not_found"
	case Blocked:
		return "blocked"
	case AlreadyDone:
		return "already_done"
	case InvalidInput:
		return "invalid_input"
	case InsufficientBalance:
		return "insufficient_balance"
	default:
		return "unknown"
	}
}

// Grant carries the balances after a successful grant.
type Grant struct {
	Points      int64 // balance after the grant
	TotalPoints int64 // lifetime total after the grant
	PointsAdded int64
}

// GrantResult is returned by ClaimDaily, GrantReferral and VisitSocialChannel.
type GrantResult struct {
	Outcome   Outcome
	Grant     Grant         // set when Outcome == Granted
	Remaining time.Duration // set when Outcome == Blocked
	Reason    error         // set when Outcome == InvalidInput
}

// Eligibility is returned by CheckDailyEligibility.
type Eligibility struct {
	Outcome   Outcome       // Granted, Blocked or NotFound
	Remaining time.Duration // set when Outcome == Blocked
}

// Eligible reports whether a claim would be granted now.
func (e Eligibility) Eligible() bool {
	return e.Outcome == Granted
}

// SecondsRemaining returns the remaining cooldown in whole seconds, rounded up.
func (e Eligibility) SecondsRemaining() int64 {
	return secondsCeil(e.Remaining)
}

// SecondsRemaining returns the remaining cooldown in whole seconds, rounded up.
func (r GrantResult) SecondsRemaining() int64 {
	return secondsCeil(r.Remaining)
}

// WithdrawalResult is returned by RequestWithdrawal.
type WithdrawalResult struct {
	Outcome          Outcome
	WithdrawalID     uuid.UUID // set when Outcome == Granted
	Amount           int64
	RemainingBalance int64
	Reason           error // set when Outcome == InvalidInput
}

func secondsCeil(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
