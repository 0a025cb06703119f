// Package model defines the data models for the points ledger.
package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a Telegram user account in the ledger.
// Points is the spendable balance; TotalPoints only ever grows.
type User struct {
	UserID        int64      `db:"user_id" json:"user_id"`
	Username      string     `db:"username" json:"username"`
	FullName      *string    `db:"full_name" json:"full_name,omitempty"`
	Points        int64      `db:"points" json:"points"`
	TotalPoints   int64      `db:"total_points" json:"total_points"`
	LastClaimTime *time.Time `db:"last_claim_time" json:"last_claim_time,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// DisplayName returns the full name when known, the username otherwise.
func (u *User) DisplayName() string {
	if u.FullName != nil && *u.FullName != "" {
		return *u.FullName
	}
	return u.Username
}

// Activity is an immutable record of a single point-changing event.
type Activity struct {
	ID        int64        `db:"id" json:"id"`
	UserID    int64        `db:"user_id" json:"user_id"`
	Kind      ActivityKind `db:"activity_type" json:"activity_type"`
	Points    int64        `db:"points" json:"points"`
	Detail    Detail       `db:"details" json:"details"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// WithdrawalRequest records an accepted debit of points.
type WithdrawalRequest struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	UserID    int64          `db:"user_id" json:"user_id"`
	Amount    int64          `db:"amount" json:"amount"`
	Details   map[string]any `db:"details" json:"details,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// LeaderboardEntry is one row of the balance ranking.
type LeaderboardEntry struct {
	UserID      int64  `db:"user_id" json:"user_id"`
	Username    string `db:"username" json:"username"`
	Points      int64  `db:"points" json:"points"`
	TotalPoints int64  `db:"total_points" json:"total_points"`
}

// Channel is a social channel whose first visit earns a one-time bonus.
type Channel struct {
	ID    string `mapstructure:"id" json:"id"`
	Name  string `mapstructure:"name" json:"name"`
	Emoji string `mapstructure:"emoji" json:"emoji"`
	URL   string `mapstructure:"url" json:"url"`
}
