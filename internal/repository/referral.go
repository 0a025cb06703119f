package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ReferralRepository handles referral edges.
type ReferralRepository struct {
	db Querier
}

// NewReferralRepository creates a new ReferralRepository instance.
func NewReferralRepository(db Querier) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *ReferralRepository) WithTx(tx pgx.Tx) *ReferralRepository {
	return &ReferralRepository{db: tx}
}

// Insert records the (referrer, referred) edge unless it already exists.
// A concurrent insert of the same pair waits for the other transaction and
// then reports AlreadyExists.
func (r *ReferralRepository) Insert(ctx context.Context, referrerID, referredID int64) (InsertResult, error) {
	const query = `
		INSERT INTO referrals (referrer_id, referred_id)
		VALUES ($1, $2)
		ON CONFLICT (referrer_id, referred_id) DO NOTHING
		RETURNING id
	`

	res, err := insertOrDetect(ctx, r.db, query, referrerID, referredID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert referral: %w", err)
	}

	return res, nil
}

// CountByReferrer returns how many users the given user has referred.
func (r *ReferralRepository) CountByReferrer(ctx context.Context, referrerID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM referrals WHERE referrer_id = $1`

	var count int
	if err := r.db.QueryRow(ctx, query, referrerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count referrals: %w", err)
	}

	return count, nil
}
