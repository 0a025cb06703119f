package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SocialVisitRepository handles one-time social channel markers.
type SocialVisitRepository struct {
	db Querier
}

// NewSocialVisitRepository creates a new SocialVisitRepository instance.
func NewSocialVisitRepository(db Querier) *SocialVisitRepository {
	return &SocialVisitRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *SocialVisitRepository) WithTx(tx pgx.Tx) *SocialVisitRepository {
	return &SocialVisitRepository{db: tx}
}

// Insert records that the channel bonus was granted, unless it already was.
func (r *SocialVisitRepository) Insert(ctx context.Context, userID int64, channel string) (InsertResult, error) {
	const query = `
		INSERT INTO social_media_visits (user_id, social_type)
		VALUES ($1, $2)
		ON CONFLICT (user_id, social_type) DO NOTHING
		RETURNING id
	`

	res, err := insertOrDetect(ctx, r.db, query, userID, channel)
	if err != nil {
		return 0, fmt.Errorf("failed to insert social visit: %w", err)
	}

	return res, nil
}

// ListChannels returns the channels a user has already been rewarded for.
func (r *SocialVisitRepository) ListChannels(ctx context.Context, userID int64) ([]string, error) {
	const query = `
		SELECT social_type
		FROM social_media_visits
		WHERE user_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get social visits: %w", err)
	}

	channels, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan social visits: %w", err)
	}

	return channels, nil
}
