package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"points-ledger-bot/internal/model"
)

// ActivityRepository handles the append-only activity log.
type ActivityRepository struct {
	db Querier
}

// NewActivityRepository creates a new ActivityRepository instance.
func NewActivityRepository(db Querier) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *ActivityRepository) WithTx(tx pgx.Tx) *ActivityRepository {
	return &ActivityRepository{db: tx}
}

// Append records a new activity. There is no update or delete counterpart.
func (r *ActivityRepository) Append(ctx context.Context, userID int64, kind model.ActivityKind, points int64, detail model.Detail, createdAt time.Time) (*model.Activity, error) {
	const query = `
		INSERT INTO activities (user_id, activity_type, points, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	payload, err := model.EncodeDetail(detail)
	if err != nil {
		return nil, fmt.Errorf("failed to encode activity detail: %w", err)
	}

	activity := model.Activity{
		UserID: userID,
		Kind:   kind,
		Points: points,
		Detail: detail,
	}
	err = r.db.QueryRow(ctx, query, userID, string(kind), points, payload, createdAt.UTC()).Scan(
		&activity.ID,
		&activity.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append activity: %w", err)
	}

	return &activity, nil
}

// ListByUser retrieves a user's activities, newest first.
func (r *ActivityRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.Activity, error) {
	const query = `
		SELECT id, user_id, activity_type, points, details, created_at
		FROM activities
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get activities: %w", err)
	}
	defer rows.Close()

	var activities []*model.Activity
	for rows.Next() {
		var (
			a    model.Activity
			kind string
			raw  []byte
		)
		if err := rows.Scan(&a.ID, &a.UserID, &kind, &a.Points, &raw, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.Kind = model.ActivityKind(kind)
		a.Detail, err = model.DecodeDetail(a.Kind, raw)
		if err != nil {
			return nil, err
		}
		activities = append(activities, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}

	return activities, nil
}
