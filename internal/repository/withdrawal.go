package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"points-ledger-bot/internal/model"
)

// WithdrawalRepository handles withdrawal request records.
type WithdrawalRepository struct {
	db Querier
}

// NewWithdrawalRepository creates a new WithdrawalRepository instance.
func NewWithdrawalRepository(db Querier) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *WithdrawalRepository) WithTx(tx pgx.Tx) *WithdrawalRepository {
	return &WithdrawalRepository{db: tx}
}

// Create stores a withdrawal request under a freshly generated ID.
func (r *WithdrawalRepository) Create(ctx context.Context, userID int64, amount int64, details map[string]any, createdAt time.Time) (*model.WithdrawalRequest, error) {
	const query = `
		INSERT INTO withdrawal_requests (id, user_id, amount, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to encode withdrawal details: %w", err)
	}

	req := &model.WithdrawalRequest{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    amount,
		Details:   details,
		CreatedAt: createdAt.UTC(),
	}
	if _, err := r.db.Exec(ctx, query, req.ID, userID, amount, payload, req.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create withdrawal request: %w", err)
	}

	return req, nil
}

// ListByUser retrieves a user's withdrawal requests, newest first.
func (r *WithdrawalRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.WithdrawalRequest, error) {
	const query = `
		SELECT id, user_id, amount, details, created_at
		FROM withdrawal_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal requests: %w", err)
	}
	defer rows.Close()

	var requests []*model.WithdrawalRequest
	for rows.Next() {
		var req model.WithdrawalRequest
		if err := rows.Scan(&req.ID, &req.UserID, &req.Amount, &req.Details, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal request: %w", err)
		}
		requests = append(requests, &req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawal requests: %w", err)
	}

	return requests, nil
}
