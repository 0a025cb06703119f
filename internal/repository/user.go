package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"points-ledger-bot/internal/model"
)

const userColumns = `user_id, username, full_name, points, total_points, last_claim_time, created_at`

// UserRepository handles user data persistence.
type UserRepository struct {
	db Querier
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.UserID,
		&user.Username,
		&user.FullName,
		&user.Points,
		&user.TotalPoints,
		&user.LastClaimTime,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Upsert inserts a user with zero balances, or refreshes the username of an
// existing one. The full name is only filled in when it was never set.
// changed is true when the user is new or the username differs from the
// stored one, i.e. when a leaderboard row may look different.
func (r *UserRepository) Upsert(ctx context.Context, userID int64, username string, fullName *string) (user *model.User, changed bool, err error) {
	const query = `
		WITH prev AS (SELECT username FROM users WHERE user_id = $1)
		INSERT INTO users (user_id, username, full_name, points, total_points)
		VALUES ($1, $2, $3, 0, 0)
		ON CONFLICT (user_id)
		DO UPDATE SET username = EXCLUDED.username,
		              full_name = COALESCE(users.full_name, EXCLUDED.full_name)
		RETURNING ` + userColumns + `, (SELECT username FROM prev)`

	var u model.User
	var prevUsername *string
	err = r.db.QueryRow(ctx, query, userID, username, fullName).Scan(
		&u.UserID,
		&u.Username,
		&u.FullName,
		&u.Points,
		&u.TotalPoints,
		&u.LastClaimTime,
		&u.CreatedAt,
		&prevUsername,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert user: %w", err)
	}

	return &u, prevUsername == nil || *prevUsername != username, nil
}

// GetByID retrieves a user by their Telegram ID.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetForUpdate reads a user and locks the row until the transaction ends.
// Must be called on a repository bound with WithTx.
func (r *UserRepository) GetForUpdate(ctx context.Context, userID int64) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE user_id = $1 FOR UPDATE`

	user, err := scanUser(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}

	return user, nil
}

// CountExisting returns how many of the given IDs have a user row.
func (r *UserRepository) CountExisting(ctx context.Context, userIDs ...int64) (int, error) {
	const query = `SELECT COUNT(*) FROM users WHERE user_id = ANY($1)`

	var count int
	if err := r.db.QueryRow(ctx, query, userIDs).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}

	return count, nil
}

// AddPoints credits both the balance and the lifetime total.
func (r *UserRepository) AddPoints(ctx context.Context, userID int64, amount int64) (*model.User, error) {
	const query = `
		UPDATE users
		SET points = points + $2, total_points = total_points + $2
		WHERE user_id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query, userID, amount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to add points: %w", err)
	}

	return user, nil
}

// AddDailyClaim credits the daily reward and stamps the claim time.
func (r *UserRepository) AddDailyClaim(ctx context.Context, userID int64, amount int64, claimTime time.Time) (*model.User, error) {
	const query = `
		UPDATE users
		SET points = points + $2, total_points = total_points + $2, last_claim_time = $3
		WHERE user_id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query, userID, amount, claimTime.UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update daily claim: %w", err)
	}

	return user, nil
}

// Debit subtracts from the balance only; the lifetime total is left alone.
// The points >= 0 check constraint rejects an overdraft.
func (r *UserRepository) Debit(ctx context.Context, userID int64, amount int64) (*model.User, error) {
	const query = `
		UPDATE users
		SET points = points - $2
		WHERE user_id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query, userID, amount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to debit points: %w", err)
	}

	return user, nil
}

// GetLeaderboard retrieves the top N users by balance, ties by ascending ID.
func (r *UserRepository) GetLeaderboard(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	const query = `
		SELECT user_id, username, points, total_points
		FROM users
		ORDER BY points DESC, user_id ASC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []*model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.Points, &e.TotalPoints); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}

	return entries, nil
}
