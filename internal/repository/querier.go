// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors for repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so every
// repository can run either standalone or inside a ledger transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InsertResult is the outcome of an insert guarded by a uniqueness constraint.
type InsertResult int

const (
	// Inserted means the row is new.
	Inserted InsertResult = iota
	// AlreadyExists means the unique key was already taken.
	AlreadyExists
)

func (r InsertResult) String() string {
	if r == Inserted {
		return "inserted"
	}
	return "already_exists"
}

// insertOrDetect runs an INSERT ... ON CONFLICT DO NOTHING RETURNING id.
// No returned row means the conflict target already existed. Any other
// constraint violation is returned as an error.
func insertOrDetect(ctx context.Context, q Querier, query string, args ...any) (InsertResult, error) {
	var id int64
	err := q.QueryRow(ctx, query, args...).Scan(&id)
	switch {
	case err == nil:
		return Inserted, nil
	case errors.Is(err, pgx.ErrNoRows):
		return AlreadyExists, nil
	default:
		return 0, err
	}
}
