package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Execer is satisfied by *pgxpool.Pool, *Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "users table",
		sql: `
			CREATE TABLE IF NOT EXISTS users (
				user_id BIGINT PRIMARY KEY,
				username VARCHAR(255) NOT NULL,
				full_name VARCHAR(255),
				points BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0),
				total_points BIGINT NOT NULL DEFAULT 0 CHECK (total_points >= 0),
				last_claim_time TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_users_points ON users(points DESC, user_id ASC);
		`,
	},
	{
		name: "referrals table",
		sql: `
			CREATE TABLE IF NOT EXISTS referrals (
				id BIGSERIAL PRIMARY KEY,
				referrer_id BIGINT NOT NULL REFERENCES users(user_id),
				referred_id BIGINT NOT NULL REFERENCES users(user_id),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (referrer_id, referred_id),
				CHECK (referrer_id <> referred_id)
			);
		`,
	},
	{
		name: "activities table",
		sql: `
			CREATE TABLE IF NOT EXISTS activities (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(user_id),
				activity_type VARCHAR(50) NOT NULL,
				points BIGINT NOT NULL,
				details JSONB NOT NULL DEFAULT '{}'::jsonb,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_activities_user_time ON activities(user_id, created_at DESC, id DESC);
		`,
	},
	{
		name: "social_media_visits table",
		sql: `
			CREATE TABLE IF NOT EXISTS social_media_visits (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(user_id),
				social_type VARCHAR(50) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (user_id, social_type)
			);
		`,
	},
	{
		name: "withdrawal_requests table",
		sql: `
			CREATE TABLE IF NOT EXISTS withdrawal_requests (
				id UUID PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(user_id),
				amount BIGINT NOT NULL CHECK (amount > 0),
				details JSONB NOT NULL DEFAULT '{}'::jsonb,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_user ON withdrawal_requests(user_id, created_at DESC);
		`,
	},
	{
		// Older deployments stored zone-less timestamps written in UTC
		name: "legacy timestamps to timestamptz",
		sql: `
			DO $$
			DECLARE
				col RECORD;
			BEGIN
				FOR col IN
					SELECT table_name, column_name
					FROM information_schema.columns
					WHERE table_schema = current_schema()
					  AND table_name IN ('users', 'referrals', 'activities', 'social_media_visits')
					  AND column_name IN ('last_claim_time', 'created_at')
					  AND data_type = 'timestamp without time zone'
				LOOP
					EXECUTE format(
						'ALTER TABLE %I ALTER COLUMN %I TYPE TIMESTAMPTZ USING %I AT TIME ZONE ''UTC''',
						col.table_name, col.column_name, col.column_name
					);
				END LOOP;
			END
			$$;
		`,
	},
}

// RunMigrations applies the ledger schema. Every step is idempotent.
func RunMigrations(ctx context.Context, db Execer) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", i+1, m.name, err)
		}
		log.Info().Int("step", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
