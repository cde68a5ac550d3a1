package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "wallet_identities table",
		sql: `
			CREATE TABLE IF NOT EXISTS wallet_identities (
				user_id        TEXT PRIMARY KEY,
				wallet_address VARCHAR(42) NOT NULL UNIQUE,
				social_id      TEXT,
				social_handle  TEXT,
				games_played   BIGINT NOT NULL DEFAULT 0 CHECK (games_played >= 0),
				games_won      BIGINT NOT NULL DEFAULT 0 CHECK (games_won >= 0),
				tokens_won     BIGINT NOT NULL DEFAULT 0 CHECK (tokens_won >= 0),
				created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CHECK (wallet_address = LOWER(wallet_address))
			);
		`,
	},
	{
		name: "sessions table",
		sql: `
			CREATE TABLE IF NOT EXISTS sessions (
				token          TEXT PRIMARY KEY,
				id             TEXT NOT NULL UNIQUE,
				user_id        TEXT NOT NULL REFERENCES wallet_identities(user_id) ON DELETE CASCADE,
				wallet_address VARCHAR(42) NOT NULL,
				issued_at      TIMESTAMPTZ NOT NULL,
				expires_at     TIMESTAMPTZ NOT NULL,
				revoked_at     TIMESTAMPTZ
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
			CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
		`,
	},
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	logger.Info().Msg("Running database migrations")

	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", i+1, m.name, err)
		}
		logger.Info().Int("migration", i+1).Str("name", m.name).Msg("Migration applied")
	}

	return nil
}
