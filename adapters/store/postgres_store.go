package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/layer-3/palette/core"
	"github.com/layer-3/palette/ports"
)

var (
	_ ports.IdentityStore = (*PostgresStore)(nil)
	_ ports.SessionStore  = (*PostgresStore)(nil)
)

const identityColumns = `
	user_id, wallet_address, COALESCE(social_id, ''), COALESCE(social_handle, ''),
	games_played, games_won, tokens_won, created_at, updated_at
`

const (
	foreignKeyViolation    = "23503"
	numericValueOutOfRange = "22003"
)

// PostgresStore persists identities and sessions in PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// GetByWallet retrieves the identity bound to walletAddress
func (s *PostgresStore) GetByWallet(ctx context.Context, walletAddress string) (*core.WalletIdentity, error) {
	query := `SELECT ` + identityColumns + ` FROM wallet_identities WHERE wallet_address = $1`

	identity, err := scanIdentity(s.pool.QueryRow(ctx, query, walletAddress))
	if err != nil {
		return nil, wrapIdentityErr("get identity", err)
	}
	return identity, nil
}

// GetByUserID retrieves the identity with the given user id
func (s *PostgresStore) GetByUserID(ctx context.Context, userID string) (*core.WalletIdentity, error) {
	query := `SELECT ` + identityColumns + ` FROM wallet_identities WHERE user_id = $1`

	identity, err := scanIdentity(s.pool.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, wrapIdentityErr("get identity", err)
	}
	return identity, nil
}

// Create inserts the identity. A concurrent insert for the same wallet wins and its row is returned.
func (s *PostgresStore) Create(ctx context.Context, identity *core.WalletIdentity) (*core.WalletIdentity, bool, error) {
	userID := identity.UserID
	if userID == "" {
		userID = uuid.NewString()
	}

	query := `
		INSERT INTO wallet_identities (user_id, wallet_address, social_id, social_handle, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NOW(), NOW())
		ON CONFLICT (wallet_address) DO NOTHING
		RETURNING ` + identityColumns

	created, err := scanIdentity(s.pool.QueryRow(ctx, query,
		userID, identity.WalletAddress, identity.SocialID, identity.SocialHandle))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create identity: %w: %w", core.ErrStore, err)
	}

	existing, err := s.GetByWallet(ctx, identity.WalletAddress)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// BackfillSocial fills empty social fields; populated fields are never overwritten
func (s *PostgresStore) BackfillSocial(ctx context.Context, walletAddress string, claim core.SocialClaim) (*core.WalletIdentity, error) {
	query := `
		UPDATE wallet_identities
		SET social_id     = COALESCE(NULLIF(social_id, ''), NULLIF($2, '')),
		    social_handle = COALESCE(NULLIF(social_handle, ''), NULLIF($3, '')),
		    updated_at    = NOW()
		WHERE wallet_address = $1
		RETURNING ` + identityColumns

	identity, err := scanIdentity(s.pool.QueryRow(ctx, query, walletAddress, claim.ID, claim.Handle))
	if err != nil {
		return nil, wrapIdentityErr("backfill social identity", err)
	}
	return identity, nil
}

// ApplyStats adds a validated delta to the counters
func (s *PostgresStore) ApplyStats(ctx context.Context, userID string, delta core.StatsDelta) (*core.WalletIdentity, error) {
	if err := delta.Validate(); err != nil {
		return nil, err
	}

	query := `
		UPDATE wallet_identities
		SET games_played = games_played + $2,
		    games_won    = games_won + $3,
		    tokens_won   = tokens_won + $4,
		    updated_at   = NOW()
		WHERE user_id = $1
		RETURNING ` + identityColumns

	identity, err := scanIdentity(s.pool.QueryRow(ctx, query,
		userID, delta.GamesPlayed, delta.GamesWon, delta.TokensWon))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == numericValueOutOfRange {
			return nil, fmt.Errorf("counter overflow: %w", core.ErrInvalidStats)
		}
		return nil, wrapIdentityErr("apply stats", err)
	}
	return identity, nil
}

// CreateSession inserts a session row
func (s *PostgresStore) CreateSession(ctx context.Context, session *core.Session) error {
	const query = `
		INSERT INTO sessions (token, id, user_id, wallet_address, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		session.Token, session.ID, session.UserID, session.WalletAddress,
		session.IssuedAt, session.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return core.ErrIdentityNotFound
		}
		return fmt.Errorf("failed to create session: %w: %w", core.ErrStore, err)
	}

	return nil
}

// GetSession retrieves a session by token
func (s *PostgresStore) GetSession(ctx context.Context, token string) (*core.Session, error) {
	const query = `
		SELECT token, id, user_id, wallet_address, issued_at, expires_at, revoked_at
		FROM sessions
		WHERE token = $1
	`

	var session core.Session
	err := s.pool.QueryRow(ctx, query, token).Scan(
		&session.Token,
		&session.ID,
		&session.UserID,
		&session.WalletAddress,
		&session.IssuedAt,
		&session.ExpiresAt,
		&session.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w: %w", core.ErrStore, err)
	}

	return &session, nil
}

// RevokeSession sets revoked_at once; later calls keep the first timestamp
func (s *PostgresStore) RevokeSession(ctx context.Context, token string, at time.Time) error {
	const query = `
		UPDATE sessions
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE token = $1
	`

	tag, err := s.pool.Exec(ctx, query, token, at)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w: %w", core.ErrStore, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrSessionNotFound
	}

	return nil
}

// PruneExpired deletes sessions that expired before the given instant
func (s *PostgresStore) PruneExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w: %w", core.ErrStore, err)
	}
	return tag.RowsAffected(), nil
}

func scanIdentity(row pgx.Row) (*core.WalletIdentity, error) {
	var identity core.WalletIdentity
	err := row.Scan(
		&identity.UserID,
		&identity.WalletAddress,
		&identity.SocialID,
		&identity.SocialHandle,
		&identity.GamesPlayed,
		&identity.GamesWon,
		&identity.TokensWon,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

func wrapIdentityErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrIdentityNotFound
	}
	return fmt.Errorf("failed to %s: %w: %w", op, core.ErrStore, err)
}
