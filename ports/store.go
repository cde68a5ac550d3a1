package ports

import (
	"context"
	"time"

	"github.com/layer-3/palette/core"
)

// IdentityStore persists wallet identities keyed by lowercase wallet address.
type IdentityStore interface {
	// GetByWallet returns core.ErrIdentityNotFound when no row exists.
	GetByWallet(ctx context.Context, walletAddress string) (*core.WalletIdentity, error)
	GetByUserID(ctx context.Context, userID string) (*core.WalletIdentity, error)

	// Create inserts identity, or returns the existing row if the wallet is already taken.
	// The boolean reports whether a row was inserted.
	Create(ctx context.Context, identity *core.WalletIdentity) (*core.WalletIdentity, bool, error)

	// BackfillSocial sets each social field only where it is currently empty.
	BackfillSocial(ctx context.Context, walletAddress string, claim core.SocialClaim) (*core.WalletIdentity, error)

	// ApplyStats adds a validated, non-negative delta to the counters.
	ApplyStats(ctx context.Context, userID string, delta core.StatsDelta) (*core.WalletIdentity, error)
}

// SessionStore persists issued sessions keyed by token.
type SessionStore interface {
	CreateSession(ctx context.Context, session *core.Session) error

	// GetSession returns core.ErrSessionNotFound for unknown tokens.
	GetSession(ctx context.Context, token string) (*core.Session, error)

	RevokeSession(ctx context.Context, token string, at time.Time) error

	// PruneExpired deletes sessions that expired before the given instant.
	PruneExpired(ctx context.Context, before time.Time) (int64, error)
}
