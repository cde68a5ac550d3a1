package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/palette/core"
	"github.com/layer-3/palette/ports"
)

var (
	_ ports.IdentityStore = (*MemoryStore)(nil)
	_ ports.SessionStore  = (*MemoryStore)(nil)
)

// MemoryStore is an in-memory implementation of the identity and session stores
type MemoryStore struct {
	mu         sync.RWMutex
	identities map[string]*core.WalletIdentity // keyed by wallet address
	byUserID   map[string]string               // user id -> wallet address
	sessions   map[string]*core.Session        // keyed by token
	now        func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[string]*core.WalletIdentity),
		byUserID:   make(map[string]string),
		sessions:   make(map[string]*core.Session),
		now:        time.Now,
	}
}

// GetByWallet returns the identity bound to walletAddress
func (s *MemoryStore) GetByWallet(ctx context.Context, walletAddress string) (*core.WalletIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[walletAddress]
	if !ok {
		return nil, core.ErrIdentityNotFound
	}
	return copyIdentity(identity), nil
}

// GetByUserID returns the identity with the given user id
func (s *MemoryStore) GetByUserID(ctx context.Context, userID string) (*core.WalletIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallet, ok := s.byUserID[userID]
	if !ok {
		return nil, core.ErrIdentityNotFound
	}
	return copyIdentity(s.identities[wallet]), nil
}

// Create inserts a new identity unless the wallet is already bound
func (s *MemoryStore) Create(ctx context.Context, identity *core.WalletIdentity) (*core.WalletIdentity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.identities[identity.WalletAddress]; ok {
		return copyIdentity(existing), false, nil
	}

	stored := copyIdentity(identity)
	if stored.UserID == "" {
		stored.UserID = uuid.NewString()
	}
	now := s.now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.identities[stored.WalletAddress] = stored
	s.byUserID[stored.UserID] = stored.WalletAddress
	return copyIdentity(stored), true, nil
}

// BackfillSocial fills social fields that are still empty
func (s *MemoryStore) BackfillSocial(ctx context.Context, walletAddress string, claim core.SocialClaim) (*core.WalletIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[walletAddress]
	if !ok {
		return nil, core.ErrIdentityNotFound
	}

	changed := false
	if identity.SocialID == "" && claim.ID != "" {
		identity.SocialID = claim.ID
		changed = true
	}
	if identity.SocialHandle == "" && claim.Handle != "" {
		identity.SocialHandle = claim.Handle
		changed = true
	}
	if changed {
		identity.UpdatedAt = s.now().UTC()
	}
	return copyIdentity(identity), nil
}

// ApplyStats adds delta to the identity counters
func (s *MemoryStore) ApplyStats(ctx context.Context, userID string, delta core.StatsDelta) (*core.WalletIdentity, error) {
	if err := delta.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wallet, ok := s.byUserID[userID]
	if !ok {
		return nil, core.ErrIdentityNotFound
	}
	identity := s.identities[wallet]
	if err := delta.AddTo(identity); err != nil {
		return nil, err
	}
	identity.UpdatedAt = s.now().UTC()
	return copyIdentity(identity), nil
}

// CreateSession stores a newly issued session
func (s *MemoryStore) CreateSession(ctx context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUserID[session.UserID]; !ok {
		return core.ErrIdentityNotFound
	}
	s.sessions[session.Token] = copySession(session)
	return nil
}

// GetSession looks a session up by token
func (s *MemoryStore) GetSession(ctx context.Context, token string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[token]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return copySession(session), nil
}

// RevokeSession marks a session as revoked. Revoking twice keeps the first timestamp.
func (s *MemoryStore) RevokeSession(ctx context.Context, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return core.ErrSessionNotFound
	}
	if session.RevokedAt == nil {
		revokedAt := at.UTC()
		session.RevokedAt = &revokedAt
	}
	return nil
}

// PruneExpired drops sessions that expired before the given instant
func (s *MemoryStore) PruneExpired(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for token, session := range s.sessions {
		if session.ExpiresAt.Before(before) {
			delete(s.sessions, token)
			pruned++
		}
	}
	return pruned, nil
}

func copyIdentity(identity *core.WalletIdentity) *core.WalletIdentity {
	c := *identity
	return &c
}

func copySession(session *core.Session) *core.Session {
	c := *session
	if session.RevokedAt != nil {
		revokedAt := *session.RevokedAt
		c.RevokedAt = &revokedAt
	}
	return &c
}
