package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/layer-3/palette/core"
	"github.com/layer-3/palette/internal/eth"
	"github.com/layer-3/palette/internal/metrics"
	"github.com/layer-3/palette/ports"
)

const (
	defaultSessionTTL      = 7 * 24 * time.Hour
	defaultChallengeWindow = 5 * time.Minute
)

// AuthenticateRequest carries a signed challenge submitted by a wallet.
type AuthenticateRequest struct {
	WalletAddress string
	Signature     string
	Message       string
	Timestamp     int64 // Unix milliseconds embedded in Message
	Social        core.SocialClaim
}

// AuthResult is the outcome of a successful authentication.
type AuthResult struct {
	Session  *core.Session
	Identity *core.WalletIdentity
	Created  bool // identity was created by this call
}

// AuthService handles authentication business logic
type AuthService struct {
	tokenizer  ports.Tokenizer
	identities ports.IdentityStore
	sessions   ports.SessionStore
	eventPub   ports.EventPublisher

	sessionTTL      time.Duration
	challengeWindow time.Duration
	now             func() time.Time
	logger          zerolog.Logger
	metrics         *metrics.Metrics
}

// AuthOption configures an AuthService.
type AuthOption func(*AuthService)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

// WithSessionTTL overrides the session lifetime.
func WithSessionTTL(ttl time.Duration) AuthOption {
	return func(s *AuthService) { s.sessionTTL = ttl }
}

// WithChallengeWindow overrides the accepted clock skew of a challenge timestamp.
func WithChallengeWindow(window time.Duration) AuthOption {
	return func(s *AuthService) { s.challengeWindow = window }
}

// WithAuthLogger sets the logger.
func WithAuthLogger(logger zerolog.Logger) AuthOption {
	return func(s *AuthService) { s.logger = logger.With().Str("component", "auth").Logger() }
}

// WithAuthMetrics sets the metrics sink.
func WithAuthMetrics(m *metrics.Metrics) AuthOption {
	return func(s *AuthService) { s.metrics = m }
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	identities ports.IdentityStore,
	sessions ports.SessionStore,
	eventPub ports.EventPublisher,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		tokenizer:       tokenizer,
		identities:      identities,
		sessions:        sessions,
		eventPub:        eventPub,
		sessionTTL:      defaultSessionTTL,
		challengeWindow: defaultChallengeWindow,
		now:             time.Now,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate verifies a signed challenge and issues a new session for the wallet.
func (s *AuthService) Authenticate(ctx context.Context, req AuthenticateRequest) (*AuthResult, error) {
	result, err := s.authenticate(ctx, req)
	switch {
	case err != nil:
		s.metrics.Authentication(core.Code(err))
		s.logger.Info().Err(err).Str("wallet", req.WalletAddress).Msg("authentication rejected")
	case result.Created:
		s.metrics.Authentication("created")
	default:
		s.metrics.Authentication("existing")
	}
	return result, err
}

func (s *AuthService) authenticate(ctx context.Context, req AuthenticateRequest) (*AuthResult, error) {
	if req.WalletAddress == "" || req.Signature == "" || req.Message == "" || req.Timestamp == 0 {
		return nil, fmt.Errorf("walletAddress, signedMessage, message and timestamp are required: %w", core.ErrMissingField)
	}

	wallet, err := eth.NormalizeAddress(req.WalletAddress)
	if err != nil {
		return nil, err
	}

	now := s.now()
	submitted := core.Challenge{Address: wallet, Timestamp: time.UnixMilli(req.Timestamp)}
	if !submitted.Fresh(now, s.challengeWindow) {
		return nil, core.ErrChallengeExpired
	}

	recovered, err := eth.RecoverAddress([]byte(req.Message), req.Signature)
	if err != nil {
		return nil, err
	}
	if !eth.SameAddress(recovered.Hex(), wallet) {
		return nil, core.ErrInvalidSignature
	}

	// The freshness check only means something if the signed text carries the same timestamp.
	signed, err := core.ParseChallenge(req.Message)
	if err != nil || !eth.SameAddress(signed.Address, wallet) || signed.TimestampMillis() != req.Timestamp {
		return nil, core.ErrInvalidSignature
	}

	identity, created, err := s.resolveIdentity(ctx, wallet, req.Social)
	if err != nil {
		return nil, err
	}

	session, err := s.issueSession(ctx, identity, now)
	if err != nil {
		return nil, err
	}

	if err := s.eventPub.PublishSessionIssued(ctx, session, created); err != nil {
		s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("failed to publish session issued event")
	}

	s.logger.Info().
		Str("wallet", wallet).
		Str("user_id", identity.UserID).
		Str("session_id", session.ID).
		Bool("new_identity", created).
		Msg("session issued")

	return &AuthResult{Session: session, Identity: identity, Created: created}, nil
}

// resolveIdentity finds or creates the wallet's identity and backfills empty social fields.
func (s *AuthService) resolveIdentity(ctx context.Context, wallet string, social core.SocialClaim) (*core.WalletIdentity, bool, error) {
	identity, err := s.identities.GetByWallet(ctx, wallet)
	switch {
	case errors.Is(err, core.ErrIdentityNotFound):
		identity, created, err := s.identities.Create(ctx, &core.WalletIdentity{
			WalletAddress: wallet,
			SocialID:      social.ID,
			SocialHandle:  social.Handle,
		})
		if err != nil {
			return nil, false, fmt.Errorf("failed to create identity: %w", err)
		}
		if created {
			return identity, true, nil
		}
		// Lost a race with a concurrent first login; treat the winner as existing.
		identity, err = s.backfill(ctx, identity, social)
		return identity, false, err
	case err != nil:
		return nil, false, fmt.Errorf("failed to load identity: %w", err)
	}

	identity, err = s.backfill(ctx, identity, social)
	return identity, false, err
}

func (s *AuthService) backfill(ctx context.Context, identity *core.WalletIdentity, social core.SocialClaim) (*core.WalletIdentity, error) {
	needsID := identity.SocialID == "" && social.ID != ""
	needsHandle := identity.SocialHandle == "" && social.Handle != ""
	if !needsID && !needsHandle {
		return identity, nil
	}

	updated, err := s.identities.BackfillSocial(ctx, identity.WalletAddress, social)
	if err != nil {
		return nil, fmt.Errorf("failed to backfill social identity: %w", err)
	}
	return updated, nil
}

func (s *AuthService) issueSession(ctx context.Context, identity *core.WalletIdentity, now time.Time) (*core.Session, error) {
	session := &core.Session{
		ID:            uuid.New().String(),
		UserID:        identity.UserID,
		WalletAddress: identity.WalletAddress,
		IssuedAt:      now.UTC(),
		ExpiresAt:     now.Add(s.sessionTTL).UTC(),
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session token: %w", err)
	}
	session.Token = token

	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return session, nil
}

// ValidateSession checks a bearer token against its stored session.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*core.Session, error) {
	session, err := s.validateSession(ctx, token)
	if err != nil {
		s.metrics.SessionValidation(core.Code(err))
		return nil, err
	}
	s.metrics.SessionValidation("valid")
	return session, nil
}

func (s *AuthService) validateSession(ctx context.Context, token string) (*core.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("session token is required: %w", core.ErrMissingField)
	}

	claimed, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return nil, err
	}

	stored, err := s.sessions.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if stored.ID != claimed.ID || stored.WalletAddress != claimed.WalletAddress {
		return nil, core.ErrInvalidToken
	}
	if stored.RevokedAt != nil {
		return nil, core.ErrSessionRevoked
	}
	if !s.now().Before(stored.ExpiresAt) {
		return nil, core.ErrTokenExpired
	}

	return stored, nil
}

// SignOut revokes the session behind token.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	session, err := s.ValidateSession(ctx, token)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	if err := s.sessions.RevokeSession(ctx, token, now); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	session.RevokedAt = &now

	if err := s.eventPub.PublishSignedOut(ctx, session); err != nil {
		s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("failed to publish signed out event")
	}

	s.logger.Info().Str("wallet", session.WalletAddress).Str("session_id", session.ID).Msg("session revoked")
	return nil
}

// Profile returns the identity that owns session.
func (s *AuthService) Profile(ctx context.Context, session *core.Session) (*core.WalletIdentity, error) {
	identity, err := s.identities.GetByUserID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return identity, nil
}

// RecordGame applies a game result to the session owner's counters.
func (s *AuthService) RecordGame(ctx context.Context, session *core.Session, delta core.StatsDelta) (*core.WalletIdentity, error) {
	if err := delta.Validate(); err != nil {
		return nil, err
	}

	identity, err := s.identities.ApplyStats(ctx, session.UserID, delta)
	if err != nil {
		return nil, fmt.Errorf("failed to record game: %w", err)
	}
	return identity, nil
}

// PruneSessions deletes sessions that expired before now.
func (s *AuthService) PruneSessions(ctx context.Context) (int64, error) {
	pruned, err := s.sessions.PruneExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	return pruned, nil
}
