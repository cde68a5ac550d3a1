package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/layer-3/palette/adapters/chain"
	"github.com/layer-3/palette/adapters/tokenizer"
	"github.com/layer-3/palette/core"
	"github.com/layer-3/palette/internal/eth"
)

// Orchestrator drives the player side: sign in with the wallet, then turn a reward
// into a voucher and redeem it on-chain.
type Orchestrator struct {
	wallet   Wallet
	api      *APIClient
	contract common.Address
	now      func() time.Time
	logger   zerolog.Logger

	mu      sync.RWMutex
	token   string
	profile *Profile
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorClock overrides time.Now for challenge timestamps.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger zerolog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator creates an orchestrator redeeming against the contract at redemption.
func NewOrchestrator(wallet Wallet, api *APIClient, redemption common.Address, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		wallet:   wallet,
		api:      api,
		contract: redemption,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With().Str("component", "orchestrator").Logger()
	return o
}

// Connect signs a fresh challenge and exchanges it for a session. A declined signature
// returns ErrUserRejected before anything reaches the backend.
func (o *Orchestrator) Connect(ctx context.Context, social core.SocialClaim) (*Profile, error) {
	address := o.wallet.Address().Hex()
	challenge := core.NewChallenge(address, o.now())

	signature, err := o.wallet.SignMessage(ctx, challenge.Message())
	if err != nil {
		return nil, chain.ClassifyError(err)
	}

	resp, err := o.api.Authenticate(ctx, address, challenge, signature, social)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.token = resp.SessionToken
	o.profile = &resp.UserProfile
	o.mu.Unlock()

	o.logger.Info().Str("wallet", resp.UserProfile.WalletAddress).Msg("Connected")
	return &resp.UserProfile, nil
}

// SessionToken returns the held token, or "".
func (o *Orchestrator) SessionToken() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.token
}

// Profile returns the profile received at sign-in.
func (o *Orchestrator) Profile() *Profile {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.profile
}

// SessionLooksValid decodes the held token locally and reports whether it is unexpired
// and belongs to this wallet. Only the backend decides whether a session is valid.
func (o *Orchestrator) SessionLooksValid(now time.Time) bool {
	token := o.SessionToken()
	if token == "" {
		return false
	}

	claims, err := tokenizer.DecodeUnverified(token)
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	if !eth.SameAddress(claims.Subject, o.wallet.Address().Hex()) {
		return false
	}
	return now.Before(claims.ExpiresAt.Time)
}

// Disconnect revokes the session on the backend and forgets it locally. The local
// token is dropped even when the backend cannot be reached.
func (o *Orchestrator) Disconnect(ctx context.Context) error {
	o.mu.Lock()
	token := o.token
	o.token = ""
	o.profile = nil
	o.mu.Unlock()

	if token == "" {
		return nil
	}
	return o.api.SignOut(ctx, token)
}

// ClaimReward requests a voucher for amount whole tokens and redeems it. Failures are
// classified onto core sentinels; a failed redemption leaves the voucher unused.
func (o *Orchestrator) ClaimReward(ctx context.Context, amount decimal.Decimal, label string) (*chain.RewardClaimed, error) {
	voucher, err := o.api.RequestVoucher(ctx, o.SessionToken(), o.wallet.Address(), amount, label)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With().
		Str("recipient", voucher.Recipient.Hex()).
		Str("nonce", voucher.Nonce.String()).
		Logger()

	calldata, err := chain.PackClaim(voucher)
	if err != nil {
		return nil, err
	}

	receipt, err := o.wallet.SendTransaction(ctx, o.contract, calldata, nil)
	if err != nil {
		classified := chain.ClassifyError(err)
		logger.Warn().Err(classified).Str("code", core.Code(classified)).Msg("Redemption failed")
		return nil, classified
	}

	claimed, err := chain.ParseRewardClaimed(receipt, o.contract)
	if err != nil {
		return nil, fmt.Errorf("redemption %s: %w", receipt.TxHash.Hex(), err)
	}

	logger.Info().
		Str("tx_hash", claimed.TxHash.Hex()).
		Str("amount", claimed.Amount.String()).
		Msg("Reward claimed")
	return claimed, nil
}
