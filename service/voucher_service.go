package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/layer-3/palette/core"
	"github.com/layer-3/palette/internal/eth"
	"github.com/layer-3/palette/internal/metrics"
	"github.com/layer-3/palette/ports"
)

const nonceSpread = 1000

var bigNonceSpread = big.NewInt(nonceSpread)

// IssueRequest asks for a voucher paying Amount (human units) to WalletAddress.
type IssueRequest struct {
	WalletAddress string
	Amount        *decimal.Decimal
	PlayerLabel   string
	SessionToken  string // required only when session checks are enabled
}

// SessionValidator resolves bearer tokens to live sessions.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*core.Session, error)
}

// VoucherService signs claim vouchers. It keeps no record of what it issued.
type VoucherService struct {
	signer   ports.VoucherSigner
	eventPub ports.EventPublisher
	decimals uint8

	maxReward   *decimal.Decimal
	sessions    SessionValidator
	pool        ports.PoolReader
	poolTimeout time.Duration

	now    func() time.Time
	random io.Reader
	logger zerolog.Logger

	metrics *metrics.Metrics

	nonceMu   sync.Mutex
	lastNonce *big.Int
}

// VoucherOption configures a VoucherService.
type VoucherOption func(*VoucherService)

// WithMaxReward rejects requests above max human units.
func WithMaxReward(max decimal.Decimal) VoucherOption {
	return func(s *VoucherService) { s.maxReward = &max }
}

// WithSessionCheck requires a live session for the requested wallet.
func WithSessionCheck(v SessionValidator) VoucherOption {
	return func(s *VoucherService) { s.sessions = v }
}

// WithPoolReader enables an advisory pool balance check.
func WithPoolReader(pool ports.PoolReader, timeout time.Duration) VoucherOption {
	return func(s *VoucherService) {
		s.pool = pool
		s.poolTimeout = timeout
	}
}

// WithVoucherClock replaces the wall clock used for nonces.
func WithVoucherClock(now func() time.Time) VoucherOption {
	return func(s *VoucherService) { s.now = now }
}

// WithVoucherLogger sets the logger.
func WithVoucherLogger(logger zerolog.Logger) VoucherOption {
	return func(s *VoucherService) { s.logger = logger.With().Str("component", "voucher").Logger() }
}

// WithVoucherMetrics sets the metrics sink.
func WithVoucherMetrics(m *metrics.Metrics) VoucherOption {
	return func(s *VoucherService) { s.metrics = m }
}

// NewVoucherService creates a voucher service for a token with the given decimals.
func NewVoucherService(signer ports.VoucherSigner, eventPub ports.EventPublisher, decimals uint8, opts ...VoucherOption) *VoucherService {
	s := &VoucherService{
		signer:      signer,
		eventPub:    eventPub,
		decimals:    decimals,
		poolTimeout: 3 * time.Second,
		now:         time.Now,
		random:      rand.Reader,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignerAddress returns the address the redemption contract must trust.
func (s *VoucherService) SignerAddress() common.Address {
	return s.signer.Address()
}

// IssueVoucher signs a fresh voucher. Repeated calls yield independent vouchers.
func (s *VoucherService) IssueVoucher(ctx context.Context, req IssueRequest) (*core.ClaimVoucher, error) {
	voucher, err := s.issue(ctx, req)
	if err != nil {
		s.metrics.VoucherFailed(core.Code(err))
		return nil, err
	}
	s.metrics.VoucherIssued()
	return voucher, nil
}

func (s *VoucherService) issue(ctx context.Context, req IssueRequest) (*core.ClaimVoucher, error) {
	if req.WalletAddress == "" {
		return nil, fmt.Errorf("walletAddress is required: %w", core.ErrMissingField)
	}
	if req.Amount == nil {
		return nil, fmt.Errorf("rewardAmount is required: %w", core.ErrMissingField)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("rewardAmount must be positive: %w", core.ErrInvalidAmount)
	}

	wallet, err := eth.NormalizeAddress(req.WalletAddress)
	if err != nil {
		return nil, err
	}

	if s.maxReward != nil && req.Amount.GreaterThan(*s.maxReward) {
		return nil, fmt.Errorf("rewardAmount exceeds maximum of %s: %w", s.maxReward.String(), core.ErrInvalidAmount)
	}

	if s.sessions != nil {
		if req.SessionToken == "" {
			return nil, fmt.Errorf("session token is required: %w", core.ErrInvalidToken)
		}
		session, err := s.sessions.ValidateSession(ctx, req.SessionToken)
		if err != nil {
			return nil, err
		}
		if session.WalletAddress != wallet {
			return nil, core.ErrWalletMismatch
		}
	}

	amount, err := core.ToBaseUnits(*req.Amount, s.decimals)
	if err != nil {
		return nil, err
	}

	nonce, err := s.nextNonce()
	if err != nil {
		return nil, err
	}

	recipient := common.HexToAddress(wallet)
	hash, err := eth.VoucherHash(recipient, amount, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to hash voucher: %w", err)
	}

	signature, err := s.signer.SignHash(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign voucher: %w", err)
	}

	voucher := &core.ClaimVoucher{
		Recipient:   recipient,
		Amount:      amount,
		Nonce:       nonce,
		Signature:   signature,
		MessageHash: hash,
		PlayerLabel: strings.TrimSpace(req.PlayerLabel),
	}

	s.checkPool(ctx, amount)

	if err := s.eventPub.PublishVoucherIssued(ctx, voucher); err != nil {
		s.logger.Warn().Err(err).Str("message_hash", hash.Hex()).Msg("failed to publish voucher issued event")
	}

	s.logger.Info().
		Str("recipient", wallet).
		Str("amount", amount.String()).
		Str("nonce", nonce.String()).
		Str("message_hash", hash.Hex()).
		Msg("voucher issued")

	return voucher, nil
}

// nextNonce returns unixMillis*1000 + r, r uniform in [0,1000). Within one process the
// result is strictly increasing.
func (s *VoucherService) nextNonce() (*big.Int, error) {
	r, err := rand.Int(s.random, bigNonceSpread)
	if err != nil {
		return nil, fmt.Errorf("failed to draw nonce: %w", err)
	}

	nonce := big.NewInt(s.now().UnixMilli())
	nonce.Mul(nonce, bigNonceSpread)
	nonce.Add(nonce, r)

	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()
	if s.lastNonce != nil && nonce.Cmp(s.lastNonce) <= 0 {
		nonce.Add(s.lastNonce, big.NewInt(1))
	}
	s.lastNonce = new(big.Int).Set(nonce)

	return nonce, nil
}

// checkPool warns when the pool cannot cover amount. The contract decides; this never rejects.
func (s *VoucherService) checkPool(ctx context.Context, amount *big.Int) {
	if s.pool == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.poolTimeout)
	defer cancel()

	balance, err := s.pool.PoolBalance(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read reward pool balance")
		return
	}
	if balance.Cmp(amount) < 0 {
		s.logger.Warn().
			Str("pool_balance", balance.String()).
			Str("amount", amount.String()).
			Msg("reward pool cannot cover voucher")
	}
}
