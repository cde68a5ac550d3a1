package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/layer-3/palette/adapters/chain"
	"github.com/layer-3/palette/core"
	"github.com/layer-3/palette/internal/eth"
)

// Wallet is the player's signing capability.
type Wallet interface {
	Address() common.Address
	SignMessage(ctx context.Context, text string) (string, error)
	// SendTransaction submits a call and blocks until it is mined.
	SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Receipt, error)
}

// ProviderKind selects how transactions are submitted. It is fixed at connect time.
type ProviderKind int

const (
	// StandardProvider estimates gas before every submission.
	StandardProvider ProviderKind = iota
	// ConstrainedProvider skips estimation and sends with a fixed gas limit.
	// Embedded wallets that cannot simulate calls use this.
	ConstrainedProvider
)

func (k ProviderKind) String() string {
	switch k {
	case StandardProvider:
		return "standard"
	case ConstrainedProvider:
		return "constrained"
	default:
		return fmt.Sprintf("provider(%d)", int(k))
	}
}

const (
	defaultFixedGasLimit   = 300_000
	defaultGasBufferPct    = 20
	defaultReceiptInterval = 2 * time.Second
	fallbackTipCap         = 2_000_000_000
)

// ethClient is the subset of ethclient.Client the wallet needs.
type ethClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// KeyWallet is a Wallet backed by a local key and a JSON-RPC node.
type KeyWallet struct {
	client          ethClient
	signer          *eth.KeySigner
	kind            ProviderKind
	chainID         *big.Int
	fixedGasLimit   uint64
	receiptInterval time.Duration
	logger          zerolog.Logger
}

// WalletOption configures a KeyWallet.
type WalletOption func(*KeyWallet)

// WithFixedGasLimit sets the gas limit used by ConstrainedProvider.
func WithFixedGasLimit(limit uint64) WalletOption {
	return func(w *KeyWallet) { w.fixedGasLimit = limit }
}

// WithReceiptInterval sets how often receipts are polled.
func WithReceiptInterval(d time.Duration) WalletOption {
	return func(w *KeyWallet) { w.receiptInterval = d }
}

// WithWalletLogger sets the wallet logger.
func WithWalletLogger(logger zerolog.Logger) WalletOption {
	return func(w *KeyWallet) { w.logger = logger }
}

// NewKeyWallet connects a key to client. The chain id is read once here.
func NewKeyWallet(ctx context.Context, client ethClient, signer *eth.KeySigner, kind ProviderKind, opts ...WalletOption) (*KeyWallet, error) {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain id: %w: %w", ErrBackendUnavailable, err)
	}

	w := &KeyWallet{
		client:          client,
		signer:          signer,
		kind:            kind,
		chainID:         chainID,
		fixedGasLimit:   defaultFixedGasLimit,
		receiptInterval: defaultReceiptInterval,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With().
		Str("component", "wallet").
		Str("wallet", signer.Address().Hex()).
		Stringer("provider", kind).
		Logger()
	return w, nil
}

// Address returns the wallet address.
func (w *KeyWallet) Address() common.Address { return w.signer.Address() }

// Kind returns the provider variant chosen at connect time.
func (w *KeyWallet) Kind() ProviderKind { return w.kind }

// SignMessage personal-signs text.
func (w *KeyWallet) SignMessage(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return w.signer.SignMessage([]byte(text))
}

// SendTransaction builds, signs and submits a dynamic-fee transaction, then waits for
// its receipt. A reverted receipt is returned with a nil error; callers inspect Status.
func (w *KeyWallet) SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Receipt, error) {
	if value == nil {
		value = new(big.Int)
	}
	from := w.Address()

	nonce, err := w.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	gasLimit, err := w.gasLimit(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
	if err != nil {
		return nil, err
	}
	tipCap, feeCap := w.suggestFees(ctx)

	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   w.chainID,
		Nonce:     nonce,
		To:        &to,
		Value:     value,
		Gas:       gasLimit,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Data:      data,
	})
	signed, err := types.SignTx(unsigned, types.LatestSignerForChainID(w.chainID), w.signer.PrivateKey())
	if err != nil {
		return nil, fmt.Errorf("failed to sign tx: %w", err)
	}

	if err := w.client.SendTransaction(ctx, signed); err != nil {
		w.logger.Error().Err(err).Str("tx_hash", signed.Hash().Hex()).Msg("Failed to send transaction")
		return nil, chain.ClassifyError(err)
	}

	w.logger.Info().
		Str("tx_hash", signed.Hash().Hex()).
		Uint64("nonce", nonce).
		Uint64("gas_limit", gasLimit).
		Msg("Transaction submitted")

	return w.waitReceipt(ctx, signed.Hash())
}

// gasLimit estimates for StandardProvider. A revert surfaced by estimation is returned
// so the user never pays for a call that is known to fail.
func (w *KeyWallet) gasLimit(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if w.kind == ConstrainedProvider {
		return w.fixedGasLimit, nil
	}

	est, err := w.client.EstimateGas(ctx, msg)
	if err == nil {
		return est + est*defaultGasBufferPct/100, nil
	}

	if classified := chain.ClassifyError(err); core.Kind(classified) != core.KindInternal {
		return 0, classified
	}
	w.logger.Warn().Err(err).Uint64("fallback_gas_limit", w.fixedGasLimit).Msg("Gas estimation failed, using fallback")
	return w.fixedGasLimit, nil
}

func (w *KeyWallet) suggestFees(ctx context.Context) (*big.Int, *big.Int) {
	tipCap, err := w.client.SuggestGasTipCap(ctx)
	if err != nil || tipCap == nil {
		tipCap = big.NewInt(fallbackTipCap)
	}

	head, err := w.client.HeaderByNumber(ctx, nil)
	if err != nil || head == nil || head.BaseFee == nil {
		return tipCap, new(big.Int).Add(big.NewInt(fallbackTipCap), tipCap)
	}
	return tipCap, new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tipCap)
}

func (w *KeyWallet) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(w.receiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get receipt for %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
