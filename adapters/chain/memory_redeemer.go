package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/layer-3/palette/internal/eth"
	"github.com/layer-3/palette/ports"
)

var _ ports.PoolReader = (*MemoryRedeemer)(nil)

// MemoryRedeemer is an in-process stand-in for the redemption contract. It enforces the
// same checks in the same order and keeps the used-voucher ledger the contract keeps.
type MemoryRedeemer struct {
	mu       sync.Mutex
	address  common.Address
	trusted  common.Address
	pool     *big.Int
	used     map[common.Hash]bool
	balances map[common.Address]*big.Int
	block    uint64
}

// NewMemoryRedeemer creates a redeemer at address trusting signer, funded with pool base units.
func NewMemoryRedeemer(address, signer common.Address, pool *big.Int) *MemoryRedeemer {
	return &MemoryRedeemer{
		address:  address,
		trusted:  signer,
		pool:     new(big.Int).Set(pool),
		used:     make(map[common.Hash]bool),
		balances: make(map[common.Address]*big.Int),
	}
}

// Address returns the contract address logs are emitted from.
func (r *MemoryRedeemer) Address() common.Address { return r.address }

// Execute runs claimRewardWithSignature calldata. Rejections are returned as *RevertError
// and leave no state behind.
func (r *MemoryRedeemer) Execute(calldata []byte) (*types.Receipt, error) {
	args, err := UnpackClaim(calldata)
	if err != nil {
		return nil, err
	}

	if args.Recipient == (common.Address{}) {
		return nil, &RevertError{Reason: ReasonInvalidRecipient}
	}
	if args.Amount.Sign() <= 0 {
		return nil, &RevertError{Reason: ReasonInvalidAmount}
	}

	hash, err := eth.VoucherHash(args.Recipient, args.Amount, args.Nonce)
	if err != nil {
		return nil, &RevertError{Reason: ReasonInvalidAmount}
	}

	signer, err := eth.RecoverHashSigner(hash, hexSignature(args.Signature))
	if err != nil || signer != r.trusted {
		return nil, &RevertError{Reason: ReasonInvalidSignature}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.used[hash] {
		return nil, &RevertError{Reason: ReasonNonceUsed}
	}
	if r.pool.Cmp(args.Amount) < 0 {
		return nil, &RevertError{Reason: ReasonInsufficientPool}
	}

	lg, err := rewardClaimedLog(r.address, args.Recipient, args.Amount, args.Nonce)
	if err != nil {
		return nil, err
	}

	r.used[hash] = true
	r.pool.Sub(r.pool, args.Amount)
	balance, ok := r.balances[args.Recipient]
	if !ok {
		balance = new(big.Int)
		r.balances[args.Recipient] = balance
	}
	balance.Add(balance, args.Amount)
	r.block++

	txHash := crypto.Keccak256Hash(calldata, new(big.Int).SetUint64(r.block).Bytes())
	lg.TxHash = txHash
	lg.BlockNumber = r.block

	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      txHash,
		BlockNumber: new(big.Int).SetUint64(r.block),
		Logs:        []*types.Log{lg},
	}, nil
}

// Used reports whether the voucher hash has been redeemed.
func (r *MemoryRedeemer) Used(hash common.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used[hash]
}

// BalanceOf returns the tokens paid out to account.
func (r *MemoryRedeemer) BalanceOf(account common.Address) *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if balance, ok := r.balances[account]; ok {
		return new(big.Int).Set(balance)
	}
	return new(big.Int)
}

// PoolBalance returns the remaining pool balance.
func (r *MemoryRedeemer) PoolBalance(ctx context.Context) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return new(big.Int).Set(r.pool), nil
}

func hexSignature(sig []byte) string {
	return "0x" + common.Bytes2Hex(sig)
}
