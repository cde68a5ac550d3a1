package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/palette/ports"
)

// contractCaller is the subset of ethclient.Client the pool reader needs.
type contractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var _ ports.PoolReader = (*PoolReader)(nil)

// PoolReader reads the redemption contract's token balance.
type PoolReader struct {
	client contractCaller
	token  common.Address
	pool   common.Address
}

// NewPoolReader creates a reader for token.balanceOf(pool).
func NewPoolReader(client contractCaller, token, pool common.Address) *PoolReader {
	return &PoolReader{client: client, token: token, pool: pool}
}

// PoolBalance returns the pool balance in base units at the latest block.
func (r *PoolReader) PoolBalance(ctx context.Context) (*big.Int, error) {
	data, err := erc20ABI.Pack(MethodBalanceOf, r.pool)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &r.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	values, err := erc20ABI.Unpack(MethodBalanceOf, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result %T", values[0])
	}

	return balance, nil
}
