package ports

import (
	"context"
	"math/big"
)

// PoolReader reads the reward pool's token balance from chain.
type PoolReader interface {
	PoolBalance(ctx context.Context) (*big.Int, error)
}
