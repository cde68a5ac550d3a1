package ports

import "github.com/ethereum/go-ethereum/common"

// VoucherSigner holds the key the redemption contract trusts.
type VoucherSigner interface {
	Address() common.Address
	SignHash(hash common.Hash) (string, error)
}
