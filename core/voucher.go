package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ClaimVoucher is a one-time, server-signed authorization for an exact token payout.
// Single use is enforced by the redemption contract, never by this service.
type ClaimVoucher struct {
	Recipient   common.Address
	Amount      *big.Int // Base units
	Nonce       *big.Int
	Signature   string      // 0x-hex, 65 bytes
	MessageHash common.Hash // keccak256(abi.encodePacked(recipient, amount, nonce))
	PlayerLabel string
}
