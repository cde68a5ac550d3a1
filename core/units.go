package core

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a human-facing token quantity into the token's smallest unit.
// The result must be a positive integer number of base units that fits a uint256.
func ToBaseUnits(human decimal.Decimal, decimals uint8) (*big.Int, error) {
	if human.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	scaled := human.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %s has more than %d decimals: %w", human.String(), decimals, ErrInvalidAmount)
	}

	base := scaled.BigInt()
	if base.BitLen() > 256 {
		return nil, fmt.Errorf("amount %s overflows uint256 base units: %w", human.String(), ErrInvalidAmount)
	}

	return base, nil
}

// FromBaseUnits converts base units back to a human-facing decimal.
func FromBaseUnits(base *big.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(base, -int32(decimals))
}
