package eth

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// VoucherEncodingVersion identifies the field layout of VoucherHash. Any change to the
// order, widths or encoding of the voucher tuple invalidates outstanding vouchers and must
// bump this value together with the redemption contract.
const VoucherEncodingVersion = 1

type fieldKind uint8

const (
	kindAddress fieldKind = iota + 1
	kindUint256
)

// Field is one typed element of a packed tuple.
type Field struct {
	kind fieldKind
	addr common.Address
	num  *big.Int
}

// AddressField packs as 20 raw bytes.
func AddressField(addr common.Address) Field {
	return Field{kind: kindAddress, addr: addr}
}

// Uint256Field packs as a 32-byte big-endian word.
func Uint256Field(v *big.Int) Field {
	return Field{kind: kindUint256, num: v}
}

func (f Field) packed() ([]byte, error) {
	switch f.kind {
	case kindAddress:
		return f.addr.Bytes(), nil
	case kindUint256:
		if f.num == nil || f.num.Sign() < 0 || f.num.BitLen() > 256 {
			return nil, fmt.Errorf("value out of uint256 range: %v", f.num)
		}
		return common.LeftPadBytes(f.num.Bytes(), 32), nil
	default:
		return nil, fmt.Errorf("unknown field kind %d", f.kind)
	}
}

// HashTuple returns keccak256 of the Solidity abi.encodePacked encoding of fields, in order.
func HashTuple(fields ...Field) (common.Hash, error) {
	buf := make([]byte, 0, len(fields)*32)
	for i, f := range fields {
		b, err := f.packed()
		if err != nil {
			return common.Hash{}, fmt.Errorf("field %d: %w", i, err)
		}
		buf = append(buf, b...)
	}
	return crypto.Keccak256Hash(buf), nil
}

// VoucherHash is keccak256(abi.encodePacked(address recipient, uint256 amount, uint256 nonce)),
// the digest the redemption contract recomputes before recovering the signer.
func VoucherHash(recipient common.Address, amount, nonce *big.Int) (common.Hash, error) {
	return HashTuple(AddressField(recipient), Uint256Field(amount), Uint256Field(nonce))
}

// RecoverHashSigner recovers the signer of a personal-sign signature over the 32 hash bytes.
func RecoverHashSigner(hash common.Hash, signature string) (common.Address, error) {
	return RecoverAddress(hash.Bytes(), signature)
}
