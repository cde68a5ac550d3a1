// Package eth wraps the secp256k1 "personal sign" scheme and the packed tuple hashing
// shared with the redemption contract.
package eth

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/palette/core"
)

const signatureLength = 65

// PersonalHash returns keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
func PersonalHash(message []byte) []byte {
	return accounts.TextHash(message)
}

// SignMessage produces a personal-sign signature over message with V in {27, 28}.
func SignMessage(message []byte, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(PersonalHash(message), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	return hexutil.Encode(sig), nil
}

// RecoverAddress returns the address that produced signature over message.
// The caller decides whether that address is the expected one.
func RecoverAddress(message []byte, signature string) (common.Address, error) {
	sig, err := decodeSignature(signature)
	if err != nil {
		return common.Address{}, err
	}

	pub, err := crypto.SigToPub(PersonalHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", core.ErrInvalidSignatureFormat)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

func decodeSignature(signature string) ([]byte, error) {
	signature = strings.TrimSpace(signature)
	if !strings.HasPrefix(signature, "0x") && !strings.HasPrefix(signature, "0X") {
		signature = "0x" + signature
	}

	raw, err := hexutil.Decode(signature)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignatureFormat)
	}
	if len(raw) != signatureLength {
		return nil, fmt.Errorf("signature must be %d bytes: %w", signatureLength, core.ErrInvalidSignatureFormat)
	}

	sig := make([]byte, signatureLength)
	copy(sig, raw)

	v := sig[crypto.RecoveryIDOffset]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return nil, fmt.Errorf("invalid recovery id %d: %w", sig[crypto.RecoveryIDOffset], core.ErrInvalidSignatureFormat)
	}
	sig[crypto.RecoveryIDOffset] = v

	return sig, nil
}
