package eth

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeySigner signs with a local secp256k1 key. It never exposes the key.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeySigner wraps an existing private key.
func NewKeySigner(key *ecdsa.PrivateKey) (*KeySigner, error) {
	if key == nil {
		return nil, fmt.Errorf("private key cannot be nil")
	}
	return &KeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// KeySignerFromHex parses a hex private key, with or without 0x.
func KeySignerFromHex(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewKeySigner(key)
}

// Address returns the signer's address.
func (s *KeySigner) Address() common.Address { return s.address }

// SignMessage personal-signs arbitrary bytes.
func (s *KeySigner) SignMessage(message []byte) (string, error) {
	return SignMessage(message, s.key)
}

// SignHash personal-signs the 32 raw bytes of hash.
func (s *KeySigner) SignHash(hash common.Hash) (string, error) {
	return SignMessage(hash.Bytes(), s.key)
}

// PrivateKey exposes the key to transaction signers in the same process.
func (s *KeySigner) PrivateKey() *ecdsa.PrivateKey { return s.key }

func (s *KeySigner) String() string {
	return "KeySigner(" + s.address.Hex() + ")"
}
