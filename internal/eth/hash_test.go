package eth

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoucherHash_PackedLayout(t *testing.T) {
	recipient := common.HexToAddress("0xdead000000000000000000000000000000000001")
	amount := new(big.Int).Mul(big.NewInt(1000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	nonce := big.NewInt(1_700_000_000_000_123)

	packed := make([]byte, 0, 84)
	packed = append(packed, recipient.Bytes()...)
	packed = append(packed, common.LeftPadBytes(amount.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(nonce.Bytes(), 32)...)
	require.Len(t, packed, 84)

	got, err := VoucherHash(recipient, amount, nonce)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(packed), got)
}

func TestHashTuple_OrderSensitive(t *testing.T) {
	a, err := HashTuple(Uint256Field(big.NewInt(1)), Uint256Field(big.NewInt(2)))
	require.NoError(t, err)
	b, err := HashTuple(Uint256Field(big.NewInt(2)), Uint256Field(big.NewInt(1)))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashTuple_RejectsOutOfRange(t *testing.T) {
	_, err := HashTuple(Uint256Field(big.NewInt(-1)))
	assert.Error(t, err)

	_, err = HashTuple(Uint256Field(new(big.Int).Lsh(big.NewInt(1), 256)))
	assert.Error(t, err)

	_, err = HashTuple(Uint256Field(nil))
	assert.Error(t, err)
}

func TestKeySigner_SignHashRecovers(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := NewKeySigner(key)
	require.NoError(t, err)

	hash, err := VoucherHash(signer.Address(), big.NewInt(10), big.NewInt(1))
	require.NoError(t, err)

	sig, err := signer.SignHash(hash)
	require.NoError(t, err)

	got, err := RecoverHashSigner(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), got)
	assert.NotContains(t, signer.String(), common.Bytes2Hex(crypto.FromECDSA(key)))
}

func TestKeySignerFromHex(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := "0x" + common.Bytes2Hex(crypto.FromECDSA(key))

	signer, err := KeySignerFromHex(hexKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer.Address())

	_, err = KeySignerFromHex("not-a-key")
	assert.Error(t, err)
}
