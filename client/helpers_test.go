package client

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/palette/adapters/chain"
	"github.com/layer-3/palette/adapters/events"
	"github.com/layer-3/palette/adapters/store"
	"github.com/layer-3/palette/adapters/tokenizer"
	"github.com/layer-3/palette/internal/eth"
	"github.com/layer-3/palette/internal/keyfile"
	"github.com/layer-3/palette/service"
	transport "github.com/layer-3/palette/transport/http"
)

var redemptionAddress = common.HexToAddress("0x00000000000000000000000000000000000c1a11")

// rejectedError is what an EIP-1193 wallet returns when the user declines.
type rejectedError struct{}

func (rejectedError) Error() string  { return "User rejected the request." }
func (rejectedError) ErrorCode() int { return 4001 }

// fakeWallet signs with a local key and executes transactions against a MemoryRedeemer.
type fakeWallet struct {
	signer   *eth.KeySigner
	redeemer *chain.MemoryRedeemer
	decline  bool
	sent     int
}

func newFakeWallet(t *testing.T, redeemer *chain.MemoryRedeemer) *fakeWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := eth.NewKeySigner(key)
	require.NoError(t, err)
	return &fakeWallet{signer: signer, redeemer: redeemer}
}

func (w *fakeWallet) Address() common.Address { return w.signer.Address() }

func (w *fakeWallet) SignMessage(ctx context.Context, text string) (string, error) {
	if w.decline {
		return "", rejectedError{}
	}
	return w.signer.SignMessage([]byte(text))
}

func (w *fakeWallet) SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Receipt, error) {
	if w.decline {
		return nil, rejectedError{}
	}
	if to != w.redeemer.Address() {
		return nil, fmt.Errorf("no contract at %s", to.Hex())
	}
	w.sent++
	return w.redeemer.Execute(data)
}

// backend is a full palette HTTP server over memory stores.
type backend struct {
	server   *httptest.Server
	store    *store.MemoryStore
	signer   *eth.KeySigner
	redeemer *chain.MemoryRedeemer
}

func newBackend(t *testing.T, pool *big.Int, voucherOpts ...service.VoucherOption) *backend {
	t.Helper()

	sessionKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	voucherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := eth.NewKeySigner(voucherKey)
	require.NoError(t, err)

	memStore := store.NewMemoryStore()
	auth := service.NewAuthService(tokenizer.NewJWTTokenizer(sessionKey), memStore, memStore, events.NopPublisher{})
	vouchers := service.NewVoucherService(keyfile.NewStatic(signer), events.NopPublisher{}, 18, voucherOpts...)

	server := httptest.NewServer(transport.SetupRouter(transport.RouterConfig{
		Auth:     auth,
		Vouchers: vouchers,
		Logger:   zerolog.Nop(),
	}))
	t.Cleanup(server.Close)

	return &backend{
		server:   server,
		store:    memStore,
		signer:   signer,
		redeemer: chain.NewMemoryRedeemer(redemptionAddress, signer.Address(), pool),
	}
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}
