package client

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/palette/adapters/chain"
	"github.com/layer-3/palette/core"
)

func TestConnectAndClaim(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, tokens(1_000_000))
	wallet := newFakeWallet(t, b.redeemer)
	o := NewOrchestrator(wallet, NewAPIClient(b.server.URL), redemptionAddress)

	profile, err := o.Connect(ctx, core.SocialClaim{ID: "77", Handle: "painter"})
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(wallet.Address().Hex()), profile.WalletAddress)
	assert.Equal(t, "77", profile.FarcasterFID)
	assert.True(t, o.SessionLooksValid(time.Now()))
	assert.False(t, o.SessionLooksValid(time.Now().Add(8*24*time.Hour)))

	claimed, err := o.ClaimReward(ctx, decimal.NewFromInt(5000), "painter")
	require.NoError(t, err)
	assert.Equal(t, wallet.Address(), claimed.Recipient)
	assert.Equal(t, tokens(5000).String(), claimed.Amount.String())
	assert.Equal(t, tokens(5000).String(), b.redeemer.BalanceOf(wallet.Address()).String())

	pool, err := b.redeemer.PoolBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, tokens(995_000).String(), pool.String())

	t.Run("second reward is a separate voucher", func(t *testing.T) {
		_, err := o.ClaimReward(ctx, decimal.NewFromInt(1), "")
		require.NoError(t, err)
		assert.Equal(t, tokens(5001).String(), b.redeemer.BalanceOf(wallet.Address()).String())
	})

	t.Run("disconnect revokes", func(t *testing.T) {
		token := o.SessionToken()
		require.NoError(t, o.Disconnect(ctx))
		assert.Empty(t, o.SessionToken())
		assert.False(t, o.SessionLooksValid(time.Now()))

		err := NewAPIClient(b.server.URL).SignOut(ctx, token)
		assert.ErrorIs(t, err, core.ErrSessionRevoked)
	})
}

func TestConnectDeclined(t *testing.T) {
	b := newBackend(t, tokens(1))
	wallet := newFakeWallet(t, b.redeemer)
	wallet.decline = true
	o := NewOrchestrator(wallet, NewAPIClient(b.server.URL), redemptionAddress)

	_, err := o.Connect(context.Background(), core.SocialClaim{})
	require.ErrorIs(t, err, core.ErrUserRejected)
	assert.Equal(t, core.KindCancelled, core.Kind(err))
	assert.Empty(t, o.SessionToken())

	_, err = b.store.GetByWallet(context.Background(), strings.ToLower(wallet.Address().Hex()))
	assert.ErrorIs(t, err, core.ErrIdentityNotFound)
}

func TestConnectStaleClock(t *testing.T) {
	b := newBackend(t, tokens(1))
	wallet := newFakeWallet(t, b.redeemer)
	o := NewOrchestrator(wallet, NewAPIClient(b.server.URL), redemptionAddress,
		WithOrchestratorClock(func() time.Time { return time.Now().Add(-time.Hour) }))

	_, err := o.Connect(context.Background(), core.SocialClaim{})
	require.ErrorIs(t, err, core.ErrChallengeExpired)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
}

func TestClaimFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("replayed voucher", func(t *testing.T) {
		b := newBackend(t, tokens(100))
		wallet := newFakeWallet(t, b.redeemer)
		api := NewAPIClient(b.server.URL)

		voucher, err := api.RequestVoucher(ctx, "", wallet.Address(), decimal.NewFromInt(10), "")
		require.NoError(t, err)
		calldata, err := chain.PackClaim(voucher)
		require.NoError(t, err)

		_, err = wallet.SendTransaction(ctx, redemptionAddress, calldata, nil)
		require.NoError(t, err)
		assert.True(t, b.redeemer.Used(voucher.MessageHash))

		_, err = wallet.SendTransaction(ctx, redemptionAddress, calldata, nil)
		require.Error(t, err)
		assert.ErrorIs(t, chain.ClassifyError(err), core.ErrAlreadyClaimed)
		assert.Equal(t, tokens(10).String(), b.redeemer.BalanceOf(wallet.Address()).String())
	})

	t.Run("underfunded pool", func(t *testing.T) {
		b := newBackend(t, tokens(1))
		wallet := newFakeWallet(t, b.redeemer)
		o := NewOrchestrator(wallet, NewAPIClient(b.server.URL), redemptionAddress)

		_, err := o.ClaimReward(ctx, decimal.NewFromInt(2), "")
		require.ErrorIs(t, err, core.ErrPoolUnderfunded)
		assert.Equal(t, core.KindChain, core.Kind(err))
		assert.Zero(t, b.redeemer.BalanceOf(wallet.Address()).Sign())
	})

	t.Run("untrusted signer", func(t *testing.T) {
		b := newBackend(t, tokens(100))
		other := newBackend(t, tokens(100))
		wallet := newFakeWallet(t, b.redeemer)
		o := NewOrchestrator(wallet, NewAPIClient(other.server.URL), redemptionAddress)

		_, err := o.ClaimReward(ctx, decimal.NewFromInt(1), "")
		require.ErrorIs(t, err, core.ErrInvalidVoucherSigner)
	})

	t.Run("declined transaction", func(t *testing.T) {
		b := newBackend(t, tokens(100))
		wallet := newFakeWallet(t, b.redeemer)
		o := NewOrchestrator(wallet, NewAPIClient(b.server.URL), redemptionAddress)
		wallet.decline = true

		_, err := o.ClaimReward(ctx, decimal.NewFromInt(1), "")
		require.ErrorIs(t, err, core.ErrUserRejected)
		assert.Zero(t, wallet.sent)
	})

	t.Run("invalid amount never reaches the chain", func(t *testing.T) {
		b := newBackend(t, tokens(100))
		wallet := newFakeWallet(t, b.redeemer)
		o := NewOrchestrator(wallet, NewAPIClient(b.server.URL), redemptionAddress)

		_, err := o.ClaimReward(ctx, decimal.NewFromInt(-1), "")
		require.ErrorIs(t, err, core.ErrInvalidAmount)
		assert.Zero(t, wallet.sent)
	})

	t.Run("pool balance unchanged on failure", func(t *testing.T) {
		b := newBackend(t, big.NewInt(5))
		wallet := newFakeWallet(t, b.redeemer)
		o := NewOrchestrator(wallet, NewAPIClient(b.server.URL), redemptionAddress)

		_, err := o.ClaimReward(ctx, decimal.NewFromInt(1), "")
		require.Error(t, err)
		pool, err := b.redeemer.PoolBalance(ctx)
		require.NoError(t, err)
		assert.Equal(t, "5", pool.String())
	})
}
