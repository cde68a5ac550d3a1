package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/layer-3/palette/adapters/store"
	"github.com/layer-3/palette/adapters/tokenizer"
	"github.com/layer-3/palette/core"
	"github.com/layer-3/palette/internal/eth"
)

type recordingPublisher struct {
	mu        sync.Mutex
	issued    []*core.Session
	signedOut []*core.Session
	vouchers  []*core.ClaimVoucher
	err       error
}

func (p *recordingPublisher) PublishSessionIssued(ctx context.Context, session *core.Session, created bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issued = append(p.issued, session)
	return p.err
}

func (p *recordingPublisher) PublishSignedOut(ctx context.Context, session *core.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signedOut = append(p.signedOut, session)
	return p.err
}

func (p *recordingPublisher) PublishVoucherIssued(ctx context.Context, voucher *core.ClaimVoucher) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vouchers = append(p.vouchers, voucher)
	return p.err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Now().Truncate(time.Millisecond)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingSessions fails every write.
type failingSessions struct{ *store.MemoryStore }

func (failingSessions) CreateSession(context.Context, *core.Session) error {
	return fmt.Errorf("connection reset: %w", core.ErrStore)
}

type authFixture struct {
	svc    *AuthService
	store  *store.MemoryStore
	events *recordingPublisher
	clock  *clock
}

func newAuthFixture(t *testing.T, opts ...AuthOption) *authFixture {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	f := &authFixture{
		store:  store.NewMemoryStore(),
		events: &recordingPublisher{},
		clock:  newClock(),
	}
	opts = append([]AuthOption{WithClock(f.clock.Now)}, opts...)
	f.svc = NewAuthService(tokenizer.NewJWTTokenizer(key), f.store, f.store, f.events, opts...)
	return f
}

type wallet struct {
	key     *ecdsa.PrivateKey
	address string // EIP-55 checksummed
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

// signIn builds a request exactly as a client would for a challenge at ts.
func (w wallet) signIn(t rapid.TB, ts time.Time) AuthenticateRequest {
	t.Helper()
	challenge := core.NewChallenge(w.address, ts)
	sig, err := eth.SignMessage([]byte(challenge.Message()), w.key)
	require.NoError(t, err)
	return AuthenticateRequest{
		WalletAddress: w.address,
		Signature:     sig,
		Message:       challenge.Message(),
		Timestamp:     challenge.TimestampMillis(),
	}
}
