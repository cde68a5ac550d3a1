package store

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/palette/core"
	"github.com/layer-3/palette/ports"
)

func newWallet() string {
	// 0x + 40 lowercase hex
	return "0x" + uuid.New().String()[:8] + "00000000000000000000000000000000"
}

func testIdentityStore(t *testing.T, s ports.IdentityStore) {
	ctx := context.Background()

	t.Run("unknown wallet", func(t *testing.T) {
		_, err := s.GetByWallet(ctx, newWallet())
		assert.ErrorIs(t, err, core.ErrIdentityNotFound)

		_, err = s.GetByUserID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, core.ErrIdentityNotFound)
	})

	t.Run("create then get", func(t *testing.T) {
		wallet := newWallet()
		created, ok, err := s.Create(ctx, &core.WalletIdentity{WalletAddress: wallet, SocialID: "42"})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NotEmpty(t, created.UserID)
		assert.Equal(t, "42", created.SocialID)
		assert.Zero(t, created.GamesPlayed)

		byWallet, err := s.GetByWallet(ctx, wallet)
		require.NoError(t, err)
		assert.Equal(t, created.UserID, byWallet.UserID)

		byID, err := s.GetByUserID(ctx, created.UserID)
		require.NoError(t, err)
		assert.Equal(t, wallet, byID.WalletAddress)
	})

	t.Run("create is idempotent per wallet", func(t *testing.T) {
		wallet := newWallet()
		first, ok, err := s.Create(ctx, &core.WalletIdentity{WalletAddress: wallet})
		require.NoError(t, err)
		require.True(t, ok)

		second, ok, err := s.Create(ctx, &core.WalletIdentity{WalletAddress: wallet, SocialHandle: "late"})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, first.UserID, second.UserID)
		assert.Empty(t, second.SocialHandle)
	})

	t.Run("concurrent create yields one identity", func(t *testing.T) {
		wallet := newWallet()
		const workers = 16

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			ids     = map[string]struct{}{}
			inserts int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				identity, ok, err := s.Create(ctx, &core.WalletIdentity{WalletAddress: wallet})
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				ids[identity.UserID] = struct{}{}
				if ok {
					inserts++
				}
			}()
		}
		wg.Wait()

		assert.Len(t, ids, 1)
		assert.Equal(t, 1, inserts)
	})

	t.Run("backfill is first write wins", func(t *testing.T) {
		wallet := newWallet()
		_, _, err := s.Create(ctx, &core.WalletIdentity{WalletAddress: wallet})
		require.NoError(t, err)

		updated, err := s.BackfillSocial(ctx, wallet, core.SocialClaim{Handle: "alice"})
		require.NoError(t, err)
		assert.Equal(t, "alice", updated.SocialHandle)
		assert.Empty(t, updated.SocialID)

		updated, err = s.BackfillSocial(ctx, wallet, core.SocialClaim{ID: "7", Handle: "mallory"})
		require.NoError(t, err)
		assert.Equal(t, "alice", updated.SocialHandle)
		assert.Equal(t, "7", updated.SocialID)

		_, err = s.BackfillSocial(ctx, newWallet(), core.SocialClaim{ID: "1"})
		assert.ErrorIs(t, err, core.ErrIdentityNotFound)
	})

	t.Run("stats accumulate", func(t *testing.T) {
		identity, _, err := s.Create(ctx, &core.WalletIdentity{WalletAddress: newWallet()})
		require.NoError(t, err)

		_, err = s.ApplyStats(ctx, identity.UserID, core.StatsDelta{GamesPlayed: 1, GamesWon: 1, TokensWon: 500})
		require.NoError(t, err)
		updated, err := s.ApplyStats(ctx, identity.UserID, core.StatsDelta{GamesPlayed: 2})
		require.NoError(t, err)

		assert.Equal(t, int64(3), updated.GamesPlayed)
		assert.Equal(t, int64(1), updated.GamesWon)
		assert.Equal(t, int64(500), updated.TokensWon)

		_, err = s.ApplyStats(ctx, identity.UserID, core.StatsDelta{GamesPlayed: -1})
		assert.ErrorIs(t, err, core.ErrInvalidStats)

		_, err = s.ApplyStats(ctx, uuid.NewString(), core.StatsDelta{GamesPlayed: 1})
		assert.ErrorIs(t, err, core.ErrIdentityNotFound)
	})

	t.Run("stats refuse to overflow", func(t *testing.T) {
		identity, _, err := s.Create(ctx, &core.WalletIdentity{WalletAddress: newWallet()})
		require.NoError(t, err)

		_, err = s.ApplyStats(ctx, identity.UserID, core.StatsDelta{TokensWon: math.MaxInt64})
		require.NoError(t, err)

		_, err = s.ApplyStats(ctx, identity.UserID, core.StatsDelta{GamesPlayed: 1, TokensWon: 1})
		assert.ErrorIs(t, err, core.ErrInvalidStats)

		got, err := s.GetByWallet(ctx, identity.WalletAddress)
		require.NoError(t, err)
		assert.Equal(t, int64(math.MaxInt64), got.TokensWon)
		assert.Equal(t, int64(0), got.GamesPlayed)
	})
}

type sessionSuiteOptions struct {
	checksOwner bool // store rejects sessions for unknown identities
	prunes      bool // PruneExpired removes rows itself
}

func testSessionStore(t *testing.T, ids ports.IdentityStore, s ports.SessionStore, opts sessionSuiteOptions) {
	ctx := context.Background()

	owner, _, err := ids.Create(ctx, &core.WalletIdentity{WalletAddress: newWallet()})
	require.NoError(t, err)

	newSession := func(issuedAt time.Time, ttl time.Duration) *core.Session {
		return &core.Session{
			ID:            uuid.NewString(),
			Token:         "tok-" + uuid.NewString(),
			UserID:        owner.UserID,
			WalletAddress: owner.WalletAddress,
			IssuedAt:      issuedAt.UTC().Truncate(time.Millisecond),
			ExpiresAt:     issuedAt.Add(ttl).UTC().Truncate(time.Millisecond),
		}
	}

	t.Run("create then get", func(t *testing.T) {
		session := newSession(time.Now(), time.Hour)
		require.NoError(t, s.CreateSession(ctx, session))

		got, err := s.GetSession(ctx, session.Token)
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)
		assert.Equal(t, session.UserID, got.UserID)
		assert.Equal(t, session.WalletAddress, got.WalletAddress)
		assert.True(t, session.ExpiresAt.Equal(got.ExpiresAt))
		assert.Nil(t, got.RevokedAt)
		assert.True(t, got.Valid(time.Now()))
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := s.GetSession(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrSessionNotFound)

		err = s.RevokeSession(ctx, "missing", time.Now())
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
	})

	t.Run("sessions are independent", func(t *testing.T) {
		a := newSession(time.Now(), time.Hour)
		b := newSession(time.Now(), time.Hour)
		require.NoError(t, s.CreateSession(ctx, a))
		require.NoError(t, s.CreateSession(ctx, b))

		require.NoError(t, s.RevokeSession(ctx, a.Token, time.Now()))

		gotA, err := s.GetSession(ctx, a.Token)
		require.NoError(t, err)
		gotB, err := s.GetSession(ctx, b.Token)
		require.NoError(t, err)

		assert.False(t, gotA.Valid(time.Now()))
		assert.True(t, gotB.Valid(time.Now()))
	})

	t.Run("revoke keeps first timestamp", func(t *testing.T) {
		session := newSession(time.Now(), time.Hour)
		require.NoError(t, s.CreateSession(ctx, session))

		first := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, s.RevokeSession(ctx, session.Token, first))
		require.NoError(t, s.RevokeSession(ctx, session.Token, first.Add(time.Minute)))

		got, err := s.GetSession(ctx, session.Token)
		require.NoError(t, err)
		require.NotNil(t, got.RevokedAt)
		assert.True(t, first.Equal(*got.RevokedAt))
	})

	if opts.checksOwner {
		t.Run("unknown owner", func(t *testing.T) {
			session := newSession(time.Now(), time.Hour)
			session.UserID = uuid.NewString()
			assert.ErrorIs(t, s.CreateSession(ctx, session), core.ErrIdentityNotFound)
		})
	}

	if opts.prunes {
		t.Run("prune expired", func(t *testing.T) {
			expired := newSession(time.Now().Add(-2*time.Hour), time.Hour)
			live := newSession(time.Now(), time.Hour)
			require.NoError(t, s.CreateSession(ctx, expired))
			require.NoError(t, s.CreateSession(ctx, live))

			pruned, err := s.PruneExpired(ctx, time.Now())
			require.NoError(t, err)
			assert.GreaterOrEqual(t, pruned, int64(1))

			_, err = s.GetSession(ctx, expired.Token)
			assert.ErrorIs(t, err, core.ErrSessionNotFound)
			_, err = s.GetSession(ctx, live.Token)
			assert.NoError(t, err)
		})
	}
}
