package store

import (
	"bytes"
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/layer-3/palette/core"
	"github.com/layer-3/palette/internal/db"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

// setupTestDB starts PostgreSQL in a container and applies the schema
func setupTestDB(t *testing.T) *pgxpool.Pool {
	if testing.Short() || !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("palette"),
		postgres.WithUsername("palette"),
		postgres.WithPassword("palette"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	var logs bytes.Buffer
	require.NoError(t, db.Migrate(ctx, pool, zerolog.New(&logs).With().Str("component", "db").Logger()))
	require.Contains(t, logs.String(), `"component":"db"`)
	require.Contains(t, logs.String(), "Migration applied")
	// Migrations are idempotent.
	require.NoError(t, db.Migrate(ctx, pool, zerolog.Nop()))

	return pool
}

// setupTestRedis starts Redis in a container
func setupTestRedis(t *testing.T) *redis.Client {
	if testing.Short() || !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisContainer.Terminate(ctx) })

	uri, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	return client
}

func TestPostgresStore(t *testing.T) {
	s := NewPostgresStore(setupTestDB(t))

	t.Run("identities", func(t *testing.T) {
		testIdentityStore(t, s)
	})
	t.Run("sessions", func(t *testing.T) {
		testSessionStore(t, s, s, sessionSuiteOptions{checksOwner: true, prunes: true})
	})
}

func TestRedisSessionStore(t *testing.T) {
	client := setupTestRedis(t)
	s := NewRedisSessionStore(client)

	testSessionStore(t, NewMemoryStore(), s, sessionSuiteOptions{})

	t.Run("ttl follows session expiry", func(t *testing.T) {
		ctx := context.Background()
		ids := NewMemoryStore()
		owner, _, err := ids.Create(ctx, &core.WalletIdentity{WalletAddress: newWallet()})
		require.NoError(t, err)

		session := &core.Session{
			ID: "ttl", Token: "ttl-token", UserID: owner.UserID, WalletAddress: owner.WalletAddress,
			IssuedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
		}
		require.NoError(t, s.CreateSession(ctx, session))
		require.NoError(t, s.RevokeSession(ctx, session.Token, time.Now()))

		ttl, err := client.TTL(ctx, "palette:session:ttl-token").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 59*time.Minute)
		assert.LessOrEqual(t, ttl, time.Hour)
	})

	t.Run("revoking an expired key leaves nothing behind", func(t *testing.T) {
		ctx := context.Background()
		key := "palette:session:gone-token"

		require.NoError(t, client.HSet(ctx, key, fieldID, "gone").Err())
		require.NoError(t, client.Del(ctx, key).Err())

		err := s.RevokeSession(ctx, "gone-token", time.Now())
		assert.ErrorIs(t, err, core.ErrSessionNotFound)

		exists, err := client.Exists(ctx, key).Result()
		require.NoError(t, err)
		assert.Zero(t, exists)
	})
}
