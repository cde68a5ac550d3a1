package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/palette/core"
	"github.com/layer-3/palette/ports"
)

var _ ports.SessionStore = (*RedisSessionStore)(nil)

const (
	fieldID        = "id"
	fieldUserID    = "user_id"
	fieldWallet    = "wallet_address"
	fieldIssuedAt  = "issued_at"
	fieldExpiresAt = "expires_at"
	fieldRevokedAt = "revoked_at"
)

// revokeScript sets revoked_at only on a live session hash so a key that
// expired concurrently is never recreated without a TTL.
var revokeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
return redis.call("HSETNX", KEYS[1], ARGV[1], ARGV[2])
`)

// RedisSessionStore keeps sessions in Redis hashes that expire with the session
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore creates a new Redis session store
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		prefix: "palette:session:",
	}
}

// CreateSession writes the session hash and sets its expiry to the session's
func (s *RedisSessionStore) CreateSession(ctx context.Context, session *core.Session) error {
	key := s.prefix + session.Token

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldID, session.ID,
			fieldUserID, session.UserID,
			fieldWallet, session.WalletAddress,
			fieldIssuedAt, session.IssuedAt.UnixMilli(),
			fieldExpiresAt, session.ExpiresAt.UnixMilli(),
		)
		pipe.ExpireAt(ctx, key, session.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store session: %w: %w", core.ErrStore, err)
	}

	return nil
}

// GetSession loads a session by token
func (s *RedisSessionStore) GetSession(ctx context.Context, token string) (*core.Session, error) {
	fields, err := s.client.HGetAll(ctx, s.prefix+token).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w: %w", core.ErrStore, err)
	}
	if len(fields) == 0 {
		return nil, core.ErrSessionNotFound
	}

	session := &core.Session{
		ID:            fields[fieldID],
		Token:         token,
		UserID:        fields[fieldUserID],
		WalletAddress: fields[fieldWallet],
	}
	if session.IssuedAt, err = parseMillis(fields[fieldIssuedAt]); err != nil {
		return nil, err
	}
	if session.ExpiresAt, err = parseMillis(fields[fieldExpiresAt]); err != nil {
		return nil, err
	}
	if raw, ok := fields[fieldRevokedAt]; ok {
		revokedAt, err := parseMillis(raw)
		if err != nil {
			return nil, err
		}
		session.RevokedAt = &revokedAt
	}

	return session, nil
}

// RevokeSession records the first revocation time; the key keeps its TTL
func (s *RedisSessionStore) RevokeSession(ctx context.Context, token string, at time.Time) error {
	key := s.prefix + token

	res, err := revokeScript.Run(ctx, s.client, []string{key}, fieldRevokedAt, at.UnixMilli()).Int64()
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w: %w", core.ErrStore, err)
	}
	if res < 0 {
		return core.ErrSessionNotFound
	}

	return nil
}

// PruneExpired is a no-op; Redis expires session keys on its own
func (s *RedisSessionStore) PruneExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt session timestamp %q: %w", raw, core.ErrStore)
	}
	return time.UnixMilli(ms).UTC(), nil
}
