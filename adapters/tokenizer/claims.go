package tokenizer

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims combines standard claims with session-specific ones
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// DecodeUnverified reads the claims of a session token without checking its signature.
// Clients use it to skip a round trip for tokens that are obviously stale; servers never do.
func DecodeUnverified(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return claims, nil
}
