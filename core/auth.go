package core

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ChallengePurpose is the human-readable line shown in the wallet prompt.
const ChallengePurpose = "Sign in to Palette to save your stats and claim rewards."

const (
	challengeHeader    = "Palette wants you to sign in with your wallet."
	challengeWalletKey = "Wallet: "
	challengeTimeKey   = "Timestamp: "
)

// Challenge is the message a wallet signs to prove key ownership at a point in time.
// It is never persisted.
type Challenge struct {
	Address   string    // Wallet address as entered by the client
	Purpose   string    // Human readable purpose line
	Timestamp time.Time // Client clock at construction, millisecond precision
}

// NewChallenge builds a challenge for the address at the given instant.
func NewChallenge(address string, at time.Time) Challenge {
	return Challenge{
		Address:   address,
		Purpose:   ChallengePurpose,
		Timestamp: time.UnixMilli(at.UnixMilli()),
	}
}

// TimestampMillis returns the challenge timestamp in Unix milliseconds.
func (c Challenge) TimestampMillis() int64 {
	return c.Timestamp.UnixMilli()
}

// Message renders the exact text that is signed.
func (c Challenge) Message() string {
	var b strings.Builder
	b.WriteString(challengeHeader)
	b.WriteString("\n\n")
	b.WriteString(c.Purpose)
	b.WriteString("\n\n")
	b.WriteString(challengeWalletKey)
	b.WriteString(c.Address)
	b.WriteString("\n")
	b.WriteString(challengeTimeKey)
	b.WriteString(strconv.FormatInt(c.TimestampMillis(), 10))
	return b.String()
}

// Fresh reports whether the challenge timestamp is within window of now, in either direction.
func (c Challenge) Fresh(now time.Time, window time.Duration) bool {
	skew := now.Sub(c.Timestamp)
	if skew < 0 {
		skew = -skew
	}
	return skew <= window
}

// ParseChallenge extracts the wallet and timestamp lines from a signed challenge message.
func ParseChallenge(message string) (Challenge, error) {
	var (
		c         Challenge
		haveAddr  bool
		haveStamp bool
	)

	scanner := bufio.NewScanner(strings.NewReader(message))
	line := 0
	for scanner.Scan() {
		text := strings.TrimRight(scanner.Text(), "\r")
		line++
		switch {
		case line == 1 && text != challengeHeader:
			return Challenge{}, fmt.Errorf("unexpected challenge header: %w", ErrMalformedChallenge)
		case line == 3:
			c.Purpose = text
		case strings.HasPrefix(text, challengeWalletKey):
			c.Address = strings.TrimPrefix(text, challengeWalletKey)
			haveAddr = true
		case strings.HasPrefix(text, challengeTimeKey):
			ms, err := strconv.ParseInt(strings.TrimPrefix(text, challengeTimeKey), 10, 64)
			if err != nil {
				return Challenge{}, fmt.Errorf("invalid challenge timestamp: %w", ErrMalformedChallenge)
			}
			c.Timestamp = time.UnixMilli(ms)
			haveStamp = true
		}
	}
	if err := scanner.Err(); err != nil {
		return Challenge{}, fmt.Errorf("unreadable challenge: %v: %w", err, ErrMalformedChallenge)
	}

	if !haveAddr || !haveStamp {
		return Challenge{}, ErrMalformedChallenge
	}

	return c, nil
}

// Session represents an authenticated wallet session
type Session struct {
	ID            string     // Unique session identifier
	Token         string     // Opaque bearer token handed to the client
	UserID        string     // Owning identity
	WalletAddress string     // Lowercase wallet address
	IssuedAt      time.Time  // When the session was created
	ExpiresAt     time.Time  // IssuedAt + session TTL
	RevokedAt     *time.Time // Set on explicit sign-out
}

// Valid reports whether the session is unrevoked and unexpired at now.
func (s *Session) Valid(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
