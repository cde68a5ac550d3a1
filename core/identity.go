package core

import (
	"fmt"
	"math"
	"time"
)

// WalletIdentity is the canonical player record, keyed by lowercase wallet address.
type WalletIdentity struct {
	UserID        string
	WalletAddress string
	SocialID      string // Farcaster FID, empty until first supplied
	SocialHandle  string // Farcaster username, empty until first supplied
	GamesPlayed   int64
	GamesWon      int64
	TokensWon     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasSocial reports whether any social field has been attached.
func (w *WalletIdentity) HasSocial() bool {
	return w.SocialID != "" || w.SocialHandle != ""
}

// SocialClaim carries optional social identity fields supplied at authentication.
type SocialClaim struct {
	ID     string
	Handle string
}

// Empty reports whether the claim carries nothing.
func (s SocialClaim) Empty() bool {
	return s.ID == "" && s.Handle == ""
}

// StatsDelta is a non-negative increment applied to identity counters.
type StatsDelta struct {
	GamesPlayed int64
	GamesWon    int64
	TokensWon   int64
}

// Validate rejects deltas that would decrease a counter.
func (d StatsDelta) Validate() error {
	if d.GamesPlayed < 0 || d.GamesWon < 0 || d.TokensWon < 0 {
		return ErrInvalidStats
	}
	if d.GamesWon > d.GamesPlayed {
		return ErrInvalidStats
	}
	return nil
}

// AddTo applies the delta to w, refusing increments that would overflow a counter.
func (d StatsDelta) AddTo(w *WalletIdentity) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if w.GamesPlayed > math.MaxInt64-d.GamesPlayed ||
		w.GamesWon > math.MaxInt64-d.GamesWon ||
		w.TokensWon > math.MaxInt64-d.TokensWon {
		return fmt.Errorf("counter overflow: %w", ErrInvalidStats)
	}
	w.GamesPlayed += d.GamesPlayed
	w.GamesWon += d.GamesWon
	w.TokensWon += d.TokensWon
	return nil
}
