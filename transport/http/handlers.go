package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/layer-3/palette/core"
	"github.com/layer-3/palette/service"
)

// Handlers serves the wallet authentication and voucher endpoints.
type Handlers struct {
	authService    *service.AuthService
	voucherService *service.VoucherService
	health         func(ctx context.Context) error
}

// NewHandlers creates new HTTP handlers. health may be nil.
func NewHandlers(authService *service.AuthService, voucherService *service.VoucherService, health func(ctx context.Context) error) *Handlers {
	return &Handlers{
		authService:    authService,
		voucherService: voucherService,
		health:         health,
	}
}

// WalletAuthRequest is the body of POST /auth/wallet.
type WalletAuthRequest struct {
	WalletAddress string `json:"walletAddress"`
	SignedMessage string `json:"signedMessage"`
	Message       string `json:"message"`
	Timestamp     int64  `json:"timestamp"`
	FarcasterFID  string `json:"farcasterFid,omitempty"`
	Username      string `json:"username,omitempty"`
}

// UserProfile is the public view of a wallet identity.
type UserProfile struct {
	UserID        string    `json:"userId"`
	WalletAddress string    `json:"walletAddress"`
	FarcasterFID  string    `json:"farcasterFid,omitempty"`
	Username      string    `json:"username,omitempty"`
	GamesPlayed   int64     `json:"gamesPlayed"`
	GamesWon      int64     `json:"gamesWon"`
	TokensWon     int64     `json:"tokensWon"`
	CreatedAt     time.Time `json:"createdAt"`
}

// WalletAuthResponse is the success body of POST /auth/wallet.
type WalletAuthResponse struct {
	Success      bool        `json:"success"`
	SessionToken string      `json:"sessionToken"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	UserProfile  UserProfile `json:"userProfile"`
}

// ClaimSignRequest is the body of POST /api/claims/sign. RewardAmount is in
// whole tokens and may be a JSON number or string.
type ClaimSignRequest struct {
	WalletAddress string           `json:"walletAddress"`
	RewardAmount  *decimal.Decimal `json:"rewardAmount"`
	PlayerName    string           `json:"playerName,omitempty"`
}

// ClaimSignResponse is the success body of POST /api/claims/sign. RewardAmount
// and Nonce are base-10 strings in base units.
type ClaimSignResponse struct {
	Success       bool   `json:"success"`
	WalletAddress string `json:"walletAddress"`
	PlayerName    string `json:"playerName"`
	RewardAmount  string `json:"rewardAmount"`
	Nonce         string `json:"nonce"`
	Signature     string `json:"signature"`
	MessageHash   string `json:"messageHash"`
}

// StatsRequest is the body of POST /api/stats.
type StatsRequest struct {
	GamesPlayed int64 `json:"gamesPlayed"`
	GamesWon    int64 `json:"gamesWon"`
	TokensWon   int64 `json:"tokensWon"`
}

func profileOf(identity *core.WalletIdentity) UserProfile {
	return UserProfile{
		UserID:        identity.UserID,
		WalletAddress: identity.WalletAddress,
		FarcasterFID:  identity.SocialID,
		Username:      identity.SocialHandle,
		GamesPlayed:   identity.GamesPlayed,
		GamesWon:      identity.GamesWon,
		TokensWon:     identity.TokensWon,
		CreatedAt:     identity.CreatedAt,
	}
}

// WalletAuth handles POST /auth/wallet
func (h *Handlers) WalletAuth(c *gin.Context) {
	var req WalletAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	result, err := h.authService.Authenticate(c.Request.Context(), service.AuthenticateRequest{
		WalletAddress: req.WalletAddress,
		Signature:     req.SignedMessage,
		Message:       req.Message,
		Timestamp:     req.Timestamp,
		Social: core.SocialClaim{
			ID:     req.FarcasterFID,
			Handle: req.Username,
		},
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, WalletAuthResponse{
		Success:      true,
		SessionToken: result.Session.Token,
		ExpiresAt:    result.Session.ExpiresAt,
		UserProfile:  profileOf(result.Identity),
	})
}

// SignClaim handles POST /api/claims/sign
func (h *Handlers) SignClaim(c *gin.Context) {
	var req ClaimSignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	voucher, err := h.voucherService.IssueVoucher(c.Request.Context(), service.IssueRequest{
		WalletAddress: req.WalletAddress,
		Amount:        req.RewardAmount,
		PlayerLabel:   req.PlayerName,
		SessionToken:  bearerToken(c),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ClaimSignResponse{
		Success:       true,
		WalletAddress: voucher.Recipient.Hex(),
		PlayerName:    voucher.PlayerLabel,
		RewardAmount:  voucher.Amount.String(),
		Nonce:         voucher.Nonce.String(),
		Signature:     voucher.Signature,
		MessageHash:   voucher.MessageHash.Hex(),
	})
}

// Logout handles POST /auth/logout
func (h *Handlers) Logout(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		abortWithError(c, core.ErrInvalidToken)
		return
	}

	if err := h.authService.SignOut(c.Request.Context(), token); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Me handles GET /api/me
func (h *Handlers) Me(c *gin.Context) {
	session := sessionFrom(c)
	if session == nil {
		abortWithError(c, core.ErrInvalidToken)
		return
	}

	identity, err := h.authService.Profile(c.Request.Context(), session)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"userProfile": profileOf(identity),
	})
}

// RecordStats handles POST /api/stats
func (h *Handlers) RecordStats(c *gin.Context) {
	session := sessionFrom(c)
	if session == nil {
		abortWithError(c, core.ErrInvalidToken)
		return
	}

	var req StatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}

	identity, err := h.authService.RecordGame(c.Request.Context(), session, core.StatsDelta{
		GamesPlayed: req.GamesPlayed,
		GamesWon:    req.GamesWon,
		TokensWon:   req.TokensWon,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"userProfile": profileOf(identity),
	})
}

// Health handles GET /healthz
func (h *Handlers) Health(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
