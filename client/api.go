package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/layer-3/palette/core"
	"github.com/layer-3/palette/internal/eth"
)

// ErrBackendUnavailable marks transport failures and 5xx answers. Retrying is safe.
var ErrBackendUnavailable = errors.New("backend unavailable")

// DefaultVoucherTimeout bounds a voucher request end to end.
const DefaultVoucherTimeout = 8 * time.Second

// APIError is a structured failure answered by the backend. It unwraps to the
// matching core sentinel when the code is known, and to ErrBackendUnavailable on 5xx.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s (%s): %s", e.Message, e.Code, e.Details)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *APIError) Unwrap() []error {
	var errs []error
	if sentinel := core.ErrorForCode(e.Code); sentinel != nil {
		errs = append(errs, sentinel)
	}
	if e.Status >= http.StatusInternalServerError {
		errs = append(errs, ErrBackendUnavailable)
	}
	return errs
}

// Profile mirrors the backend's user profile.
type Profile struct {
	UserID        string    `json:"userId"`
	WalletAddress string    `json:"walletAddress"`
	FarcasterFID  string    `json:"farcasterFid,omitempty"`
	Username      string    `json:"username,omitempty"`
	GamesPlayed   int64     `json:"gamesPlayed"`
	GamesWon      int64     `json:"gamesWon"`
	TokensWon     int64     `json:"tokensWon"`
	CreatedAt     time.Time `json:"createdAt"`
}

type authRequest struct {
	WalletAddress string `json:"walletAddress"`
	SignedMessage string `json:"signedMessage"`
	Message       string `json:"message"`
	Timestamp     int64  `json:"timestamp"`
	FarcasterFID  string `json:"farcasterFid,omitempty"`
	Username      string `json:"username,omitempty"`
}

// AuthResponse is a successful sign-in.
type AuthResponse struct {
	SessionToken string    `json:"sessionToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	UserProfile  Profile   `json:"userProfile"`
}

type voucherRequest struct {
	WalletAddress string          `json:"walletAddress"`
	RewardAmount  decimal.Decimal `json:"rewardAmount"`
	PlayerName    string          `json:"playerName,omitempty"`
}

type voucherResponse struct {
	WalletAddress string `json:"walletAddress"`
	PlayerName    string `json:"playerName"`
	RewardAmount  string `json:"rewardAmount"`
	Nonce         string `json:"nonce"`
	Signature     string `json:"signature"`
	MessageHash   string `json:"messageHash"`
}

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details"`
}

// APIClient talks to the palette backend.
type APIClient struct {
	baseURL        string
	http           *http.Client
	voucherTimeout time.Duration
}

// APIOption configures an APIClient.
type APIOption func(*APIClient)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) APIOption {
	return func(a *APIClient) { a.http = c }
}

// WithVoucherTimeout overrides DefaultVoucherTimeout.
func WithVoucherTimeout(d time.Duration) APIOption {
	return func(a *APIClient) { a.voucherTimeout = d }
}

// NewAPIClient creates a client for the backend at baseURL.
func NewAPIClient(baseURL string, opts ...APIOption) *APIClient {
	a := &APIClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &http.Client{Timeout: 30 * time.Second},
		voucherTimeout: DefaultVoucherTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate submits a signed challenge.
func (a *APIClient) Authenticate(ctx context.Context, wallet string, challenge core.Challenge, signature string, social core.SocialClaim) (*AuthResponse, error) {
	var resp AuthResponse
	err := a.post(ctx, "/auth/wallet", "", authRequest{
		WalletAddress: wallet,
		SignedMessage: signature,
		Message:       challenge.Message(),
		Timestamp:     challenge.TimestampMillis(),
		FarcasterFID:  social.ID,
		Username:      social.Handle,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequestVoucher asks for a voucher paying amount whole tokens to wallet. The returned
// hash is recomputed locally and must match what the backend signed.
func (a *APIClient) RequestVoucher(ctx context.Context, token string, wallet common.Address, amount decimal.Decimal, label string) (*core.ClaimVoucher, error) {
	ctx, cancel := context.WithTimeout(ctx, a.voucherTimeout)
	defer cancel()

	var resp voucherResponse
	err := a.post(ctx, "/api/claims/sign", token, voucherRequest{
		WalletAddress: wallet.Hex(),
		RewardAmount:  amount,
		PlayerName:    label,
	}, &resp)
	if err != nil {
		return nil, err
	}

	voucher, err := resp.voucher()
	if err != nil {
		return nil, err
	}
	if voucher.Recipient != wallet {
		return nil, fmt.Errorf("voucher issued to %s, expected %s: %w", voucher.Recipient.Hex(), wallet.Hex(), core.ErrWalletMismatch)
	}
	return voucher, nil
}

// SignOut revokes token on the backend.
func (a *APIClient) SignOut(ctx context.Context, token string) error {
	return a.post(ctx, "/auth/logout", token, nil, nil)
}

func (r voucherResponse) voucher() (*core.ClaimVoucher, error) {
	amount, ok := new(big.Int).SetString(r.RewardAmount, 10)
	if !ok {
		return nil, fmt.Errorf("malformed voucher amount %q: %w", r.RewardAmount, core.ErrInvalidAmount)
	}
	nonce, ok := new(big.Int).SetString(r.Nonce, 10)
	if !ok {
		return nil, fmt.Errorf("malformed voucher nonce %q", r.Nonce)
	}
	if !common.IsHexAddress(r.WalletAddress) {
		return nil, fmt.Errorf("malformed voucher recipient: %w", core.ErrInvalidAddressFormat)
	}
	recipient := common.HexToAddress(r.WalletAddress)

	hash, err := eth.VoucherHash(recipient, amount, nonce)
	if err != nil {
		return nil, err
	}
	if hash.Hex() != strings.ToLower(r.MessageHash) {
		return nil, fmt.Errorf("voucher hash mismatch: got %s, computed %s", r.MessageHash, hash.Hex())
	}

	return &core.ClaimVoucher{
		Recipient:   recipient,
		Amount:      amount,
		Nonce:       nonce,
		Signature:   r.Signature,
		MessageHash: hash,
		PlayerLabel: r.PlayerName,
	}, nil
}

func (a *APIClient) post(ctx context.Context, path, token string, body, out interface{}) error {
	var payload io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", path, ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var body errorBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil || body.Code == "" {
		apiErr.Code = fmt.Sprintf("http_%d", resp.StatusCode)
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	apiErr.Code = body.Code
	apiErr.Message = body.Error
	apiErr.Details = body.Details
	return apiErr
}
