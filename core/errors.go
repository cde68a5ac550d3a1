package core

import "errors"

var (
	ErrMissingField           = errors.New("missing required field")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidAddressFormat   = errors.New("invalid wallet address")
	ErrInvalidStats           = errors.New("invalid stats update")
	ErrMalformedChallenge     = errors.New("malformed challenge message")
	ErrChallengeExpired       = errors.New("challenge has expired")
	ErrInvalidSignatureFormat = errors.New("malformed signature")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrInvalidToken           = errors.New("invalid token")
	ErrTokenExpired           = errors.New("token has expired")
	ErrSessionNotFound        = errors.New("session not found")
	ErrSessionRevoked         = errors.New("session has been revoked")
	ErrWalletMismatch         = errors.New("session wallet does not match request")
	ErrIdentityNotFound       = errors.New("identity not found")
	ErrStore                  = errors.New("store operation failed")
	ErrSignerUnavailable      = errors.New("voucher signer unavailable")

	// Redemption failures reported by the contract or the wallet.
	ErrAlreadyClaimed       = errors.New("voucher already claimed")
	ErrInvalidVoucherSigner = errors.New("voucher signer not trusted by contract")
	ErrPoolUnderfunded      = errors.New("reward pool has insufficient balance")
	ErrUserRejected         = errors.New("request rejected in wallet")
	ErrInsufficientGas      = errors.New("insufficient funds for gas")
	ErrTxReverted           = errors.New("transaction reverted")
)

// ErrorKind groups errors by how callers should react to them.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation" // fix the request
	KindAuth       ErrorKind = "auth"       // sign again
	KindStorage    ErrorKind = "storage"    // retry
	KindChain      ErrorKind = "chain"      // show the contract's reason
	KindCancelled  ErrorKind = "cancelled"  // user declined, not an error to retry past
	KindInternal   ErrorKind = "internal"
)

// Kind classifies err. Unknown errors are internal.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingField),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidAddressFormat),
		errors.Is(err, ErrInvalidStats),
		errors.Is(err, ErrMalformedChallenge):
		return KindValidation
	case errors.Is(err, ErrChallengeExpired),
		errors.Is(err, ErrInvalidSignatureFormat),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrSessionRevoked),
		errors.Is(err, ErrWalletMismatch):
		return KindAuth
	case errors.Is(err, ErrStore), errors.Is(err, ErrIdentityNotFound):
		return KindStorage
	case errors.Is(err, ErrUserRejected):
		return KindCancelled
	case errors.Is(err, ErrAlreadyClaimed),
		errors.Is(err, ErrInvalidVoucherSigner),
		errors.Is(err, ErrPoolUnderfunded),
		errors.Is(err, ErrInsufficientGas),
		errors.Is(err, ErrTxReverted):
		return KindChain
	default:
		return KindInternal
	}
}

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal_error"
}

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrMissingField, "missing_field"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidAddressFormat, "invalid_address_format"},
	{ErrInvalidStats, "invalid_stats"},
	{ErrMalformedChallenge, "malformed_challenge"},
	{ErrChallengeExpired, "challenge_expired"},
	{ErrInvalidSignatureFormat, "invalid_signature_format"},
	{ErrInvalidSignature, "invalid_signature"},
	{ErrTokenExpired, "token_expired"},
	{ErrInvalidToken, "invalid_token"},
	{ErrSessionNotFound, "session_not_found"},
	{ErrSessionRevoked, "session_revoked"},
	{ErrWalletMismatch, "wallet_mismatch"},
	{ErrIdentityNotFound, "identity_not_found"},
	{ErrStore, "storage_error"},
	{ErrSignerUnavailable, "signer_unavailable"},
	{ErrAlreadyClaimed, "already_claimed"},
	{ErrInvalidVoucherSigner, "invalid_voucher_signer"},
	{ErrPoolUnderfunded, "pool_underfunded"},
	{ErrUserRejected, "user_rejected"},
	{ErrInsufficientGas, "insufficient_gas"},
	{ErrTxReverted, "tx_reverted"},
}

// ErrorForCode maps a code produced by Code back to its sentinel, or nil.
func ErrorForCode(code string) error {
	for _, c := range errorCodes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
