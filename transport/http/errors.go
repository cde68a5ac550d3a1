package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/palette/core"
)

// errorResponse is the failure body shared by every endpoint.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

var messages = map[error]string{
	core.ErrMissingField:           "A required field is missing",
	core.ErrInvalidAmount:          "Invalid reward amount",
	core.ErrInvalidAddressFormat:   "Invalid wallet address",
	core.ErrInvalidStats:           "Invalid stats update",
	core.ErrMalformedChallenge:     "Malformed sign-in message",
	core.ErrChallengeExpired:       "Sign-in request expired, please sign again",
	core.ErrInvalidSignatureFormat: "Malformed signature",
	core.ErrInvalidSignature:       "Signature does not match wallet, please sign again",
	core.ErrInvalidToken:           "Invalid session",
	core.ErrTokenExpired:           "Session expired, please sign in again",
	core.ErrSessionNotFound:        "Session not found, please sign in again",
	core.ErrSessionRevoked:         "Session signed out, please sign in again",
	core.ErrWalletMismatch:         "Session does not belong to this wallet",
	core.ErrIdentityNotFound:       "Player not found",
	core.ErrSignerUnavailable:      "Reward signing is temporarily unavailable",
}

func statusFor(err error) int {
	switch core.Kind(err) {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	for sentinel, msg := range messages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	if core.Kind(err) == core.KindStorage {
		return "Storage temporarily unavailable, please retry"
	}
	return "Internal server error"
}

// abortWithError writes the failure body. Only validation failures carry details;
// storage and internal errors are logged, never echoed.
func abortWithError(c *gin.Context, err error) {
	resp := errorResponse{
		Success: false,
		Error:   messageFor(err),
		Code:    core.Code(err),
	}
	if core.Kind(err) == core.KindValidation {
		resp.Details = err.Error()
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), resp)
}

// abortBadRequest answers a body that could not be decoded.
func abortBadRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
		Success: false,
		Error:   "Invalid request body",
		Code:    "invalid_request",
		Details: err.Error(),
	})
}
