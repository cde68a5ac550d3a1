package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/layer-3/palette/core"
)

// userRejectedCode is the EIP-1193 code for a request the user declined.
const userRejectedCode = 4001

// RevertError is a contract revert carrying the decoded reason.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

var reasonSentinels = []struct {
	needle string
	err    error
}{
	{strings.ToLower(ReasonNonceUsed), core.ErrAlreadyClaimed},
	{"already claimed", core.ErrAlreadyClaimed},
	{strings.ToLower(ReasonInvalidSignature), core.ErrInvalidVoucherSigner},
	{"invalid signer", core.ErrInvalidVoucherSigner},
	{strings.ToLower(ReasonInsufficientPool), core.ErrPoolUnderfunded},
	{"transfer amount exceeds balance", core.ErrPoolUnderfunded},
	{strings.ToLower(ReasonInvalidRecipient), core.ErrInvalidAddressFormat},
	{strings.ToLower(ReasonInvalidAmount), core.ErrInvalidAmount},
	{"user rejected", core.ErrUserRejected},
	{"user denied", core.ErrUserRejected},
	{"insufficient funds", core.ErrInsufficientGas},
	{"out of gas", core.ErrInsufficientGas},
	{"intrinsic gas too low", core.ErrInsufficientGas},
}

// ClassifyError maps wallet, node and contract failures onto core sentinels so the
// user sees an actionable reason. The original error stays in the chain.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		core.ErrAlreadyClaimed, core.ErrInvalidVoucherSigner, core.ErrPoolUnderfunded,
		core.ErrUserRejected, core.ErrInsufficientGas, core.ErrTxReverted,
	} {
		if errors.Is(err, known) {
			return err
		}
	}

	var coded interface{ ErrorCode() int }
	if errors.As(err, &coded) && coded.ErrorCode() == userRejectedCode {
		return fmt.Errorf("%w: %w", core.ErrUserRejected, err)
	}

	text := strings.ToLower(err.Error())
	if reason, ok := revertReason(err); ok {
		text = strings.ToLower(reason) + " " + text
	}

	for _, rs := range reasonSentinels {
		if strings.Contains(text, rs.needle) {
			return fmt.Errorf("%w: %w", rs.err, err)
		}
	}

	if strings.Contains(text, "revert") {
		return fmt.Errorf("%w: %w", core.ErrTxReverted, err)
	}

	return err
}

// revertReason decodes an Error(string) payload attached to a node error.
func revertReason(err error) (string, bool) {
	var dataErr interface{ ErrorData() interface{} }
	if !errors.As(err, &dataErr) {
		return "", false
	}
	raw, ok := dataErr.ErrorData().(string)
	if !ok {
		return "", false
	}
	data, decodeErr := hexutil.Decode(raw)
	if decodeErr != nil {
		return "", false
	}
	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		return "", false
	}
	return reason, true
}
