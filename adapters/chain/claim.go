package chain

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/layer-3/palette/core"
)

// ClaimArgs are the decoded arguments of a claim call.
type ClaimArgs struct {
	Recipient common.Address
	Amount    *big.Int
	Nonce     *big.Int
	Signature []byte
}

// RewardClaimed is the decoded success event.
type RewardClaimed struct {
	Recipient common.Address
	Amount    *big.Int
	Nonce     *big.Int
	TxHash    common.Hash
}

// PackClaim builds calldata for claimRewardWithSignature from a voucher.
func PackClaim(voucher *core.ClaimVoucher) ([]byte, error) {
	sig, err := hexutil.Decode(voucher.Signature)
	if err != nil {
		return nil, fmt.Errorf("failed to decode voucher signature: %w", core.ErrInvalidSignatureFormat)
	}
	if voucher.Amount == nil || voucher.Nonce == nil {
		return nil, fmt.Errorf("voucher amount and nonce are required: %w", core.ErrMissingField)
	}

	data, err := redemptionABI.Pack(MethodClaim, voucher.Recipient, voucher.Amount, voucher.Nonce, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to pack claim: %w", err)
	}
	return data, nil
}

// UnpackClaim decodes claimRewardWithSignature calldata.
func UnpackClaim(calldata []byte) (*ClaimArgs, error) {
	method := redemptionABI.Methods[MethodClaim]
	if len(calldata) < 4 || !bytes.Equal(calldata[:4], method.ID) {
		return nil, fmt.Errorf("calldata is not a %s call", MethodClaim)
	}

	values, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack claim: %w", err)
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected claim argument count %d", len(values))
	}

	args := &ClaimArgs{}
	var ok [4]bool
	args.Recipient, ok[0] = values[0].(common.Address)
	args.Amount, ok[1] = values[1].(*big.Int)
	args.Nonce, ok[2] = values[2].(*big.Int)
	args.Signature, ok[3] = values[3].([]byte)
	for _, good := range ok {
		if !good {
			return nil, fmt.Errorf("unexpected claim argument types")
		}
	}

	return args, nil
}

// ParseRewardClaimed finds the RewardClaimed event emitted by contract in receipt.
func ParseRewardClaimed(receipt *types.Receipt, contract common.Address) (*RewardClaimed, error) {
	if receipt == nil {
		return nil, fmt.Errorf("receipt is nil")
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, core.ErrTxReverted
	}

	event := redemptionABI.Events[EventClaimed]
	for _, lg := range receipt.Logs {
		if lg.Address != contract || len(lg.Topics) != 2 || lg.Topics[0] != event.ID {
			continue
		}

		var out struct {
			Amount *big.Int
			Nonce  *big.Int
		}
		if err := redemptionABI.UnpackIntoInterface(&out, EventClaimed, lg.Data); err != nil {
			return nil, fmt.Errorf("failed to unpack %s: %w", EventClaimed, err)
		}

		return &RewardClaimed{
			Recipient: common.BytesToAddress(lg.Topics[1].Bytes()),
			Amount:    out.Amount,
			Nonce:     out.Nonce,
			TxHash:    receipt.TxHash,
		}, nil
	}

	return nil, fmt.Errorf("no %s event in receipt %s", EventClaimed, receipt.TxHash.Hex())
}

// rewardClaimedLog builds the log the contract emits on success.
func rewardClaimedLog(contract common.Address, recipient common.Address, amount, nonce *big.Int) (*types.Log, error) {
	event := redemptionABI.Events[EventClaimed]
	data, err := event.Inputs.NonIndexed().Pack(amount, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", EventClaimed, err)
	}
	return &types.Log{
		Address: contract,
		Topics:  []common.Hash{event.ID, common.BytesToHash(recipient.Bytes())},
		Data:    data,
	}, nil
}
