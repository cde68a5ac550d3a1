// Package chain talks to the reward redemption contract and the reward token.
package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	MethodClaim     = "claimRewardWithSignature"
	EventClaimed    = "RewardClaimed"
	MethodBalanceOf = "balanceOf"
)

// Revert reasons emitted by the redemption contract.
const (
	ReasonNonceUsed        = "Nonce already used"
	ReasonInvalidSignature = "Invalid signature"
	ReasonInsufficientPool = "Insufficient pool balance"
	ReasonInvalidRecipient = "Invalid recipient"
	ReasonInvalidAmount    = "Invalid amount"
)

const redemptionABIJSON = `[
	{
		"type": "function",
		"name": "claimRewardWithSignature",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "recipient", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "nonce", "type": "uint256"},
			{"name": "signature", "type": "bytes"}
		],
		"outputs": []
	},
	{
		"type": "event",
		"name": "RewardClaimed",
		"anonymous": false,
		"inputs": [
			{"name": "recipient", "type": "address", "indexed": true},
			{"name": "amount", "type": "uint256", "indexed": false},
			{"name": "nonce", "type": "uint256", "indexed": false}
		]
	}
]`

const erc20ABIJSON = `[
	{
		"type": "function",
		"name": "balanceOf",
		"stateMutability": "view",
		"inputs": [{"name": "account", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]
	}
]`

var (
	redemptionABI = mustParseABI(redemptionABIJSON)
	erc20ABI      = mustParseABI(erc20ABIJSON)
)

// RedemptionABI returns the parsed redemption contract ABI.
func RedemptionABI() abi.ABI { return redemptionABI }

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("chain: invalid ABI: " + err.Error())
	}
	return parsed
}
