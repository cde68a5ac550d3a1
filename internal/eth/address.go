package eth

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/palette/core"
)

// NormalizeAddress validates a hex wallet address and returns it lowercased.
// Mixed-case input must carry a valid EIP-55 checksum.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") || !common.IsHexAddress(s) {
		return "", core.ErrInvalidAddressFormat
	}

	body := s[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if common.HexToAddress(s).Hex() != s {
			return "", core.ErrInvalidAddressFormat
		}
	}

	return strings.ToLower(s), nil
}

// SameAddress compares two hex addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
