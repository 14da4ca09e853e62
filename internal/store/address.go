package store

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress is the stored form of a hex address string: trimmed,
// lowercase, 0x-prefixed. Address columns only ever hold this form.
func NormalizeAddress(addr string) string {
	s := strings.ToLower(strings.TrimSpace(addr))
	if s == "" {
		return ""
	}
	return "0x" + strings.TrimPrefix(s, "0x")
}

func addressKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}
