package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func mustParseABI(jsonStr string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(jsonStr))
	if err != nil {
		panic(err)
	}
	return parsed
}

var (
	feeCalculatorABI = mustParseABI(`[
		{"inputs":[{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"address","name":"validator","type":"address"}],"name":"calculateFees","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"internalType":"address","name":"validator","type":"address"}],"name":"getPaymasterFees","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"internalType":"address","name":"validator","type":"address"}],"name":"getFeesRecipients","outputs":[{"internalType":"address","name":"feesRecipient","type":"address"},{"internalType":"address","name":"paymasterFeesRecipient","type":"address"}],"stateMutability":"view","type":"function"}
	]`)

	entryPointABI = mustParseABI(`[
		{"inputs":[{"internalType":"address","name":"sender","type":"address"},{"internalType":"uint192","name":"key","type":"uint192"}],"name":"getNonce","outputs":[{"internalType":"uint256","name":"nonce","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`)

	accountFactoryABI = mustParseABI(`[
		{"inputs":[{"internalType":"address","name":"owner","type":"address"},{"internalType":"uint256","name":"salt","type":"uint256"}],"name":"createAccount","outputs":[{"internalType":"address","name":"ret","type":"address"}],"stateMutability":"nonpayable","type":"function"},
		{"inputs":[{"internalType":"address","name":"owner","type":"address"},{"internalType":"uint256","name":"salt","type":"uint256"}],"name":"getAddress","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
	]`)

	erc20ABI = mustParseABI(`[
		{"inputs":[{"internalType":"address","name":"owner","type":"address"},{"internalType":"address","name":"spender","type":"address"}],"name":"allowance","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"internalType":"address","name":"spender","type":"address"},{"internalType":"uint256","name":"value","type":"uint256"}],"name":"approve","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
	]`)

	// Subscription executor on the smart account: pulls amount plus both fees
	// from the payer in one call.
	transferExecutorABI = mustParseABI(`[
		{"inputs":[{"internalType":"address","name":"from","type":"address"},{"internalType":"address","name":"to","type":"address"},{"internalType":"address","name":"token","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"uint256","name":"fees","type":"uint256"},{"internalType":"uint256","name":"paymasterFees","type":"uint256"},{"internalType":"address","name":"feesRecipient","type":"address"},{"internalType":"address","name":"paymasterFeesRecipient","type":"address"}],"name":"executeERC20Transfer","outputs":[],"stateMutability":"nonpayable","type":"function"}
	]`)
)
