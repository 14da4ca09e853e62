package config

import "time"

type PaymasterConfig struct {
	URL     string
	APIKey  string
	Address string
	// RPCURL selects the ERC-7677 pm_getPaymasterData signer instead of the
	// REST signing endpoint when set.
	RPCURL          string
	SignConcurrency int
	Timeout         time.Duration
}

func loadPaymaster() PaymasterConfig {
	return PaymasterConfig{
		URL:             mustenv("PAYMASTER_URL"),
		APIKey:          getenv("PAYMASTER_API_KEY", ""),
		Address:         mustenv("PAYMASTER_ADDRESS"),
		RPCURL:          getenv("PAYMASTER_RPC_URL", ""),
		SignConcurrency: intEnv("PAYMASTER_SIGN_CONCURRENCY", 4),
		Timeout:         durationEnvSeconds("PAYMASTER_TIMEOUT", 15*time.Second),
	}
}
