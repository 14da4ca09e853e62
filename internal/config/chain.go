package config

type ChainConfig struct {
	RPCURL         string
	ChainID        uint64
	EntryPoint     string
	AccountFactory string
	// AccountSalt is the factory salt used for every payer account.
	AccountSalt   uint64
	FeeCalculator string
	// RelayerPrivateKey funds account deployments. Empty disables them.
	RelayerPrivateKey string
}

func loadChain() ChainConfig {
	return ChainConfig{
		RPCURL:            mustenv("CHAIN_RPC_URL"),
		ChainID:           u64env("CHAIN_ID", 0),
		EntryPoint:        getenv("ENTRY_POINT", "0x0000000071727De22E5E9d8BAf0edAc6f37da032"),
		AccountFactory:    mustenv("FACTORY_ADDRESS"),
		AccountSalt:       u64env("ACCOUNT_SALT", 0),
		FeeCalculator:     mustenv("FEE_CALCULATOR_ADDRESS"),
		RelayerPrivateKey: getenv("RELAYER_PK", ""),
	}
}
