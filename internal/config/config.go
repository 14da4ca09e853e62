package config

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Chain      ChainConfig
	Paymaster  PaymasterConfig
	Auth       AuthConfig
	Checkout   CheckoutConfig
	Validators ValidatorsConfig
	Indexer    IndexerConfig
}

func Load() Config {
	ensureEnvLoaded()
	chain := loadChain()
	return Config{
		Server:     loadServer(),
		Database:   loadDatabase(),
		Chain:      chain,
		Paymaster:  loadPaymaster(),
		Auth:       loadAuth(chain.ChainID),
		Checkout:   loadCheckout(),
		Validators: loadValidators(),
		Indexer:    loadIndexer(),
	}
}
