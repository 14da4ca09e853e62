package config

type DatabaseConfig struct {
	// SQLiteDSN is a file path or a sqlite "file:" URI.
	SQLiteDSN string
}

func loadDatabase() DatabaseConfig {
	return DatabaseConfig{
		SQLiteDSN: getenv("SQLITE_DSN", "./data/checkout.db"),
	}
}
