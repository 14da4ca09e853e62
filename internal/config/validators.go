package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidatorsConfig holds comma-separated validator pools. VALIDATORS is the
// pool of the configured chain; VALIDATORS_<chainID> adds others.
type ValidatorsConfig struct {
	Default string
	Pools   map[uint64]string
}

func loadValidators() ValidatorsConfig {
	pools := make(map[uint64]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "VALIDATORS_") || strings.TrimSpace(value) == "" {
			continue
		}
		var id uint64
		if _, err := fmt.Sscan(strings.TrimPrefix(key, "VALIDATORS_"), &id); err != nil || id == 0 {
			continue
		}
		pools[id] = strings.TrimSpace(value)
	}
	return ValidatorsConfig{
		Default: strings.TrimSpace(getenv("VALIDATORS", "")),
		Pools:   pools,
	}
}

// For returns the pool table with Default bound to chainID.
func (v ValidatorsConfig) For(chainID uint64) map[uint64]string {
	out := make(map[uint64]string, len(v.Pools)+1)
	for id, csv := range v.Pools {
		out[id] = csv
	}
	if v.Default != "" {
		out[chainID] = v.Default
	}
	return out
}
