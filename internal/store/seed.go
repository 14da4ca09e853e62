package store

import (
	"context"
	"fmt"
	"log"

	"github.com/0xPexy/sentra-checkout/internal/validator"
)

// SeedValidatorPools replaces the stored pool of every chain in pools.
// Chains absent from pools keep what is stored.
func SeedValidatorPools(ctx context.Context, repo *Repository, pools map[uint64]validator.Pool) error {
	for chainID, pool := range pools {
		if len(pool) == 0 {
			continue
		}
		if err := repo.ReplaceValidatorPool(ctx, chainID, pool); err != nil {
			return fmt.Errorf("seed validator pool for chain %d: %w", chainID, err)
		}
		log.Printf("seeded validator pool chain=%d size=%d default=%s", chainID, len(pool), pool[0].Hex())
	}
	return nil
}
