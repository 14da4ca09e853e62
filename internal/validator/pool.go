package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/ethereum/go-ethereum/common"
)

// Pool is the ordered validator set for one chain. Position 0 is the default
// validator; the rest are additional key slots.
type Pool []common.Address

func (p Pool) Default() (common.Address, bool) {
	if len(p) == 0 {
		return common.Address{}, false
	}
	return p[0], true
}

// PoolFor resolves the pool configured for a chain.
type PoolFor func(ctx context.Context, chainID uint64) (Pool, error)

// StaticPools is a PoolFor over a fixed table.
func StaticPools(table map[uint64]Pool) PoolFor {
	return func(_ context.Context, chainID uint64) (Pool, error) {
		pool, ok := table[chainID]
		if !ok || len(pool) == 0 {
			return nil, apperr.Newf(apperr.InvalidInput, "validator pool", "no validators configured for chain %d", chainID)
		}
		return pool, nil
	}
}

// ParsePool reads a comma separated address list.
func ParsePool(csv string) (Pool, error) {
	var out Pool
	seen := make(map[common.Address]struct{})
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !common.IsHexAddress(part) {
			return nil, fmt.Errorf("invalid validator address %q", part)
		}
		addr := common.HexToAddress(part)
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("duplicate validator address %s", addr.Hex())
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out, nil
}
