package validator

import (
	"context"
	"log"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/ethereum/go-ethereum/common"
)

// PendingSet is the subset of a pool reserved by in-flight subscriptions.
type PendingSet map[common.Address]struct{}

func NewPendingSet(addrs ...common.Address) PendingSet {
	out := make(PendingSet, len(addrs))
	for _, a := range addrs {
		out[a] = struct{}{}
	}
	return out
}

func (s PendingSet) Has(addr common.Address) bool {
	_, ok := s[addr]
	return ok
}

// Allocate returns the first validator of pool that is not pending.
func Allocate(pool Pool, pending PendingSet) (common.Address, error) {
	if len(pool) == 0 {
		return common.Address{}, apperr.New(apperr.InvalidInput, "allocate validator", "empty validator pool")
	}
	if len(pending) == 0 {
		return pool[0], nil
	}
	for _, addr := range pool {
		if !pending.Has(addr) {
			return addr, nil
		}
	}
	return common.Address{}, apperr.New(apperr.ValidatorPoolExhausted, "allocate validator", "subscribe limit exceeded")
}

// NonceRegistry reports which validators currently hold a pending nonce
// sequence for a smart account. It is the source of truth for conflicts.
type NonceRegistry interface {
	PendingNonceKeys(ctx context.Context, smartAccount common.Address, pool Pool) (PendingSet, error)
}

// Allocator pairs the chain pool lookup with a fresh registry read. The result
// is best-effort: another process may claim the same slot between this read
// and the registry observing the new batch.
type Allocator struct {
	pools    PoolFor
	registry NonceRegistry
	logger   *log.Logger
}

func NewAllocator(pools PoolFor, registry NonceRegistry, logger *log.Logger) *Allocator {
	return &Allocator{pools: pools, registry: registry, logger: logger}
}

func (a *Allocator) Pool(ctx context.Context, chainID uint64) (Pool, error) {
	return a.pools(ctx, chainID)
}

func (a *Allocator) Allocate(ctx context.Context, chainID uint64, smartAccount common.Address) (common.Address, error) {
	pool, err := a.pools(ctx, chainID)
	if err != nil {
		return common.Address{}, err
	}
	pending, err := a.registry.PendingNonceKeys(ctx, smartAccount, pool)
	if err != nil {
		return common.Address{}, apperr.Upstream("nonce registry", err)
	}
	addr, err := Allocate(pool, pending)
	if err != nil {
		a.logf("allocation failed: chain=%d account=%s pending=%d pool=%d err=%v", chainID, smartAccount.Hex(), len(pending), len(pool), err)
		return common.Address{}, err
	}
	a.logf("allocated validator %s for account %s (pending=%d)", addr.Hex(), smartAccount.Hex(), len(pending))
	return addr, nil
}

func (a *Allocator) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}
