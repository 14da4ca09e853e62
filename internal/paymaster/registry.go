package paymaster

import (
	"context"
	"math/big"
	"net/http"
	"net/url"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/0xPexy/sentra-checkout/internal/validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type nonceKeysResponse struct {
	NonceKeys []*hexutil.Big `json:"nonceKeys"`
}

// maxNonceKey bounds the EntryPoint nonce key (uint192).
var maxNonceKey = new(big.Int).Lsh(big.NewInt(1), 192)

// PendingNonceKeys reports which validators of pool already carry an
// in-flight batch for smartAccount. It satisfies validator.NonceRegistry.
func (c *Client) PendingNonceKeys(ctx context.Context, smartAccount common.Address, pool validator.Pool) (validator.PendingSet, error) {
	var resp nonceKeysResponse
	q := url.Values{"account": {smartAccount.Hex()}}
	if err := c.do(ctx, "pending nonce keys", http.MethodGet, nonceKeysPath, q, nil, &resp, apperr.UpstreamFailure); err != nil {
		return nil, err
	}
	if resp.NonceKeys == nil {
		return nil, apperr.New(apperr.MalformedResponse, "pending nonce keys", "missing nonceKeys")
	}
	inPool := make(map[common.Address]struct{}, len(pool))
	for _, v := range pool {
		inPool[v] = struct{}{}
	}
	pending := validator.NewPendingSet()
	for _, key := range resp.NonceKeys {
		if key == nil || key.ToInt().Sign() < 0 || key.ToInt().Cmp(maxNonceKey) >= 0 {
			return nil, apperr.New(apperr.MalformedResponse, "pending nonce keys", "nonce key out of range")
		}
		addr := common.BigToAddress(key.ToInt())
		if _, ok := inPool[addr]; ok {
			pending[addr] = struct{}{}
		}
	}
	c.logf("pending nonce keys: account=%s pending=%d/%d", smartAccount.Hex(), len(pending), len(pool))
	return pending, nil
}
