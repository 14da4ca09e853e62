package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/0xPexy/sentra-checkout/internal/auth"
	"github.com/0xPexy/sentra-checkout/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// SmartAccount is the payer's account as the account endpoints see it.
type SmartAccount interface {
	Address() common.Address
	IsDeployed(ctx context.Context, account common.Address) (bool, error)
	Deploy(ctx context.Context) (common.Hash, error)
}

type AccountLookup func(ctx context.Context, owner common.Address) (SmartAccount, error)

type AccountResponse struct {
	Owner    string `json:"owner"`
	Account  string `json:"account"`
	Deployed bool   `json:"deployed"`
}

type DeployResponse struct {
	Account string `json:"account"`
	TxHash  string `json:"txHash"`
}

type accountHandler struct {
	lookup AccountLookup
}

func (h *accountHandler) resolve(c *gin.Context) (SmartAccount, common.Address, bool) {
	payer := c.GetString(auth.PayerKey)
	if !common.IsHexAddress(payer) {
		writeError(c, http.StatusUnauthorized, "payer address missing")
		return nil, common.Address{}, false
	}
	owner := common.HexToAddress(payer)
	acct, err := h.lookup(c.Request.Context(), owner)
	if err != nil {
		if apperr.IsTimeout(err) {
			err = apperr.Upstream("account", err)
		} else {
			err = apperr.Wrap(apperr.AccountUnavailable, "account", err)
		}
		writeAppError(c, err)
		return nil, owner, false
	}
	return acct, owner, true
}

func (h *accountHandler) Get(c *gin.Context) {
	acct, owner, ok := h.resolve(c)
	if !ok {
		return
	}
	deployed, err := acct.IsDeployed(c.Request.Context(), acct.Address())
	if err != nil {
		writeAppError(c, apperr.Upstream("account code", err))
		return
	}
	c.JSON(http.StatusOK, AccountResponse{
		Owner:    owner.Hex(),
		Account:  acct.Address().Hex(),
		Deployed: deployed,
	})
}

// Deploy sends the factory transaction from the relayer ahead of the first
// installment. Subscribing does not require it.
func (h *accountHandler) Deploy(c *gin.Context) {
	acct, _, ok := h.resolve(c)
	if !ok {
		return
	}
	hash, err := acct.Deploy(c.Request.Context())
	switch {
	case errors.Is(err, chain.ErrAlreadyDeployed):
		writeError(c, http.StatusConflict, err.Error())
		return
	case errors.Is(err, chain.ErrNoRelayer):
		writeError(c, http.StatusNotImplemented, err.Error())
		return
	case err != nil:
		writeAppError(c, apperr.Upstream("deploy account", err))
		return
	}
	c.JSON(http.StatusOK, DeployResponse{Account: acct.Address().Hex(), TxHash: hash.Hex()})
}
