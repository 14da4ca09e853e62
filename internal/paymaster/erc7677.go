package paymaster

import (
	"context"
	"errors"
	"log"
	"math/big"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/0xPexy/sentra-checkout/internal/userop"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const methodGetPaymasterData = "pm_getPaymasterData"

type Sponsor struct {
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

// PaymasterDataResult is the ERC-7677 pm_getPaymasterData result for v0.7
// entry points.
type PaymasterDataResult struct {
	Sponsor                       *Sponsor        `json:"sponsor,omitempty"`
	Paymaster                     *common.Address `json:"paymaster"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
}

// RPCSigner obtains sponsorship through an ERC-7677 paymaster web service.
// It satisfies batch.Signer.
type RPCSigner struct {
	client     *rpc.Client
	entryPoint common.Address
	chainID    *big.Int
	// forwarded verbatim as the fourth pm_getPaymasterData param
	context map[string]any
	logger  *log.Logger
}

func NewRPCSigner(client *rpc.Client, entryPoint common.Address, chainID *big.Int, policy map[string]any, logger *log.Logger) *RPCSigner {
	if policy == nil {
		policy = map[string]any{}
	}
	return &RPCSigner{client: client, entryPoint: entryPoint, chainID: chainID, context: policy, logger: logger}
}

func DialRPCSigner(ctx context.Context, url string, entryPoint common.Address, chainID *big.Int, policy map[string]any, logger *log.Logger) (*RPCSigner, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewRPCSigner(client, entryPoint, chainID, policy, logger), nil
}

func (s *RPCSigner) Sign(ctx context.Context, op *userop.Operation) (*userop.Operation, error) {
	if op == nil {
		return nil, apperr.New(apperr.InvalidInput, "paymaster sign", "nil operation")
	}
	var res PaymasterDataResult
	err := s.client.CallContext(ctx, &res, methodGetPaymasterData, op, s.entryPoint, (*hexutil.Big)(s.chainID), s.context)
	if err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			if s.logger != nil {
				s.logger.Printf("pm_getPaymasterData rejected: sender=%s nonce=%s code=%d", op.Sender.Hex(), op.Nonce, rpcErr.ErrorCode())
			}
			return nil, apperr.Wrap(apperr.SigningFailure, "paymaster sign", err)
		}
		return nil, apperr.Upstream("paymaster sign", err)
	}
	if res.Paymaster == nil || len(res.PaymasterData) == 0 {
		return nil, apperr.New(apperr.MalformedResponse, "paymaster sign", "incomplete paymaster data")
	}
	signed := op.Clone()
	signed.Paymaster = res.Paymaster
	signed.PaymasterData = res.PaymasterData
	if res.PaymasterVerificationGasLimit != nil {
		signed.PaymasterVerificationGasLimit = res.PaymasterVerificationGasLimit.ToInt()
	}
	if res.PaymasterPostOpGasLimit != nil {
		signed.PaymasterPostOpGasLimit = res.PaymasterPostOpGasLimit.ToInt()
	}
	return signed, nil
}

func (s *RPCSigner) Close() { s.client.Close() }
