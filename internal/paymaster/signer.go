package paymaster

import (
	"context"
	"net/http"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/0xPexy/sentra-checkout/internal/submit"
	"github.com/0xPexy/sentra-checkout/internal/userop"
)

type signRequest struct {
	UserOp *userop.Operation `json:"userOp"`
}

type signResponse struct {
	UserOp *userop.Operation `json:"userOp"`
}

// Sign asks the sponsor to sign one pre-built operation. A rejection is a
// SigningFailure. It satisfies batch.Signer.
func (c *Client) Sign(ctx context.Context, op *userop.Operation) (*userop.Operation, error) {
	if op == nil {
		return nil, apperr.New(apperr.InvalidInput, "paymaster sign", "nil operation")
	}
	var resp signResponse
	if err := c.do(ctx, "paymaster sign", http.MethodPost, signPath, nil, signRequest{UserOp: op}, &resp, apperr.SigningFailure); err != nil {
		return nil, err
	}
	if resp.UserOp == nil {
		return nil, apperr.New(apperr.MalformedResponse, "paymaster sign", "missing userOp")
	}
	return resp.UserOp, nil
}

// Submit posts a signed batch for aggregate signing. It satisfies
// submit.Aggregator.
func (c *Client) Submit(ctx context.Context, req submit.Request) (*submit.Receipt, error) {
	var receipt submit.Receipt
	if err := c.do(ctx, "aggregate submission", http.MethodPost, aggregatePath, nil, req, &receipt, apperr.UpstreamFailure); err != nil {
		return nil, err
	}
	return &receipt, nil
}
