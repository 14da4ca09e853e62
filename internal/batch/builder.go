// Package batch assembles the paymaster-sponsored user operations that carry
// every installment of a subscription.
package batch

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math/big"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/0xPexy/sentra-checkout/internal/userop"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

type AccountService interface {
	IsDeployed(ctx context.Context, account common.Address) (bool, error)
	FactoryArgs(ctx context.Context, account common.Address) (*FactoryArgs, error)
	ValidatorNonce(ctx context.Context, account, validator common.Address) (*big.Int, error)
}

type CallDataEncoder interface {
	TransferCallData(t Transfer) ([]byte, error)
}

// Signer obtains paymaster sponsorship for an operation.
type Signer interface {
	Sign(ctx context.Context, op *userop.Operation) (*userop.Operation, error)
}

type Config struct {
	// Paymaster is the canonical fee-paying contract written into every
	// signed operation.
	Paymaster common.Address
	// SignConcurrency bounds parallel sponsorship requests.
	SignConcurrency int
}

func (c Config) signConcurrency() int {
	if c.SignConcurrency <= 0 {
		return 1
	}
	return c.SignConcurrency
}

type Request struct {
	Account  common.Address
	Transfer Transfer
	Schedule []int64
}

type Builder struct {
	cfg      Config
	accounts AccountService
	encoder  CallDataEncoder
	signer   Signer
	logger   *log.Logger
}

func NewBuilder(cfg Config, accounts AccountService, encoder CallDataEncoder, signer Signer, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{cfg: cfg, accounts: accounts, encoder: encoder, signer: signer, logger: logger}
}

// Build returns either a complete, validated batch or an error; never a
// partial batch.
func (b *Builder) Build(ctx context.Context, req Request) (*SignedBatch, error) {
	if len(req.Schedule) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "build batch", "empty schedule")
	}
	if req.Transfer.Amount == nil || req.Transfer.Amount.Sign() <= 0 {
		return nil, apperr.New(apperr.InvalidInput, "build batch", "transfer amount must be positive")
	}
	if req.Transfer.Quote.ProtocolFee == nil || req.Transfer.Quote.SponsorshipFee == nil {
		return nil, apperr.New(apperr.InvalidInput, "build batch", "fee quote incomplete")
	}

	deployed, deploy, nonce, err := b.resolveAccount(ctx, req.Account, req.Transfer.Validator)
	if err != nil {
		return nil, err
	}

	callData, err := b.encoder.TransferCallData(req.Transfer)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "transfer calldata", err)
	}
	if len(callData) == 0 {
		return nil, apperr.New(apperr.UpstreamFailure, "transfer calldata", "encoder returned empty calldata")
	}

	ops := make([]*userop.Operation, len(req.Schedule))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.signConcurrency())
	for i := range req.Schedule {
		i := i
		pre := installment(i, req.Account, nonce, deploy, callData, b.cfg.Paymaster)
		g.Go(func() error {
			signed, err := b.sign(gctx, i, pre)
			if err != nil {
				return err
			}
			ops[i] = signed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.logf("build aborted: account=%s validator=%s installments=%d err=%v", req.Account.Hex(), req.Transfer.Validator.Hex(), len(req.Schedule), err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.Upstream("build batch", err)
	}

	out := &SignedBatch{
		Sender:     req.Account,
		Validator:  req.Transfer.Validator,
		BaseNonce:  new(big.Int).Set(nonce),
		Deployed:   deployed,
		Transfer:   req.Transfer,
		Schedule:   append([]int64(nil), req.Schedule...),
		Operations: ops,
	}
	if err := out.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.SigningFailure, "validate batch", err)
	}
	b.logf("built batch: account=%s validator=%s baseNonce=%s installments=%d deployed=%t", req.Account.Hex(), req.Transfer.Validator.Hex(), nonce, len(ops), deployed)
	return out, nil
}

func (b *Builder) resolveAccount(ctx context.Context, account, validator common.Address) (bool, *FactoryArgs, *big.Int, error) {
	deployed, err := b.accounts.IsDeployed(ctx, account)
	if err != nil {
		return false, nil, nil, apperr.Upstream("account deployment status", err)
	}
	var deploy *FactoryArgs
	if !deployed {
		deploy, err = b.accounts.FactoryArgs(ctx, account)
		if err != nil {
			return false, nil, nil, apperr.Upstream("account factory args", err)
		}
		if deploy == nil || deploy.Factory == (common.Address{}) || len(deploy.FactoryData) == 0 {
			return false, nil, nil, apperr.Newf(apperr.AccountUnavailable, "account factory args", "no deployment payload for undeployed account %s", account.Hex())
		}
	}
	nonce, err := b.accounts.ValidatorNonce(ctx, account, validator)
	if err != nil {
		return false, nil, nil, apperr.Upstream("validator nonce", err)
	}
	if nonce == nil {
		return false, nil, nil, apperr.Newf(apperr.AccountUnavailable, "validator nonce", "no nonce for account %s validator %s", account.Hex(), validator.Hex())
	}
	return deployed, deploy, nonce, nil
}

func (b *Builder) sign(ctx context.Context, i int, pre *userop.Operation) (*userop.Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Upstream("paymaster sign", err)
	}
	signed, err := b.signer.Sign(ctx, pre.Clone())
	if err != nil {
		if apperr.IsTimeout(err) || errors.Is(err, context.Canceled) {
			return nil, apperr.Upstream("paymaster sign", err)
		}
		if apperr.KindOf(err) != "" {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.SigningFailure, "paymaster sign", err)
	}
	if signed == nil || len(signed.PaymasterData) == 0 {
		return nil, apperr.Newf(apperr.SigningFailure, "paymaster sign", "installment %d: empty sponsorship", i)
	}
	if signed.Sender != pre.Sender || signed.Nonce == nil || signed.Nonce.Cmp(pre.Nonce) != 0 {
		return nil, apperr.Newf(apperr.SigningFailure, "paymaster sign", "installment %d: signer altered sender or nonce", i)
	}
	if !bytes.Equal(signed.CallData, pre.CallData) {
		return nil, apperr.Newf(apperr.SigningFailure, "paymaster sign", "installment %d: signer altered calldata", i)
	}
	pm := b.cfg.Paymaster
	signed.Paymaster = &pm
	return signed, nil
}

func (b *Builder) logf(format string, args ...any) {
	if b.logger != nil {
		b.logger.Printf(format, args...)
	}
}
