package chain

import (
	"context"
	"math/big"

	"github.com/0xPexy/sentra-checkout/internal/batch"
	"github.com/ethereum/go-ethereum/common"
)

type TokenReader struct {
	client Caller
}

func NewTokenReader(client Caller) *TokenReader { return &TokenReader{client: client} }

func (r *TokenReader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	values, err := call(ctx, r.client, erc20ABI, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return bigResult("allowance", values)
}

// ApproveCallData encodes ERC-20 approve(spender, amount).
func ApproveCallData(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, amount)
}

// TransferEncoder encodes the per-installment executor call. It satisfies
// batch.CallDataEncoder.
type TransferEncoder struct{}

func (TransferEncoder) TransferCallData(t batch.Transfer) ([]byte, error) {
	return transferExecutorABI.Pack("executeERC20Transfer",
		t.From,
		t.To,
		t.Token,
		t.Amount,
		t.Quote.ProtocolFee,
		t.Quote.SponsorshipFee,
		t.Quote.ProtocolRecipient,
		t.Quote.SponsorshipRecipient,
	)
}

// DecodeTransfer reverses TransferCallData.
func DecodeTransfer(data []byte) (batch.Transfer, error) {
	method, err := transferExecutorABI.MethodById(data)
	if err != nil {
		return batch.Transfer{}, err
	}
	var args struct {
		From                   common.Address
		To                     common.Address
		Token                  common.Address
		Amount                 *big.Int
		Fees                   *big.Int
		PaymasterFees          *big.Int
		FeesRecipient          common.Address
		PaymasterFeesRecipient common.Address
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return batch.Transfer{}, err
	}
	if err := method.Inputs.Copy(&args, values); err != nil {
		return batch.Transfer{}, err
	}
	out := batch.Transfer{From: args.From, To: args.To, Token: args.Token, Amount: args.Amount}
	out.Quote.ProtocolFee = args.Fees
	out.Quote.SponsorshipFee = args.PaymasterFees
	out.Quote.ProtocolRecipient = args.FeesRecipient
	out.Quote.SponsorshipRecipient = args.PaymasterFeesRecipient
	return out, nil
}
