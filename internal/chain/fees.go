package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FeeOracle reads protocol and sponsorship fees from the fee calculator
// contract. It satisfies fees.Oracle.
type FeeOracle struct {
	client     Caller
	calculator common.Address
}

func NewFeeOracle(client Caller, calculator common.Address) *FeeOracle {
	return &FeeOracle{client: client, calculator: calculator}
}

func (o *FeeOracle) ProtocolFee(ctx context.Context, amount *big.Int, validator common.Address) (*big.Int, error) {
	values, err := call(ctx, o.client, feeCalculatorABI, o.calculator, "calculateFees", amount, validator)
	if err != nil {
		return nil, err
	}
	return bigResult("calculateFees", values)
}

func (o *FeeOracle) SponsorshipFee(ctx context.Context, validator common.Address) (*big.Int, error) {
	values, err := call(ctx, o.client, feeCalculatorABI, o.calculator, "getPaymasterFees", validator)
	if err != nil {
		return nil, err
	}
	return bigResult("getPaymasterFees", values)
}

func (o *FeeOracle) FeeRecipients(ctx context.Context, validator common.Address) (common.Address, common.Address, error) {
	values, err := call(ctx, o.client, feeCalculatorABI, o.calculator, "getFeesRecipients", validator)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	protocol, err := addressResult("getFeesRecipients", values, 0)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	sponsorship, err := addressResult("getFeesRecipients", values, 1)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return protocol, sponsorship, nil
}
