package batch

import (
	"fmt"
	"math/big"

	"github.com/0xPexy/sentra-checkout/internal/fees"
	"github.com/0xPexy/sentra-checkout/internal/userop"
	"github.com/ethereum/go-ethereum/common"
)

// Transfer is the shared payload of every installment.
type Transfer struct {
	From      common.Address
	To        common.Address
	Token     common.Address
	Amount    *big.Int
	Quote     fees.Quote
	Validator common.Address
}

// FactoryArgs is the one-time deployment payload of a smart account.
type FactoryArgs struct {
	Factory     common.Address
	FactoryData []byte
}

// SignedBatch is the ordered, sponsored installment set of one subscription.
type SignedBatch struct {
	Sender     common.Address
	Validator  common.Address
	BaseNonce  *big.Int
	Deployed   bool
	Transfer   Transfer
	Schedule   []int64
	Operations []*userop.Operation
}

// installment builds the unsigned operation for index i. Nonce and deployment
// placement depend only on i, never on build order.
func installment(i int, sender common.Address, base *big.Int, deploy *FactoryArgs, callData []byte, paymaster common.Address) *userop.Operation {
	op := userop.Default()
	op.Sender = sender
	op.Nonce = new(big.Int).Add(base, big.NewInt(int64(i)))
	if i == 0 && deploy != nil {
		f := deploy.Factory
		op.Factory = &f
		op.FactoryData = common.CopyBytes(deploy.FactoryData)
	}
	op.CallData = common.CopyBytes(callData)
	pm := paymaster
	op.Paymaster = &pm
	op.PaymasterData = userop.PlaceholderPaymasterData(paymaster)
	return op
}

// Validate checks the batch invariants: one operation per execution time,
// contiguous nonces from BaseNonce, deployment data only on the first
// operation and only for an undeployed account.
func (b *SignedBatch) Validate() error {
	if len(b.Operations) != len(b.Schedule) {
		return fmt.Errorf("batch has %d operations for %d execution times", len(b.Operations), len(b.Schedule))
	}
	if b.BaseNonce == nil {
		return fmt.Errorf("batch has no base nonce")
	}
	for i, op := range b.Operations {
		if op == nil {
			return fmt.Errorf("operation %d missing", i)
		}
		want := new(big.Int).Add(b.BaseNonce, big.NewInt(int64(i)))
		if op.Nonce == nil || op.Nonce.Cmp(want) != 0 {
			return fmt.Errorf("operation %d nonce %v, want %s", i, op.Nonce, want)
		}
		if op.Sender != b.Sender {
			return fmt.Errorf("operation %d sender %s, want %s", i, op.Sender.Hex(), b.Sender.Hex())
		}
		wantDeploy := i == 0 && !b.Deployed
		if op.HasDeployment() != wantDeploy {
			return fmt.Errorf("operation %d deployment payload present=%t, want %t", i, op.HasDeployment(), wantDeploy)
		}
	}
	return nil
}
