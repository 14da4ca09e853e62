package fees

import (
	"context"
	"math/big"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/ethereum/go-ethereum/common"
)

// Quote is the per-installment fee bundle for one (validator, amount) pair.
// Amounts are token base units.
type Quote struct {
	ProtocolFee          *big.Int
	SponsorshipFee       *big.Int
	ProtocolRecipient    common.Address
	SponsorshipRecipient common.Address
}

// PerInstallment is unit + both fees.
func (q Quote) PerInstallment(unit *big.Int) *big.Int {
	out := new(big.Int).Set(unit)
	out.Add(out, q.ProtocolFee)
	return out.Add(out, q.SponsorshipFee)
}

// Oracle is the external fee calculator.
type Oracle interface {
	ProtocolFee(ctx context.Context, amount *big.Int, validator common.Address) (*big.Int, error)
	SponsorshipFee(ctx context.Context, validator common.Address) (*big.Int, error)
	FeeRecipients(ctx context.Context, validator common.Address) (protocol, sponsorship common.Address, err error)
}

type Quoter struct {
	oracle Oracle
}

func NewQuoter(o Oracle) *Quoter { return &Quoter{oracle: o} }

// Quote prices a single installment. The same quote is reused for every
// installment of a batch.
func (q *Quoter) Quote(ctx context.Context, amount *big.Int, validator common.Address) (Quote, error) {
	if amount == nil || amount.Sign() <= 0 {
		return Quote{}, apperr.New(apperr.InvalidInput, "fee quote", "amount must be positive")
	}
	pf, err := q.oracle.ProtocolFee(ctx, amount, validator)
	if err != nil {
		return Quote{}, apperr.Upstream("protocol fee", err)
	}
	if err := checkFee("protocol fee", pf); err != nil {
		return Quote{}, err
	}
	sf, err := q.oracle.SponsorshipFee(ctx, validator)
	if err != nil {
		return Quote{}, apperr.Upstream("sponsorship fee", err)
	}
	if err := checkFee("sponsorship fee", sf); err != nil {
		return Quote{}, err
	}
	pr, sr, err := q.oracle.FeeRecipients(ctx, validator)
	if err != nil {
		return Quote{}, apperr.Upstream("fee recipients", err)
	}
	return Quote{
		ProtocolFee:          new(big.Int).Set(pf),
		SponsorshipFee:       new(big.Int).Set(sf),
		ProtocolRecipient:    pr,
		SponsorshipRecipient: sr,
	}, nil
}

func checkFee(step string, v *big.Int) error {
	if v == nil {
		return apperr.New(apperr.MalformedResponse, step, "missing value")
	}
	if v.Sign() < 0 {
		return apperr.Newf(apperr.MalformedResponse, step, "negative fee %s", v)
	}
	return nil
}
