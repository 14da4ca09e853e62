package fees

import (
	"math/big"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/holiman/uint256"
)

// RequiredAllowance is (unit + protocolFee + sponsorshipFee) * count. The
// result must still be representable as an on-chain uint256.
func RequiredAllowance(unit *big.Int, q Quote, count int) (*big.Int, error) {
	if unit == nil || unit.Sign() <= 0 {
		return nil, apperr.New(apperr.InvalidInput, "allowance", "unit amount must be positive")
	}
	if count < 1 {
		return nil, apperr.Newf(apperr.InvalidInput, "allowance", "installment count must be positive, got %d", count)
	}
	if err := checkFee("protocol fee", q.ProtocolFee); err != nil {
		return nil, err
	}
	if err := checkFee("sponsorship fee", q.SponsorshipFee); err != nil {
		return nil, err
	}
	total := q.PerInstallment(unit)
	total.Mul(total, big.NewInt(int64(count)))
	if _, overflow := uint256.FromBig(total); overflow {
		return nil, apperr.Newf(apperr.InvalidInput, "allowance", "required allowance %s exceeds uint256", total)
	}
	return total, nil
}

// CheckAllowance fails with InsufficientAllowance when granted < required.
func CheckAllowance(granted, required *big.Int) error {
	if granted == nil {
		granted = new(big.Int)
	}
	if granted.Cmp(required) < 0 {
		return apperr.Newf(apperr.InsufficientAllowance, "allowance", "granted %s, required %s", granted, required)
	}
	return nil
}
