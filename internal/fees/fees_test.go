package fees

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/ethereum/go-ethereum/common"
)

type stubOracle struct {
	protocol, sponsorship *big.Int
	pr, sr                common.Address
	protocolErr           error
	sponsorshipErr        error
	recipientsErr         error
	seenValidator         []common.Address
}

func (s *stubOracle) ProtocolFee(ctx context.Context, amount *big.Int, v common.Address) (*big.Int, error) {
	s.seenValidator = append(s.seenValidator, v)
	return s.protocol, s.protocolErr
}

func (s *stubOracle) SponsorshipFee(ctx context.Context, v common.Address) (*big.Int, error) {
	s.seenValidator = append(s.seenValidator, v)
	return s.sponsorship, s.sponsorshipErr
}

func (s *stubOracle) FeeRecipients(ctx context.Context, v common.Address) (common.Address, common.Address, error) {
	s.seenValidator = append(s.seenValidator, v)
	return s.pr, s.sr, s.recipientsErr
}

func TestRequiredAllowance(t *testing.T) {
	q := Quote{ProtocolFee: big.NewInt(5), SponsorshipFee: big.NewInt(3)}
	got, err := RequiredAllowance(big.NewInt(100), q, 4)
	if err != nil {
		t.Fatalf("required allowance: %v", err)
	}
	if got.Cmp(big.NewInt(432)) != 0 {
		t.Fatalf("got %s want 432", got)
	}
}

func TestRequiredAllowanceBeyond64Bits(t *testing.T) {
	unit, _ := new(big.Int).SetString("340282366920938463463374607431768211456", 10) // 2^128
	q := Quote{ProtocolFee: big.NewInt(1), SponsorshipFee: big.NewInt(1)}
	got, err := RequiredAllowance(unit, q, 12)
	if err != nil {
		t.Fatalf("required allowance: %v", err)
	}
	want := new(big.Int).Add(unit, big.NewInt(2))
	want.Mul(want, big.NewInt(12))
	if got.Cmp(want) != 0 {
		t.Fatalf("got %s want %s", got, want)
	}
	if unit.Cmp(new(big.Int).Lsh(big.NewInt(1), 128)) != 0 {
		t.Fatalf("input mutated")
	}
}

func TestRequiredAllowanceUint256Bound(t *testing.T) {
	unit := new(big.Int).Lsh(big.NewInt(1), 255)
	q := Quote{ProtocolFee: big.NewInt(0), SponsorshipFee: big.NewInt(0)}
	if _, err := RequiredAllowance(unit, q, 2); !apperr.IsKind(err, apperr.InvalidInput) {
		t.Fatalf("expected InvalidInput on uint256 overflow, got %v", err)
	}
}

func TestRequiredAllowanceRejectsBadInput(t *testing.T) {
	q := Quote{ProtocolFee: big.NewInt(1), SponsorshipFee: big.NewInt(1)}
	if _, err := RequiredAllowance(big.NewInt(0), q, 1); !apperr.IsKind(err, apperr.InvalidInput) {
		t.Fatalf("zero unit: %v", err)
	}
	if _, err := RequiredAllowance(big.NewInt(1), q, 0); !apperr.IsKind(err, apperr.InvalidInput) {
		t.Fatalf("zero count: %v", err)
	}
	if _, err := RequiredAllowance(big.NewInt(1), Quote{SponsorshipFee: big.NewInt(1)}, 1); !apperr.IsKind(err, apperr.MalformedResponse) {
		t.Fatalf("missing fee: %v", err)
	}
}

func TestCheckAllowance(t *testing.T) {
	if err := CheckAllowance(big.NewInt(432), big.NewInt(432)); err != nil {
		t.Fatalf("exact allowance should pass: %v", err)
	}
	if err := CheckAllowance(big.NewInt(431), big.NewInt(432)); !apperr.IsKind(err, apperr.InsufficientAllowance) {
		t.Fatalf("expected InsufficientAllowance, got %v", err)
	}
	if err := CheckAllowance(nil, big.NewInt(1)); !apperr.IsKind(err, apperr.InsufficientAllowance) {
		t.Fatalf("nil granted: %v", err)
	}
}

func TestQuoterCombinesOracleCalls(t *testing.T) {
	validator := common.HexToAddress("0xa0")
	o := &stubOracle{
		protocol:    big.NewInt(5),
		sponsorship: big.NewInt(3),
		pr:          common.HexToAddress("0xf1"),
		sr:          common.HexToAddress("0xf2"),
	}
	q, err := NewQuoter(o).Quote(context.Background(), big.NewInt(100), validator)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.ProtocolFee.Int64() != 5 || q.SponsorshipFee.Int64() != 3 {
		t.Fatalf("unexpected fees %+v", q)
	}
	if q.ProtocolRecipient != o.pr || q.SponsorshipRecipient != o.sr {
		t.Fatalf("unexpected recipients %+v", q)
	}
	for _, v := range o.seenValidator {
		if v != validator {
			t.Fatalf("oracle called with %s", v.Hex())
		}
	}
	if got := q.PerInstallment(big.NewInt(100)); got.Int64() != 108 {
		t.Fatalf("per installment %s", got)
	}
}

func TestQuoterFailsWhole(t *testing.T) {
	base := stubOracle{protocol: big.NewInt(1), sponsorship: big.NewInt(1)}
	cases := []struct {
		name   string
		mutate func(o *stubOracle)
		want   apperr.Kind
	}{
		{"protocol", func(o *stubOracle) { o.protocolErr = errors.New("revert") }, apperr.UpstreamFailure},
		{"sponsorship", func(o *stubOracle) { o.sponsorshipErr = context.DeadlineExceeded }, apperr.UpstreamTimeout},
		{"recipients", func(o *stubOracle) { o.recipientsErr = errors.New("revert") }, apperr.UpstreamFailure},
		{"negative", func(o *stubOracle) { o.protocol = big.NewInt(-1) }, apperr.MalformedResponse},
		{"nil", func(o *stubOracle) { o.sponsorship = nil }, apperr.MalformedResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := base
			tc.mutate(&o)
			q, err := NewQuoter(&o).Quote(context.Background(), big.NewInt(10), common.Address{})
			if !apperr.IsKind(err, tc.want) {
				t.Fatalf("expected %s, got %v", tc.want, err)
			}
			if q.ProtocolFee != nil || q.SponsorshipFee != nil {
				t.Fatalf("partial quote returned: %+v", q)
			}
		})
	}
}
