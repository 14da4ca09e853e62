package batch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/0xPexy/sentra-checkout/internal/fees"
	"github.com/0xPexy/sentra-checkout/internal/userop"
	"github.com/ethereum/go-ethereum/common"
)

var (
	account   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	validator = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	paymaster = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	signerPM  = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	factory   = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

type stubAccounts struct {
	deployed    bool
	factoryArgs *FactoryArgs
	nonce       *big.Int
	deployedErr error
	nonceErr    error
}

func (s *stubAccounts) IsDeployed(ctx context.Context, a common.Address) (bool, error) {
	return s.deployed, s.deployedErr
}

func (s *stubAccounts) FactoryArgs(ctx context.Context, a common.Address) (*FactoryArgs, error) {
	return s.factoryArgs, nil
}

func (s *stubAccounts) ValidatorNonce(ctx context.Context, a, v common.Address) (*big.Int, error) {
	return s.nonce, s.nonceErr
}

type stubEncoder struct {
	calls int32
}

func (s *stubEncoder) TransferCallData(t Transfer) ([]byte, error) {
	atomic.AddInt32(&s.calls, 1)
	return []byte{0xde, 0xad, 0xbe, 0xef}, nil
}

type stubSigner struct {
	mu     sync.Mutex
	calls  int
	failAt int64 // nonce that fails, -1 for none
	delay  time.Duration
	err    error
}

func (s *stubSigner) Sign(ctx context.Context, op *userop.Operation) (*userop.Operation, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if s.failAt >= 0 && op.Nonce.Int64() == s.failAt {
		if s.err != nil {
			return nil, s.err
		}
		return nil, errors.New("paymaster rejected operation")
	}
	out := op.Clone()
	pm := signerPM
	out.Paymaster = &pm
	out.PaymasterData = append(signerPM.Bytes(), bytes.Repeat([]byte{0xcd}, 65)...)
	return out, nil
}

func testTransfer() Transfer {
	return Transfer{
		From:      common.HexToAddress("0x01"),
		To:        common.HexToAddress("0x02"),
		Token:     common.HexToAddress("0x03"),
		Amount:    big.NewInt(100),
		Validator: validator,
		Quote: fees.Quote{
			ProtocolFee:    big.NewInt(5),
			SponsorshipFee: big.NewInt(3),
		},
	}
}

func newTestBuilder(accounts AccountService, signer Signer, concurrency int) (*Builder, *stubEncoder) {
	enc := &stubEncoder{}
	cfg := Config{Paymaster: paymaster, SignConcurrency: concurrency}
	return NewBuilder(cfg, accounts, enc, signer, log.New(io.Discard, "", 0)), enc
}

func schedule(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(1_700_000_000_000 + i*86_400_000)
	}
	return out
}

func TestBuildUndeployedAccount(t *testing.T) {
	accounts := &stubAccounts{
		factoryArgs: &FactoryArgs{Factory: factory, FactoryData: []byte{0x01, 0x02}},
		nonce:       big.NewInt(7),
	}
	for _, concurrency := range []int{1, 4} {
		signer := &stubSigner{failAt: -1}
		b, enc := newTestBuilder(accounts, signer, concurrency)
		out, err := b.Build(context.Background(), Request{Account: account, Transfer: testTransfer(), Schedule: schedule(5)})
		if err != nil {
			t.Fatalf("build (concurrency=%d): %v", concurrency, err)
		}
		if len(out.Operations) != 5 {
			t.Fatalf("operations=%d want 5", len(out.Operations))
		}
		if enc.calls != 1 {
			t.Fatalf("calldata encoded %d times, want once", enc.calls)
		}
		for i, op := range out.Operations {
			if op.Nonce.Int64() != int64(7+i) {
				t.Fatalf("op %d nonce=%s", i, op.Nonce)
			}
			if (i == 0) != op.HasDeployment() {
				t.Fatalf("op %d deployment=%t", i, op.HasDeployment())
			}
			if *op.Paymaster != paymaster {
				t.Fatalf("op %d paymaster=%s want canonical %s", i, op.Paymaster.Hex(), paymaster.Hex())
			}
			if !bytes.Equal(op.CallData, out.Operations[0].CallData) {
				t.Fatalf("op %d calldata differs", i)
			}
			if len(op.PaymasterData) != 85 {
				t.Fatalf("op %d missing sponsorship data", i)
			}
		}
		if *out.Operations[0].Factory != factory {
			t.Fatalf("factory mismatch")
		}
	}
}

func TestBuildDeployedAccountHasNoDeploymentPayload(t *testing.T) {
	accounts := &stubAccounts{deployed: true, nonce: big.NewInt(0)}
	b, _ := newTestBuilder(accounts, &stubSigner{failAt: -1}, 2)
	out, err := b.Build(context.Background(), Request{Account: account, Transfer: testTransfer(), Schedule: schedule(3)})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for i, op := range out.Operations {
		if op.HasDeployment() {
			t.Fatalf("op %d carries deployment payload", i)
		}
		if op.Nonce.Int64() != int64(i) {
			t.Fatalf("op %d nonce=%s", i, op.Nonce)
		}
	}
}

func TestBuildIsAtomicOnSigningFailure(t *testing.T) {
	accounts := &stubAccounts{deployed: true, nonce: big.NewInt(10)}
	for _, concurrency := range []int{1, 3} {
		signer := &stubSigner{failAt: 12}
		b, _ := newTestBuilder(accounts, signer, concurrency)
		out, err := b.Build(context.Background(), Request{Account: account, Transfer: testTransfer(), Schedule: schedule(5)})
		if out != nil {
			t.Fatalf("partial batch returned: %d ops", len(out.Operations))
		}
		if !apperr.IsKind(err, apperr.SigningFailure) {
			t.Fatalf("expected SigningFailure, got %v", err)
		}
	}
}

func TestBuildSigningTimeout(t *testing.T) {
	accounts := &stubAccounts{deployed: true, nonce: big.NewInt(0)}
	signer := &stubSigner{failAt: 1, err: context.DeadlineExceeded}
	b, _ := newTestBuilder(accounts, signer, 1)
	_, err := b.Build(context.Background(), Request{Account: account, Transfer: testTransfer(), Schedule: schedule(3)})
	if !apperr.IsKind(err, apperr.UpstreamTimeout) {
		t.Fatalf("expected UpstreamTimeout, got %v", err)
	}
}

func TestBuildCancelledDiscardsBatch(t *testing.T) {
	accounts := &stubAccounts{deployed: true, nonce: big.NewInt(0)}
	signer := &stubSigner{failAt: -1, delay: 50 * time.Millisecond}
	b, _ := newTestBuilder(accounts, signer, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	out, err := b.Build(ctx, Request{Account: account, Transfer: testTransfer(), Schedule: schedule(10)})
	if out != nil || err == nil {
		t.Fatalf("expected cancellation error and no batch, got %v %v", out, err)
	}
}

func TestBuildAccountUnavailable(t *testing.T) {
	cases := []struct {
		name     string
		accounts *stubAccounts
		want     apperr.Kind
	}{
		{"nil nonce", &stubAccounts{deployed: true}, apperr.AccountUnavailable},
		{"undeployed without factory args", &stubAccounts{nonce: big.NewInt(1)}, apperr.AccountUnavailable},
		{"nonce read fails", &stubAccounts{deployed: true, nonceErr: errors.New("rpc down")}, apperr.UpstreamFailure},
		{"deployment read times out", &stubAccounts{deployedErr: context.DeadlineExceeded}, apperr.UpstreamTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			signer := &stubSigner{failAt: -1}
			b, _ := newTestBuilder(tc.accounts, signer, 1)
			_, err := b.Build(context.Background(), Request{Account: account, Transfer: testTransfer(), Schedule: schedule(2)})
			if !apperr.IsKind(err, tc.want) {
				t.Fatalf("expected %s, got %v", tc.want, err)
			}
			if signer.calls != 0 {
				t.Fatalf("signer called %d times before account resolved", signer.calls)
			}
		})
	}
}

type tamperingSigner struct{}

func (tamperingSigner) Sign(ctx context.Context, op *userop.Operation) (*userop.Operation, error) {
	out := op.Clone()
	out.Nonce = new(big.Int).Add(out.Nonce, big.NewInt(1))
	out.PaymasterData = []byte{1}
	return out, nil
}

func TestBuildRejectsTamperedSponsorship(t *testing.T) {
	accounts := &stubAccounts{deployed: true, nonce: big.NewInt(0)}
	b, _ := newTestBuilder(accounts, tamperingSigner{}, 1)
	_, err := b.Build(context.Background(), Request{Account: account, Transfer: testTransfer(), Schedule: schedule(2)})
	if !apperr.IsKind(err, apperr.SigningFailure) {
		t.Fatalf("expected SigningFailure, got %v", err)
	}
}

func TestBuildRejectsEmptySchedule(t *testing.T) {
	b, _ := newTestBuilder(&stubAccounts{deployed: true, nonce: big.NewInt(0)}, &stubSigner{failAt: -1}, 1)
	if _, err := b.Build(context.Background(), Request{Account: account, Transfer: testTransfer()}); !apperr.IsKind(err, apperr.InvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestValidateDetectsBrokenInvariants(t *testing.T) {
	mk := func(nonce int64) *userop.Operation {
		op := userop.Default()
		op.Sender = account
		op.Nonce = big.NewInt(nonce)
		return op
	}
	b := &SignedBatch{Sender: account, BaseNonce: big.NewInt(3), Deployed: true, Schedule: schedule(2), Operations: []*userop.Operation{mk(3), mk(5)}}
	if err := b.Validate(); err == nil {
		t.Fatalf("expected gap in nonces to fail")
	}
	b.Operations[1] = mk(4)
	if err := b.Validate(); err != nil {
		t.Fatalf("valid batch rejected: %v", err)
	}
	b.Deployed = false
	if err := b.Validate(); err == nil {
		t.Fatalf("undeployed batch without deployment payload must fail")
	}
	b.Schedule = schedule(3)
	if err := b.Validate(); err == nil {
		t.Fatalf("length mismatch must fail")
	}
}
