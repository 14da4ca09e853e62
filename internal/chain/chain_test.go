package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/0xPexy/sentra-checkout/internal/batch"
	"github.com/0xPexy/sentra-checkout/internal/fees"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

type stubBackend struct {
	// keyed by method name; values packed as outputs
	results map[string][]any
	callErr error
	code    map[common.Address][]byte
	calls   []ethereum.CallMsg
	args    map[string][]any
	sent    []*types.Transaction
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		results: map[string][]any{},
		code:    map[common.Address][]byte{},
		args:    map[string][]any{},
	}
}

var knownABIs = []abi.ABI{feeCalculatorABI, entryPointABI, accountFactoryABI, erc20ABI}

func (s *stubBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	s.calls = append(s.calls, msg)
	if s.callErr != nil {
		return nil, s.callErr
	}
	for _, parsed := range knownABIs {
		method, err := parsed.MethodById(msg.Data)
		if err != nil {
			continue
		}
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		s.args[method.Name] = args
		out, ok := s.results[method.Name]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		return method.Outputs.Pack(out...)
	}
	return nil, errors.New("unknown selector")
}

func (s *stubBackend) CodeAt(ctx context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	return s.code[account], nil
}

func (s *stubBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 3, nil
}

func (s *stubBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(30_000_000_000), nil
}

func (s *stubBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 250_000, nil
}

func (s *stubBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	s.sent = append(s.sent, tx)
	return nil
}

var (
	calculator = common.HexToAddress("0x0000000000000000000000000000000000000fee")
	entryPoint = common.HexToAddress("0x0000000071727de22e5e9d8baf0edac6f37da032")
	factory    = common.HexToAddress("0x00000000000000000000000000000000000fac70")
	validator  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	owner      = common.HexToAddress("0x0000000000000000000000000000000000000e0a")
	smart      = common.HexToAddress("0x0000000000000000000000000000000000005a5a")
	token      = common.HexToAddress("0x0000000000000000000000000000000000000c0c")
)

func TestFeeOracle(t *testing.T) {
	b := newStubBackend()
	b.results["calculateFees"] = []any{big.NewInt(5)}
	b.results["getPaymasterFees"] = []any{big.NewInt(3)}
	b.results["getFeesRecipients"] = []any{common.HexToAddress("0xf1"), common.HexToAddress("0xf2")}

	q, err := fees.NewQuoter(NewFeeOracle(b, calculator)).Quote(context.Background(), big.NewInt(100), validator)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.ProtocolFee.Int64() != 5 || q.SponsorshipFee.Int64() != 3 {
		t.Fatalf("unexpected fees %+v", q)
	}
	if q.ProtocolRecipient != common.HexToAddress("0xf1") || q.SponsorshipRecipient != common.HexToAddress("0xf2") {
		t.Fatalf("unexpected recipients %+v", q)
	}
	if got := b.args["calculateFees"]; got[1].(common.Address) != validator || got[0].(*big.Int).Int64() != 100 {
		t.Fatalf("calculateFees args %v", got)
	}
	for _, msg := range b.calls {
		if *msg.To != calculator {
			t.Fatalf("called %s, want calculator", msg.To.Hex())
		}
	}
}

func TestFeeOracleRevert(t *testing.T) {
	b := newStubBackend()
	if _, err := NewFeeOracle(b, calculator).SponsorshipFee(context.Background(), validator); err == nil {
		t.Fatalf("expected revert error")
	}
}

func TestTokenAllowance(t *testing.T) {
	b := newStubBackend()
	b.results["allowance"] = []any{big.NewInt(432)}
	got, err := NewTokenReader(b).Allowance(context.Background(), token, owner, smart)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if got.Int64() != 432 {
		t.Fatalf("allowance=%s", got)
	}
	args := b.args["allowance"]
	if args[0].(common.Address) != owner || args[1].(common.Address) != smart {
		t.Fatalf("allowance args %v", args)
	}
}

func TestApproveCallData(t *testing.T) {
	data, err := ApproveCallData(smart, big.NewInt(432))
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !bytes.Equal(data[:4], erc20ABI.Methods["approve"].ID) {
		t.Fatalf("wrong selector %x", data[:4])
	}
	args, err := erc20ABI.Methods["approve"].Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if args[0].(common.Address) != smart || args[1].(*big.Int).Int64() != 432 {
		t.Fatalf("approve args %v", args)
	}
}

func TestNonceKey(t *testing.T) {
	key := NonceKey(validator)
	if key.Cmp(new(big.Int).SetBytes(validator.Bytes())) != 0 {
		t.Fatalf("nonce key %s", key)
	}
	if key.BitLen() > 192 {
		t.Fatalf("nonce key exceeds uint192")
	}
}

func TestSmartAccount(t *testing.T) {
	b := newStubBackend()
	b.results["getAddress"] = []any{smart}
	b.results["getNonce"] = []any{big.NewInt(42)}
	accounts := NewAccounts(b, AccountConfig{ChainID: big.NewInt(137), EntryPoint: entryPoint, Factory: factory, Salt: big.NewInt(7)}, nil)

	acct, err := accounts.For(context.Background(), owner)
	if err != nil {
		t.Fatalf("for: %v", err)
	}
	if acct.Address() != smart || acct.Owner() != owner {
		t.Fatalf("unexpected account %s/%s", acct.Address().Hex(), acct.Owner().Hex())
	}

	deployed, err := acct.IsDeployed(context.Background(), smart)
	if err != nil || deployed {
		t.Fatalf("expected undeployed: %v %v", deployed, err)
	}
	b.code[smart] = []byte{0x60, 0x80}
	if deployed, _ := acct.IsDeployed(context.Background(), smart); !deployed {
		t.Fatalf("expected deployed once code exists")
	}

	args, err := acct.FactoryArgs(context.Background(), smart)
	if err != nil {
		t.Fatalf("factory args: %v", err)
	}
	if args.Factory != factory {
		t.Fatalf("factory %s", args.Factory.Hex())
	}
	decoded, err := accountFactoryABI.Methods["createAccount"].Inputs.Unpack(args.FactoryData[4:])
	if err != nil {
		t.Fatalf("unpack createAccount: %v", err)
	}
	if decoded[0].(common.Address) != owner || decoded[1].(*big.Int).Int64() != 7 {
		t.Fatalf("createAccount args %v", decoded)
	}

	nonce, err := acct.ValidatorNonce(context.Background(), smart, validator)
	if err != nil || nonce.Int64() != 42 {
		t.Fatalf("nonce %v %v", nonce, err)
	}
	if key := b.args["getNonce"][1].(*big.Int); key.Cmp(NonceKey(validator)) != 0 {
		t.Fatalf("getNonce key %s", key)
	}

	if _, err := acct.ValidatorNonce(context.Background(), owner, validator); err == nil {
		t.Fatalf("expected foreign account to be rejected")
	}
}

func TestSmartAccountDeploy(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	b := newStubBackend()
	b.results["getAddress"] = []any{smart}
	chainID := big.NewInt(137)
	accounts := NewAccounts(b, AccountConfig{ChainID: chainID, EntryPoint: entryPoint, Factory: factory, RelayerKey: key}, nil)
	acct, err := accounts.For(context.Background(), owner)
	if err != nil {
		t.Fatalf("for: %v", err)
	}
	hash, err := acct.Deploy(context.Background())
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if len(b.sent) != 1 || b.sent[0].Hash() != hash {
		t.Fatalf("expected one sent tx matching hash")
	}
	tx := b.sent[0]
	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if from != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("tx signed by %s", from.Hex())
	}
	if *tx.To() != factory || tx.Nonce() != 3 || tx.Gas() != 250_000 {
		t.Fatalf("unexpected tx to=%s nonce=%d gas=%d", tx.To().Hex(), tx.Nonce(), tx.Gas())
	}

	b.code[smart] = []byte{0x01}
	if _, err := acct.Deploy(context.Background()); !errors.Is(err, ErrAlreadyDeployed) {
		t.Fatalf("expected ErrAlreadyDeployed, got %v", err)
	}
}

func TestTransferCallDataRoundTrip(t *testing.T) {
	b := newStubBackend()
	b.results["calculateFees"] = []any{big.NewInt(5)}
	b.results["getPaymasterFees"] = []any{big.NewInt(3)}
	b.results["getFeesRecipients"] = []any{common.HexToAddress("0xf1"), common.HexToAddress("0xf2")}
	unit, _ := new(big.Int).SetString("123456789012345678901234567890", 10)

	q, err := fees.NewQuoter(NewFeeOracle(b, calculator)).Quote(context.Background(), unit, validator)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	required, err := fees.RequiredAllowance(unit, q, 4)
	if err != nil {
		t.Fatalf("required allowance: %v", err)
	}
	in := batch.Transfer{From: owner, To: common.HexToAddress("0x0d"), Token: token, Amount: unit, Quote: q, Validator: validator}
	data, err := TransferEncoder{}.TransferCallData(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeTransfer(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Amount.Cmp(unit) != 0 || out.Quote.ProtocolFee.Cmp(q.ProtocolFee) != 0 || out.Quote.SponsorshipFee.Cmp(q.SponsorshipFee) != 0 {
		t.Fatalf("amounts changed: %+v", out)
	}
	if out.From != owner || out.Token != token || out.Quote.ProtocolRecipient != q.ProtocolRecipient || out.Quote.SponsorshipRecipient != q.SponsorshipRecipient {
		t.Fatalf("addresses changed: %+v", out)
	}
	perInstallment := out.Quote.PerInstallment(out.Amount)
	if new(big.Int).Mul(perInstallment, big.NewInt(4)).Cmp(required) != 0 {
		t.Fatalf("calldata amounts do not reconstruct required allowance %s", required)
	}
}
