package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"

	"github.com/0xPexy/sentra-checkout/internal/batch"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	ErrAlreadyDeployed = errors.New("account already deployed")
	ErrNoRelayer       = errors.New("no relayer key configured")
)

type AccountConfig struct {
	ChainID    *big.Int
	EntryPoint common.Address
	Factory    common.Address
	Salt       *big.Int
	// RelayerKey signs deployment transactions. Optional; Deploy fails
	// without it.
	RelayerKey *ecdsa.PrivateKey
}

// Accounts resolves smart accounts owned by payer EOAs.
type Accounts struct {
	client Transactor
	cfg    AccountConfig
	logger *log.Logger
}

func NewAccounts(client Transactor, cfg AccountConfig, logger *log.Logger) *Accounts {
	if cfg.Salt == nil {
		cfg.Salt = new(big.Int)
	}
	return &Accounts{client: client, cfg: cfg, logger: logger}
}

// For returns the counterfactual smart account of owner.
func (a *Accounts) For(ctx context.Context, owner common.Address) (*SmartAccount, error) {
	values, err := call(ctx, a.client, accountFactoryABI, a.cfg.Factory, "getAddress", owner, a.cfg.Salt)
	if err != nil {
		return nil, err
	}
	addr, err := addressResult("getAddress", values, 0)
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("factory returned zero address for owner %s", owner.Hex())
	}
	return &SmartAccount{accounts: a, owner: owner, address: addr}, nil
}

// NonceKey is the uint192 EntryPoint nonce key of a validator: the validator
// address in the low 160 bits.
func NonceKey(validator common.Address) *big.Int {
	return new(uint256.Int).SetBytes20(validator.Bytes()).ToBig()
}

// SmartAccount is one payer's account. It satisfies batch.AccountService for
// its own address only.
type SmartAccount struct {
	accounts *Accounts
	owner    common.Address
	address  common.Address
}

func (s *SmartAccount) Address() common.Address { return s.address }
func (s *SmartAccount) Owner() common.Address   { return s.owner }

func (s *SmartAccount) check(account common.Address) error {
	if account != s.address {
		return fmt.Errorf("account %s is not %s", account.Hex(), s.address.Hex())
	}
	return nil
}

func (s *SmartAccount) IsDeployed(ctx context.Context, account common.Address) (bool, error) {
	if err := s.check(account); err != nil {
		return false, err
	}
	code, err := s.accounts.client.CodeAt(ctx, account, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

func (s *SmartAccount) FactoryArgs(ctx context.Context, account common.Address) (*batch.FactoryArgs, error) {
	if err := s.check(account); err != nil {
		return nil, err
	}
	data, err := accountFactoryABI.Pack("createAccount", s.owner, s.accounts.cfg.Salt)
	if err != nil {
		return nil, err
	}
	return &batch.FactoryArgs{Factory: s.accounts.cfg.Factory, FactoryData: data}, nil
}

func (s *SmartAccount) ValidatorNonce(ctx context.Context, account, validator common.Address) (*big.Int, error) {
	if err := s.check(account); err != nil {
		return nil, err
	}
	values, err := call(ctx, s.accounts.client, entryPointABI, s.accounts.cfg.EntryPoint, "getNonce", account, NonceKey(validator))
	if err != nil {
		return nil, err
	}
	return bigResult("getNonce", values)
}

// Deploy sends the factory createAccount transaction from the relayer key.
func (s *SmartAccount) Deploy(ctx context.Context) (common.Hash, error) {
	key := s.accounts.cfg.RelayerKey
	if key == nil {
		return common.Hash{}, ErrNoRelayer
	}
	deployed, err := s.IsDeployed(ctx, s.address)
	if err != nil {
		return common.Hash{}, err
	}
	if deployed {
		return common.Hash{}, ErrAlreadyDeployed
	}
	args, err := s.FactoryArgs(ctx, s.address)
	if err != nil {
		return common.Hash{}, err
	}
	client := s.accounts.client
	from := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("relayer nonce: %w", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}
	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &args.Factory, Data: args.FactoryData})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate deploy gas: %w", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &args.Factory,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     args.FactoryData,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.accounts.cfg.ChainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign deploy tx: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send deploy tx: %w", err)
	}
	s.accounts.logf("deployment sent: account=%s owner=%s tx=%s", s.address.Hex(), s.owner.Hex(), signed.Hash().Hex())
	return signed.Hash(), nil
}

func (a *Accounts) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}
