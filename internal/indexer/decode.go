package indexer

import (
	"context"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/0xPexy/sentra-checkout/internal/store"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type decoder struct {
	cfg    Config
	blocks *blockTimeCache
	logger *log.Logger
}

func newDecoder(cfg Config, client EthClient, logger *log.Logger) *decoder {
	return &decoder{
		cfg:    cfg,
		blocks: newBlockTimeCache(client),
		logger: logger,
	}
}

// decode turns a UserOperationEvent log into an execution record. Logs of
// other events or other paymasters yield nil.
func (d *decoder) decode(ctx context.Context, lg types.Log) *store.InstallmentExecution {
	if len(lg.Topics) < 4 || lg.Topics[0] != userOperationEvent.ID {
		return nil
	}
	if lg.Address != d.cfg.EntryPoint {
		return nil
	}
	if common.BytesToAddress(lg.Topics[3].Bytes()) != d.cfg.Paymaster {
		return nil
	}
	values, err := userOperationEvent.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		d.logf("failed to unpack UserOperationEvent: tx=%s err=%v", lg.TxHash.Hex(), err)
		return nil
	}
	if len(values) != 4 {
		d.logf("unexpected UserOperationEvent decode length: %d", len(values))
		return nil
	}
	nonce, _ := values[0].(*big.Int)
	success, _ := values[1].(bool)
	actualGasCost, _ := values[2].(*big.Int)
	actualGasUsed, _ := values[3].(*big.Int)
	if nonce == nil {
		return nil
	}

	var blockTime time.Time
	if ts, err := d.blocks.Time(ctx, lg.BlockNumber); err == nil {
		blockTime = ts
	} else {
		d.logf("failed block time for %d: %v", lg.BlockNumber, err)
	}

	return &store.InstallmentExecution{
		ChainID:       d.cfg.ChainID,
		UserOpHash:    lg.Topics[1].Hex(),
		Sender:        common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		Nonce:         nonce.String(),
		Success:       success,
		ActualGasCost: bigString(actualGasCost),
		ActualGasUsed: bigString(actualGasUsed),
		TxHash:        lg.TxHash.Hex(),
		BlockNumber:   lg.BlockNumber,
		LogIndex:      uint(lg.Index),
		BlockTime:     blockTime,
	}
}

func (d *decoder) logf(format string, args ...any) {
	if d.logger != nil {
		d.logger.Printf(format, args...)
	}
}

func bigString(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

func mustParseABI(jsonStr string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(jsonStr))
	if err != nil {
		panic(err)
	}
	return parsed
}

var (
	entryPointEventsABI = mustParseABI(`[
		{"anonymous":false,"inputs":[{"indexed":true,"internalType":"bytes32","name":"userOpHash","type":"bytes32"},{"indexed":true,"internalType":"address","name":"sender","type":"address"},{"indexed":true,"internalType":"address","name":"paymaster","type":"address"},{"indexed":false,"internalType":"uint256","name":"nonce","type":"uint256"},{"indexed":false,"internalType":"bool","name":"success","type":"bool"},{"indexed":false,"internalType":"uint256","name":"actualGasCost","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"actualGasUsed","type":"uint256"}],"name":"UserOperationEvent","type":"event"}
	]`)

	userOperationEvent = entryPointEventsABI.Events["UserOperationEvent"]
)
