// Package userop models an ERC-4337 v0.7 user operation in its unpacked
// JSON-RPC form.
package userop

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Gas defaults applied to every subscription installment.
var defaultGas = big.NewInt(2_000_000)

const (
	placeholderVerificationGas = 100_000
	placeholderPostOpGas       = 500_000
)

type Operation struct {
	Sender                        common.Address
	Nonce                         *big.Int
	Factory                       *common.Address
	FactoryData                   []byte
	CallData                      []byte
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	MaxFeePerGas                  *big.Int
	MaxPriorityFeePerGas          *big.Int
	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
	Signature                     []byte
}

// Default returns an operation with zero sender and nonce and the default gas
// limits and fees.
func Default() *Operation {
	return &Operation{
		Nonce:                new(big.Int),
		CallGasLimit:         new(big.Int).Set(defaultGas),
		VerificationGasLimit: new(big.Int).Set(defaultGas),
		PreVerificationGas:   new(big.Int).Set(defaultGas),
		MaxFeePerGas:         new(big.Int).Set(defaultGas),
		MaxPriorityFeePerGas: new(big.Int).Set(defaultGas),
		CallData:             []byte{},
		Signature:            []byte{},
	}
}

// HasDeployment reports whether the operation carries account deployment data.
func (op *Operation) HasDeployment() bool {
	return op.Factory != nil && len(op.FactoryData) > 0
}

// InitCode is factory ++ factoryData, the packed v0.6 form.
func (op *Operation) InitCode() []byte {
	if !op.HasDeployment() {
		return nil
	}
	out := make([]byte, 0, common.AddressLength+len(op.FactoryData))
	out = append(out, op.Factory.Bytes()...)
	return append(out, op.FactoryData...)
}

func (op *Operation) Clone() *Operation {
	cp := *op
	cp.Nonce = cloneBig(op.Nonce)
	cp.CallGasLimit = cloneBig(op.CallGasLimit)
	cp.VerificationGasLimit = cloneBig(op.VerificationGasLimit)
	cp.PreVerificationGas = cloneBig(op.PreVerificationGas)
	cp.MaxFeePerGas = cloneBig(op.MaxFeePerGas)
	cp.MaxPriorityFeePerGas = cloneBig(op.MaxPriorityFeePerGas)
	cp.PaymasterVerificationGasLimit = cloneBig(op.PaymasterVerificationGasLimit)
	cp.PaymasterPostOpGasLimit = cloneBig(op.PaymasterPostOpGasLimit)
	cp.Factory = cloneAddr(op.Factory)
	cp.Paymaster = cloneAddr(op.Paymaster)
	cp.FactoryData = common.CopyBytes(op.FactoryData)
	cp.CallData = common.CopyBytes(op.CallData)
	cp.PaymasterData = common.CopyBytes(op.PaymasterData)
	cp.Signature = common.CopyBytes(op.Signature)
	return &cp
}

// PlaceholderPaymasterData is encodePacked(address, uint128, uint128) with the
// paymaster address and placeholder gas limits. The signer replaces it.
func PlaceholderPaymasterData(paymaster common.Address) []byte {
	out := make([]byte, 0, common.AddressLength+32)
	out = append(out, paymaster.Bytes()...)
	out = append(out, common.LeftPadBytes(big.NewInt(placeholderVerificationGas).Bytes(), 16)...)
	return append(out, common.LeftPadBytes(big.NewInt(placeholderPostOpGas).Bytes(), 16)...)
}

type wireOperation struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *hexutil.Big    `json:"nonce"`
	Factory                       *common.Address `json:"factory,omitempty"`
	FactoryData                   hexutil.Bytes   `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes   `json:"callData"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes   `json:"signature"`
}

func (op Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireOperation{
		Sender:                        op.Sender,
		Nonce:                         hexBig(op.Nonce),
		Factory:                       op.Factory,
		FactoryData:                   op.FactoryData,
		CallData:                      nonNil(op.CallData),
		CallGasLimit:                  hexBig(op.CallGasLimit),
		VerificationGasLimit:          hexBig(op.VerificationGasLimit),
		PreVerificationGas:            hexBig(op.PreVerificationGas),
		MaxFeePerGas:                  hexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas:          hexBig(op.MaxPriorityFeePerGas),
		Paymaster:                     op.Paymaster,
		PaymasterVerificationGasLimit: hexBig(op.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       hexBig(op.PaymasterPostOpGasLimit),
		PaymasterData:                 op.PaymasterData,
		Signature:                     nonNil(op.Signature),
	})
}

func (op *Operation) UnmarshalJSON(data []byte) error {
	var w wireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Nonce == nil {
		return fmt.Errorf("user operation: missing nonce")
	}
	*op = Operation{
		Sender:                        w.Sender,
		Nonce:                         w.Nonce.ToInt(),
		Factory:                       w.Factory,
		FactoryData:                   w.FactoryData,
		CallData:                      w.CallData,
		CallGasLimit:                  toBig(w.CallGasLimit),
		VerificationGasLimit:          toBig(w.VerificationGasLimit),
		PreVerificationGas:            toBig(w.PreVerificationGas),
		MaxFeePerGas:                  toBig(w.MaxFeePerGas),
		MaxPriorityFeePerGas:          toBig(w.MaxPriorityFeePerGas),
		Paymaster:                     w.Paymaster,
		PaymasterVerificationGasLimit: toBig(w.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       toBig(w.PaymasterPostOpGasLimit),
		PaymasterData:                 w.PaymasterData,
		Signature:                     w.Signature,
	}
	return nil
}

func hexBig(x *big.Int) *hexutil.Big {
	if x == nil {
		return nil
	}
	return (*hexutil.Big)(x)
}

func toBig(x *hexutil.Big) *big.Int {
	if x == nil {
		return nil
	}
	return x.ToInt()
}

func nonNil(b []byte) hexutil.Bytes {
	if b == nil {
		return hexutil.Bytes{}
	}
	return b
}

func cloneBig(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}

func cloneAddr(a *common.Address) *common.Address {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}
