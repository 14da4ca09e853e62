package checkout

import (
	"math/big"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a token price to its smallest unit. Prices with more
// fractional digits than the token supports are rejected rather than rounded.
func ToBaseUnits(price decimal.Decimal, decimals int32) (*big.Int, error) {
	if decimals < 0 {
		return nil, apperr.Newf(apperr.InvalidInput, "price", "negative token decimals %d", decimals)
	}
	if price.Sign() <= 0 {
		return nil, apperr.Newf(apperr.InvalidInput, "price", "price must be positive, got %s", price)
	}
	shifted := price.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, apperr.Newf(apperr.InvalidInput, "price", "price %s exceeds %d decimals", price, decimals)
	}
	return shifted.BigInt(), nil
}
