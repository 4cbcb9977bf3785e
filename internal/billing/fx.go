package billing

import (
	"math/big"

	"pulsepay/internal/common"
)

// Fiat fees carry 8 decimal places, native amounts 18 (wei). Conversions go
// through big.Int because the intermediate product overflows uint64.
const (
	FiatDecimals   = 8
	NativeDecimals = 18
)

var (
	nativeUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(NativeDecimals), nil)
	maxUint64  = new(big.Int).SetUint64(^uint64(0))
)

// ToNative converts a fiat fee (8-decimal fixed point) into native units
// (wei) at the given rate (fiat units per whole native token, 8 decimals).
// Truncates toward zero, which favors the payee.
func ToNative(amountFiat, rate uint64) (uint64, error) {
	if rate == 0 {
		return 0, common.ErrInvalidRate
	}
	n := new(big.Int).SetUint64(amountFiat)
	n.Mul(n, nativeUnit)
	n.Quo(n, new(big.Int).SetUint64(rate))
	if n.Cmp(maxUint64) > 0 {
		return 0, common.ErrInvalidAmount
	}
	return n.Uint64(), nil
}

// ToFiat converts a native amount (wei) back into 8-decimal fiat units.
// Truncates toward zero, which favors the payer.
func ToFiat(amountNative, rate uint64) (uint64, error) {
	if rate == 0 {
		return 0, common.ErrInvalidRate
	}
	n := new(big.Int).SetUint64(amountNative)
	n.Mul(n, new(big.Int).SetUint64(rate))
	n.Quo(n, nativeUnit)
	if n.Cmp(maxUint64) > 0 {
		return 0, common.ErrInvalidAmount
	}
	return n.Uint64(), nil
}
