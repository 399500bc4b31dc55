// Package units renders token amounts held in their smallest on-chain unit.
// All math is exact; float64 is never involved.
package units

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the scale used by the lottery's payment token.
const EtherDecimals int32 = 18

// FormatUnits renders raw at the given scale with trailing zeros trimmed
// ("1000000000000000000" at 18 → "1"). A nil raw renders as "".
func FormatUnits(raw *big.Int, decimals int32) string {
	if raw == nil {
		return ""
	}
	return decimal.NewFromBigInt(raw, -decimals).String()
}

// MulCount returns price*count without touching the inputs.
func MulCount(price *big.Int, count int) *big.Int {
	return new(big.Int).Mul(price, big.NewInt(int64(count)))
}
