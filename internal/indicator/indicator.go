// Package indicator provides technical indicator calculations over a price series.
//
// Every function here is pure: it reads a chronological []float64 (oldest first),
// never mutates it, and derives its result from the full series on each call.
// A value that cannot be formed because the series is too short is reported as a
// nil *float64 so it serializes to JSON null.
package indicator

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Round2 rounds v to two decimal places, half away from zero, judged on the
// exact binary value of v: 1.005 is stored as 1.00499999... and rounds to 1.
// Indicator outputs are rounded only at the result boundary; recursion state
// always keeps full precision.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := exactDecimal(v).Round(2).Float64()
	return f
}

// Fixed2 formats v with exactly two decimals using the same rounding as Round2.
func Fixed2(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NaN"
	}
	return exactDecimal(v).Round(2).StringFixed(2)
}

// exactDecimal converts v to a decimal holding its exact binary value.
// decimal.NewFromFloat would take the shortest round-trip form instead.
func exactDecimal(v float64) decimal.Decimal {
	r := new(big.Rat).SetFloat64(v)
	// The denominator of a finite float64 is 2^k, so num/2^k == num*5^k / 10^k.
	k := r.Denom().BitLen() - 1
	scale := new(big.Int).Exp(big.NewInt(5), big.NewInt(int64(k)), nil)
	return decimal.NewFromBigInt(new(big.Int).Mul(r.Num(), scale), int32(-k))
}

// rounded returns a pointer to v rounded to two decimals.
func rounded(v float64) *float64 {
	r := Round2(v)
	return &r
}

func last(series []float64) float64 { return series[len(series)-1] }
