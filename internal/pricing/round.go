package pricing

import (
	"math/big"
	"strconv"
	"strings"
)

// decimal reads a float through its shortest decimal form, so 1.005 is 1005/1000
// and not the binary value just below it.
func decimal(v float64) *big.Rat {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(v, 'f', -1, 64))
	if !ok {
		return new(big.Rat).SetFloat64(v)
	}
	return r
}

// roundRat rounds r to places decimals, halves away from zero.
func roundRat(r *big.Rat, places int) *big.Rat {
	neg := r.Sign() < 0
	x := new(big.Rat).Abs(r)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil)
	x.Mul(x, new(big.Rat).SetInt(scale))
	x.Add(x, big.NewRat(1, 2))
	q := new(big.Int).Quo(x.Num(), x.Denom())
	if neg {
		q.Neg(q)
	}
	return new(big.Rat).SetFrac(q, scale)
}

// RoundHalfUp rounds v to places decimals (round-half-up on the decimal value).
func RoundHalfUp(v float64, places int) float64 {
	f, _ := roundRat(decimal(v), places).Float64()
	return f
}

var zeroDecimal = map[string]bool{
	"JPY": true, "KRW": true, "VND": true, "CLP": true, "ISK": true, "UGX": true,
}

func exponent(currency string) int {
	if zeroDecimal[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// MinorUnits converts a major-unit amount into the smallest currency unit.
func MinorUnits(amount float64, currency string) int64 {
	exp := exponent(currency)
	r := roundRat(decimal(amount), exp)
	r.Mul(r, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)))
	return new(big.Int).Quo(r.Num(), r.Denom()).Int64()
}

func FromMinorUnits(minor int64, currency string) float64 {
	if exponent(currency) == 0 {
		return float64(minor)
	}
	return float64(minor) / 100
}
