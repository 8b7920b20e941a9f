package math

import (
	"math/big"
)

// BpsDenominator is the number of basis points in one whole.
const BpsDenominator = 10000

var (
	bpsDenom = big.NewInt(BpsDenominator)
	one      = big.NewInt(1)

	// WeiPerToken is the fixed-point scale of gas price rates.
	WeiPerToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// Clone returns a copy of x, or zero when x is nil.
func Clone(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// MulDiv returns floor(a*b/c).
func MulDiv(a, b, c *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// MulDivCeil returns ceil(a*b/c) for non-negative operands.
func MulDivCeil(a, b, c *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	out.Add(out, c)
	out.Sub(out, one)
	return out.Quo(out, c)
}

// BpsCeil returns amount*bps/10000 rounded up.
func BpsCeil(amount *big.Int, bps uint32) *big.Int {
	return MulDivCeil(amount, new(big.Int).SetUint64(uint64(bps)), bpsDenom)
}

// LessBps returns amount reduced by bps, rounded down.
func LessBps(amount *big.Int, bps uint32) *big.Int {
	if bps >= BpsDenominator {
		return new(big.Int)
	}
	return MulDiv(amount, big.NewInt(int64(BpsDenominator-bps)), bpsDenom)
}

// Percent returns amount*pct/100 rounded down.
func Percent(amount *big.Int, pct uint64) *big.Int {
	return MulDiv(amount, new(big.Int).SetUint64(pct), big.NewInt(100))
}

// GetAmountOut applies the constant-product formula with a swap fee in basis
// points. A fee of 30 bps is the 997/1000 Uniswap V2 formula.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) *big.Int {
	if amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || feeBps >= BpsDenominator {
		return new(big.Int)
	}
	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(BpsDenominator-feeBps)))
	numerator := new(big.Int).Mul(inWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, bpsDenom)
	denominator.Add(denominator, inWithFee)
	return numerator.Quo(numerator, denominator)
}

// Scale applies the rate quoteOut/quoteIn to amount, rounded down.
func Scale(amount, quoteIn, quoteOut *big.Int) *big.Int {
	if quoteIn.Sign() <= 0 {
		return new(big.Int)
	}
	return MulDiv(amount, quoteOut, quoteIn)
}

// GasCost returns gasPrice*units in wei.
func GasCost(gasPrice *big.Int, units uint64) *big.Int {
	return new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(units))
}

// WeiToToken converts a wei amount into token units using rate, the number of
// token units one whole native coin (1e18 wei) buys. Rounds up.
func WeiToToken(wei, rate *big.Int) *big.Int {
	return MulDivCeil(wei, rate, WeiPerToken)
}

// NetProfit returns gross - principal - fee - gas.
func NetProfit(gross, principal, fee, gas *big.Int) *big.Int {
	out := new(big.Int).Sub(gross, principal)
	out.Sub(out, fee)
	return out.Sub(out, gas)
}

// Min returns the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
