package amm

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// FeeDenominator scales the per-thousand fee multiplier.
	FeeDenominator = 1000
	// DefaultFeeMultiplier charges 0.3% on the quoted input.
	DefaultFeeMultiplier = 997
	// invariantFee is the fixed per-thousand deduction applied to the actual
	// input when the product is re-checked after a swap.
	invariantFee = 3
)

var (
	thousand        = uint256.NewInt(FeeDenominator)
	invariantFeeInt = uint256.NewInt(invariantFee)
)

// GetAmountOut quotes in*m*rOut / (rIn*1000 + in*m).
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeMultiplier uint64) (*uint256.Int, error) {
	if amountIn.IsZero() {
		return nil, ErrInsufficientInputAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	inWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, uint256.NewInt(feeMultiplier))
	if overflow {
		return nil, fmt.Errorf("%w: amount in with fee", ErrOverflow)
	}
	numerator, overflow := new(uint256.Int).MulOverflow(inWithFee, reserveOut)
	if overflow {
		return nil, fmt.Errorf("%w: amount out numerator", ErrOverflow)
	}
	denominator, overflow := new(uint256.Int).MulOverflow(reserveIn, thousand)
	if overflow {
		return nil, fmt.Errorf("%w: amount out denominator", ErrOverflow)
	}
	if _, overflow = denominator.AddOverflow(denominator, inWithFee); overflow {
		return nil, fmt.Errorf("%w: amount out denominator", ErrOverflow)
	}
	return numerator.Div(numerator, denominator), nil
}

// GetAmountIn returns the input needed for amountOut: rIn*out*1000 / ((rOut-out)*m) + 1.
func GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int, feeMultiplier uint64) (*uint256.Int, error) {
	if amountOut.IsZero() {
		return nil, ErrInsufficientOutputAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() || !amountOut.Lt(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}
	if feeMultiplier == 0 {
		return nil, fmt.Errorf("%w: zero fee multiplier", ErrInvalidConfig)
	}
	numerator, overflow := new(uint256.Int).MulOverflow(reserveIn, amountOut)
	if overflow {
		return nil, fmt.Errorf("%w: amount in numerator", ErrOverflow)
	}
	if _, overflow = numerator.MulOverflow(numerator, thousand); overflow {
		return nil, fmt.Errorf("%w: amount in numerator", ErrOverflow)
	}
	denominator := new(uint256.Int).Sub(reserveOut, amountOut)
	if _, overflow = denominator.MulOverflow(denominator, uint256.NewInt(feeMultiplier)); overflow {
		return nil, fmt.Errorf("%w: amount in denominator", ErrOverflow)
	}
	amountIn := numerator.Div(numerator, denominator)
	return amountIn.AddUint64(amountIn, 1), nil
}

// GetAmountMatch returns the quote amount matching baseIn at the current ratio.
func GetAmountMatch(baseIn, reserveBase, reserveQuote *uint256.Int) (*uint256.Int, error) {
	if reserveBase.IsZero() || reserveQuote.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	return mulDiv(reserveQuote, baseIn, reserveBase)
}

// mulDiv returns floor(x*y/d) with a 512-bit intermediate.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, fmt.Errorf("%w: %s*%s/%s", ErrOverflow, x.Dec(), y.Dec(), d.Dec())
	}
	return z, nil
}

// product returns x*y, reporting overflow.
func product(x, y *uint256.Int) (*uint256.Int, bool) {
	return new(uint256.Int).MulOverflow(x, y)
}

func minInt(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a
	}
	return b
}
