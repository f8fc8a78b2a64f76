package sqrtpricemath

import (
	"errors"
	"sync"

	"github.com/holiman/uint256"
)

var (
	// Q96 is the UQ64.96 fixed-point number representing 1.
	Q96 = new(uint256.Int).Lsh(uint256.NewInt(1), Resolution)
	// Resolution is the number of bits in the Q96 format.
	Resolution = uint(96)

	maxUint160 = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 160), 1)
)

var (
	ErrLiquidityZero  = errors.New("liquidity must be greater than zero")
	ErrSqrtPriceZero  = errors.New("sqrt price must be greater than zero")
	ErrOverflow       = errors.New("uint256 overflow")
	ErrPriceUnderflow = errors.New("output exceeds available reserves at current price")
	ErrDivisionByZero = errors.New("division by zero")
)

// scratch holds reusable uint256 words for one calculation.
type scratch struct {
	numerator1  uint256.Int
	numerator2  uint256.Int
	product     uint256.Int
	denominator uint256.Int
	term        uint256.Int
	rem         uint256.Int
}

var pool = sync.Pool{
	New: func() any { return new(scratch) },
}

// MulDiv writes floor(a*b/c) into dest using a 512-bit intermediate product.
func MulDiv(dest, a, b, c *uint256.Int) error {
	if c.IsZero() {
		return ErrDivisionByZero
	}
	if _, overflow := dest.MulDivOverflow(a, b, c); overflow {
		return ErrOverflow
	}
	return nil
}

// MulDivRoundingUp writes ceil(a*b/c) into dest using a 512-bit intermediate product.
func MulDivRoundingUp(dest, a, b, c *uint256.Int) error {
	if c.IsZero() {
		return ErrDivisionByZero
	}
	var rem uint256.Int
	rem.MulMod(a, b, c)
	if _, overflow := dest.MulDivOverflow(a, b, c); overflow {
		return ErrOverflow
	}
	if !rem.IsZero() {
		if _, overflow := dest.AddOverflow(dest, uint256.NewInt(1)); overflow {
			return ErrOverflow
		}
	}
	return nil
}

func divRoundingUp(dest, a, b, rem *uint256.Int) {
	rem.Mod(a, b)
	dest.Div(a, b)
	if !rem.IsZero() {
		dest.AddUint64(dest, 1)
	}
}

// GetNextSqrtPriceFromAmount0RoundingUp calculates the next sqrt price given a delta of token0.
func GetNextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amount *uint256.Int, add bool) error {
	s := pool.Get().(*scratch)
	defer pool.Put(s)
	return s.nextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amount, add)
}

// GetNextSqrtPriceFromAmount1RoundingDown calculates the next sqrt price given a delta of token1.
func GetNextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amount *uint256.Int, add bool) error {
	s := pool.Get().(*scratch)
	defer pool.Put(s)
	return s.nextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amount, add)
}

// GetNextSqrtPriceFromInput calculates the next sqrt price after adding amountIn of the input token.
func GetNextSqrtPriceFromInput(dest, sqrtPX96, liquidity, amountIn *uint256.Int, zeroForOne bool) error {
	if sqrtPX96.IsZero() {
		return ErrSqrtPriceZero
	}
	if liquidity.IsZero() {
		return ErrLiquidityZero
	}

	if zeroForOne {
		return GetNextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amountIn, true)
	}
	return GetNextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput calculates the next sqrt price after removing amountOut of the output token.
func GetNextSqrtPriceFromOutput(dest, sqrtPX96, liquidity, amountOut *uint256.Int, zeroForOne bool) error {
	if sqrtPX96.IsZero() {
		return ErrSqrtPriceZero
	}
	if liquidity.IsZero() {
		return ErrLiquidityZero
	}

	if zeroForOne {
		return GetNextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amountOut, false)
	}
	return GetNextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amountOut, false)
}

// GetAmount0Delta calculates liquidity * (sqrtB - sqrtA) / (sqrtA * sqrtB) in Q96.
func GetAmount0Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) error {
	s := pool.Get().(*scratch)
	defer pool.Put(s)
	return s.amount0Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity, roundUp)
}

// GetAmount1Delta calculates liquidity * (sqrtB - sqrtA) in Q96.
func GetAmount1Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) error {
	s := pool.Get().(*scratch)
	defer pool.Put(s)
	return s.amount1Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity, roundUp)
}

func (s *scratch) nextSqrtPriceFromAmount0RoundingUp(dest, sqrtPX96, liquidity, amount *uint256.Int, add bool) error {
	if amount.IsZero() {
		dest.Set(sqrtPX96)
		return nil
	}

	s.numerator1.Lsh(liquidity, Resolution)
	_, productOverflow := s.product.MulOverflow(amount, sqrtPX96)

	if add {
		if !productOverflow {
			if _, overflow := s.denominator.AddOverflow(&s.numerator1, &s.product); !overflow {
				return MulDivRoundingUp(dest, &s.numerator1, sqrtPX96, &s.denominator)
			}
		}
		s.denominator.Div(&s.numerator1, sqrtPX96)
		if _, overflow := s.denominator.AddOverflow(&s.denominator, amount); overflow {
			return ErrOverflow
		}
		divRoundingUp(dest, &s.numerator1, &s.denominator, &s.rem)
		return nil
	}

	if productOverflow || !s.numerator1.Gt(&s.product) {
		return ErrPriceUnderflow
	}
	s.denominator.Sub(&s.numerator1, &s.product)
	return MulDivRoundingUp(dest, &s.numerator1, sqrtPX96, &s.denominator)
}

func (s *scratch) nextSqrtPriceFromAmount1RoundingDown(dest, sqrtPX96, liquidity, amount *uint256.Int, add bool) error {
	if add {
		if err := MulDiv(&s.term, amount, Q96, liquidity); err != nil {
			return err
		}
		if _, overflow := dest.AddOverflow(sqrtPX96, &s.term); overflow || dest.Gt(maxUint160) {
			return ErrOverflow
		}
		return nil
	}

	if err := MulDivRoundingUp(&s.term, amount, Q96, liquidity); err != nil {
		return err
	}
	if !sqrtPX96.Gt(&s.term) {
		return ErrPriceUnderflow
	}
	dest.Sub(sqrtPX96, &s.term)
	return nil
}

func (s *scratch) amount0Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) error {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.IsZero() {
		return ErrSqrtPriceZero
	}

	s.numerator1.Lsh(liquidity, Resolution)
	s.numerator2.Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		if err := MulDivRoundingUp(&s.term, &s.numerator1, &s.numerator2, sqrtRatioBX96); err != nil {
			return err
		}
		divRoundingUp(dest, &s.term, sqrtRatioAX96, &s.rem)
		return nil
	}
	if err := MulDiv(&s.term, &s.numerator1, &s.numerator2, sqrtRatioBX96); err != nil {
		return err
	}
	dest.Div(&s.term, sqrtRatioAX96)
	return nil
}

func (s *scratch) amount1Delta(dest, sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) error {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	s.numerator1.Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return MulDivRoundingUp(dest, liquidity, &s.numerator1, Q96)
	}
	return MulDiv(dest, liquidity, &s.numerator1, Q96)
}
