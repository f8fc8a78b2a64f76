package swapmath

import (
	"errors"
	"sync"

	"github.com/defistate/dex-aggregator-go/protocols/uniswapv3/calculator/sqrtpricemath"
	"github.com/holiman/uint256"
)

// FeeDenominator is the fee unit of a pool: fees are expressed in hundredths of a bip.
const FeeDenominator = 1_000_000

var ErrInvalidFee = errors.New("fee must be below 1,000,000 pips")

// StepResult is the outcome of a swap that stays within one liquidity range.
type StepResult struct {
	SqrtRatioNextX96 *uint256.Int
	AmountIn         *uint256.Int
	AmountOut        *uint256.Int
	FeeAmount        *uint256.Int
}

type scratch struct {
	amountRemainingLessFee uint256.Int
	feeComplement          uint256.Int
	feePips                uint256.Int
	denominator            uint256.Int
}

var pool = sync.Pool{
	New: func() any { return new(scratch) },
}

// ComputeSwapStep moves the price from sqrtRatioCurrentX96 toward sqrtRatioTargetX96 using at most
// amountRemaining, which is an input amount when exactIn is true and an output amount otherwise.
// The direction is implied by the two prices: a falling price swaps token0 for token1.
func ComputeSwapStep(
	sqrtRatioCurrentX96 *uint256.Int,
	sqrtRatioTargetX96 *uint256.Int,
	liquidity *uint256.Int,
	amountRemaining *uint256.Int,
	exactIn bool,
	feePips uint32,
) (StepResult, error) {
	if feePips >= FeeDenominator {
		return StepResult{}, ErrInvalidFee
	}

	s := pool.Get().(*scratch)
	defer pool.Put(s)

	res := StepResult{
		SqrtRatioNextX96: new(uint256.Int),
		AmountIn:         new(uint256.Int),
		AmountOut:        new(uint256.Int),
		FeeAmount:        new(uint256.Int),
	}
	if err := s.computeSwapStep(&res, sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, amountRemaining, exactIn, feePips); err != nil {
		return StepResult{}, err
	}
	return res, nil
}

func (s *scratch) computeSwapStep(
	res *StepResult,
	sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, amountRemaining *uint256.Int,
	exactIn bool,
	feePips uint32,
) error {
	zeroForOne := !sqrtRatioCurrentX96.Lt(sqrtRatioTargetX96)

	s.feePips.SetUint64(uint64(feePips))
	s.denominator.SetUint64(FeeDenominator)
	s.feeComplement.SetUint64(uint64(FeeDenominator - feePips))

	var err error
	if exactIn {
		if err = sqrtpricemath.MulDiv(&s.amountRemainingLessFee, amountRemaining, &s.feeComplement, &s.denominator); err != nil {
			return err
		}

		if zeroForOne {
			err = sqrtpricemath.GetAmount0Delta(res.AmountIn, sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, true)
		} else {
			err = sqrtpricemath.GetAmount1Delta(res.AmountIn, sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, true)
		}
		if err != nil {
			return err
		}

		if !s.amountRemainingLessFee.Lt(res.AmountIn) {
			res.SqrtRatioNextX96.Set(sqrtRatioTargetX96)
		} else if err = sqrtpricemath.GetNextSqrtPriceFromInput(res.SqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, &s.amountRemainingLessFee, zeroForOne); err != nil {
			return err
		}
	} else {
		if zeroForOne {
			err = sqrtpricemath.GetAmount1Delta(res.AmountOut, sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, false)
		} else {
			err = sqrtpricemath.GetAmount0Delta(res.AmountOut, sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, false)
		}
		if err != nil {
			return err
		}

		if !amountRemaining.Lt(res.AmountOut) {
			res.SqrtRatioNextX96.Set(sqrtRatioTargetX96)
		} else if err = sqrtpricemath.GetNextSqrtPriceFromOutput(res.SqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, amountRemaining, zeroForOne); err != nil {
			return err
		}
	}

	max := sqrtRatioTargetX96.Eq(res.SqrtRatioNextX96)

	// recompute the amounts that were not pinned by reaching the target
	if zeroForOne {
		if !(max && exactIn) {
			if err = sqrtpricemath.GetAmount0Delta(res.AmountIn, res.SqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, true); err != nil {
				return err
			}
		}
		if !(max && !exactIn) {
			if err = sqrtpricemath.GetAmount1Delta(res.AmountOut, res.SqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, false); err != nil {
				return err
			}
		}
	} else {
		if !(max && exactIn) {
			if err = sqrtpricemath.GetAmount1Delta(res.AmountIn, sqrtRatioCurrentX96, res.SqrtRatioNextX96, liquidity, true); err != nil {
				return err
			}
		}
		if !(max && !exactIn) {
			if err = sqrtpricemath.GetAmount0Delta(res.AmountOut, sqrtRatioCurrentX96, res.SqrtRatioNextX96, liquidity, false); err != nil {
				return err
			}
		}
	}

	if !exactIn && res.AmountOut.Gt(amountRemaining) {
		res.AmountOut.Set(amountRemaining)
	}

	if exactIn && !res.SqrtRatioNextX96.Eq(sqrtRatioTargetX96) {
		// target not reached: the remainder of the input is taken as fee
		res.FeeAmount.Sub(amountRemaining, res.AmountIn)
		return nil
	}
	return sqrtpricemath.MulDivRoundingUp(res.FeeAmount, res.AmountIn, &s.feePips, &s.feeComplement)
}
