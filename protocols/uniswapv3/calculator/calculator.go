package uniswapv3

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/dex-aggregator-go/protocols/uniswapv3"
	"github.com/defistate/dex-aggregator-go/protocols/uniswapv3/calculator/liquiditymath"
	"github.com/defistate/dex-aggregator-go/protocols/uniswapv3/calculator/swapmath"
	"github.com/defistate/dex-aggregator-go/protocols/uniswapv3/calculator/tickbitmap"
	"github.com/defistate/dex-aggregator-go/protocols/uniswapv3/calculator/tickmath"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrNilAmount             = errors.New("amount cannot be nil")
	ErrInvalidAmount         = errors.New("amount must be a non-negative 256-bit integer")
	ErrTokenMismatch         = errors.New("token mismatch")
	ErrInvalidPriceLimit     = errors.New("sqrt price limit is on the wrong side of the current price")
	ErrInvalidPoolState      = errors.New("pool state is out of range")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity in the current tick")
	ErrLiquidityUnderflow    = liquiditymath.ErrLiquidityUnderflow
)

// swapState is the running state of a multi-range exact-input swap.
type swapState struct {
	amountRemaining uint256.Int
	amountOut       uint256.Int
	sqrtPriceX96    uint256.Int
	sqrtPriceStart  uint256.Int
	liquidity       *uint256.Int
	tick            int32
}

var swapStatePool = sync.Pool{
	New: func() any { return new(swapState) },
}

// direction reports whether tokenIn -> tokenOut swaps token0 for token1.
func direction(tokenIn, tokenOut common.Address, pool uniswapv3.Pool) (bool, error) {
	switch {
	case tokenIn == pool.Token0 && tokenOut == pool.Token1:
		return true, nil
	case tokenIn == pool.Token1 && tokenOut == pool.Token0:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s -> %s is not served by pool %s", ErrTokenMismatch, tokenIn, tokenOut, pool.Address)
	}
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return nil, ErrNilAmount
	}
	if v.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrInvalidAmount
	}
	return u, nil
}

// priceLimit returns the furthest price a swap in the given direction may reach.
func priceLimit(zeroForOne bool) *uint256.Int {
	if zeroForOne {
		return new(uint256.Int).AddUint64(tickmath.MinSqrtRatio, 1)
	}
	return new(uint256.Int).SubUint64(tickmath.MaxSqrtRatio, 1)
}

// QuoteExactInputSingleTick prices amountIn against the pool's current price and active liquidity only,
// as if that liquidity extended across the whole price range. Ticks are never crossed.
// A pool without liquidity or price quotes zero.
func QuoteExactInputSingleTick(amountIn *big.Int, tokenIn, tokenOut common.Address, pool uniswapv3.Pool) (*big.Int, error) {
	amount, err := toUint256(amountIn)
	if err != nil {
		return nil, err
	}
	zeroForOne, err := direction(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() || pool.Liquidity == nil || pool.Liquidity.Sign() <= 0 || pool.SqrtPriceX96 == nil || pool.SqrtPriceX96.Sign() <= 0 {
		return new(big.Int), nil
	}

	sqrtPrice, overflow := uint256.FromBig(pool.SqrtPriceX96)
	if overflow {
		return nil, ErrInvalidPoolState
	}
	liquidity, overflow := uint256.FromBig(pool.Liquidity)
	if overflow {
		return nil, ErrInvalidPoolState
	}

	limit := priceLimit(zeroForOne)
	if zeroForOne && !sqrtPrice.Gt(limit) || !zeroForOne && !sqrtPrice.Lt(limit) {
		// price already pinned at the boundary
		return new(big.Int), nil
	}

	step, err := swapmath.ComputeSwapStep(sqrtPrice, limit, liquidity, amount, true, pool.Fee)
	if err != nil {
		return nil, err
	}
	return step.AmountOut.ToBig(), nil
}

// GetAmountIn returns the input, fee included, needed to receive exactly amountOut without leaving
// the active liquidity of the current price. Outputs that would need a tick crossing are rejected.
func GetAmountIn(amountOut *big.Int, tokenIn, tokenOut common.Address, pool uniswapv3.Pool) (*big.Int, error) {
	amount, err := toUint256(amountOut)
	if err != nil {
		return nil, err
	}
	zeroForOne, err := direction(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return new(big.Int), nil
	}
	if pool.Liquidity == nil || pool.Liquidity.Sign() <= 0 || pool.SqrtPriceX96 == nil || pool.SqrtPriceX96.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool %s has no active liquidity", ErrInsufficientLiquidity, pool.Address)
	}

	sqrtPrice, overflow := uint256.FromBig(pool.SqrtPriceX96)
	if overflow {
		return nil, ErrInvalidPoolState
	}
	liquidity, overflow := uint256.FromBig(pool.Liquidity)
	if overflow {
		return nil, ErrInvalidPoolState
	}

	step, err := swapmath.ComputeSwapStep(sqrtPrice, priceLimit(zeroForOne), liquidity, amount, false, pool.Fee)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientLiquidity, err)
	}
	if step.AmountOut.Lt(amount) {
		return nil, fmt.Errorf("%w: pool %s can pay at most %s", ErrInsufficientLiquidity, pool.Address, step.AmountOut.Dec())
	}
	return new(uint256.Int).Add(step.AmountIn, step.FeeAmount).ToBig(), nil
}

// SimulateExactInSwap runs an exact-input swap across initialized ticks and returns the output amount
// together with the pool state after the swap. A nil sqrtPriceLimitX96 allows the price to move to the
// edge of the valid range.
func SimulateExactInSwap(
	amountIn *big.Int,
	sqrtPriceLimitX96 *big.Int,
	tokenIn common.Address,
	pool uniswapv3.Pool,
) (*big.Int, uniswapv3.Pool, error) {
	amount, err := toUint256(amountIn)
	if err != nil {
		return nil, uniswapv3.Pool{}, err
	}

	zeroForOne := tokenIn == pool.Token0
	if !zeroForOne && tokenIn != pool.Token1 {
		return nil, uniswapv3.Pool{}, fmt.Errorf("%w: token %s is not in pool %s", ErrTokenMismatch, tokenIn, pool.Address)
	}
	if pool.SqrtPriceX96 == nil || pool.Liquidity == nil {
		return nil, uniswapv3.Pool{}, ErrInvalidPoolState
	}

	state := swapStatePool.Get().(*swapState)
	defer swapStatePool.Put(state)

	if overflow := state.sqrtPriceX96.SetFromBig(pool.SqrtPriceX96); overflow {
		return nil, uniswapv3.Pool{}, ErrInvalidPoolState
	}
	liquidity, overflow := uint256.FromBig(pool.Liquidity)
	if overflow {
		return nil, uniswapv3.Pool{}, ErrInvalidPoolState
	}
	state.liquidity = liquidity
	state.amountRemaining.Set(amount)
	state.amountOut.Clear()
	state.tick = pool.Tick

	limit := priceLimit(zeroForOne)
	if sqrtPriceLimitX96 != nil {
		custom, overflow := uint256.FromBig(sqrtPriceLimitX96)
		if overflow {
			return nil, uniswapv3.Pool{}, ErrInvalidPriceLimit
		}
		limit = custom
	}
	if zeroForOne && (!limit.Lt(&state.sqrtPriceX96) || !limit.Gt(tickmath.MinSqrtRatio)) ||
		!zeroForOne && (!limit.Gt(&state.sqrtPriceX96) || !limit.Lt(tickmath.MaxSqrtRatio)) {
		return nil, uniswapv3.Pool{}, fmt.Errorf("%w: limit %s, price %s", ErrInvalidPriceLimit, limit.Dec(), state.sqrtPriceX96.Dec())
	}

	if err := swap(state, pool, limit, zeroForOne); err != nil {
		return nil, uniswapv3.Pool{}, err
	}

	next := pool
	next.SqrtPriceX96 = state.sqrtPriceX96.ToBig()
	next.Tick = state.tick
	next.Liquidity = state.liquidity.ToBig()
	return state.amountOut.ToBig(), next, nil
}

func swap(state *swapState, pool uniswapv3.Pool, limit *uint256.Int, zeroForOne bool) error {
	var stepAmount uint256.Int
	for !state.amountRemaining.IsZero() && !state.sqrtPriceX96.Eq(limit) {
		state.sqrtPriceStart.Set(&state.sqrtPriceX96)

		tickNext := tickmath.MaxTick
		if zeroForOne {
			tickNext = tickmath.MinTick
		}
		pos, initialized := tickbitmap.NextInitializedTick(pool.Ticks, state.tick, zeroForOne)
		if initialized {
			tickNext = max(tickmath.MinTick, min(tickmath.MaxTick, pool.Ticks[pos].Index))
		}

		sqrtPriceNext, err := tickmath.GetSqrtRatioAtTick(tickNext)
		if err != nil {
			return err
		}

		target := sqrtPriceNext
		if zeroForOne && sqrtPriceNext.Lt(limit) || !zeroForOne && sqrtPriceNext.Gt(limit) {
			target = limit
		}

		step, err := swapmath.ComputeSwapStep(&state.sqrtPriceX96, target, state.liquidity, &state.amountRemaining, true, pool.Fee)
		if err != nil {
			return err
		}
		state.sqrtPriceX96.Set(step.SqrtRatioNextX96)
		state.amountRemaining.Sub(&state.amountRemaining, stepAmount.Add(step.AmountIn, step.FeeAmount))
		state.amountOut.Add(&state.amountOut, step.AmountOut)

		if state.sqrtPriceX96.Eq(sqrtPriceNext) {
			if initialized {
				net := pool.Ticks[pos].LiquidityNet
				if net != nil && zeroForOne {
					net = new(big.Int).Neg(net)
				}
				if state.liquidity, err = liquiditymath.AddDelta(state.liquidity, net); err != nil {
					return fmt.Errorf("crossing tick %d: %w", tickNext, err)
				}
			}
			if zeroForOne {
				state.tick = tickNext - 1
			} else {
				state.tick = tickNext
			}
		} else if !state.sqrtPriceX96.Eq(&state.sqrtPriceStart) {
			if state.tick, err = tickmath.GetTickAtSqrtRatio(&state.sqrtPriceX96); err != nil {
				return err
			}
		}
	}
	return nil
}
