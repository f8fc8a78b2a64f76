package uniswapv2

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	uniswapv2 "github.com/defistate/dex-aggregator-go/protocols/uniswapv2"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// basisPointDivisor is a constant representing 100% in basis points (10000).
	basisPointDivisor = big.NewInt(10000)

	// ErrInvalidAmount is returned when an input amount is negative.
	ErrInvalidAmount = errors.New("amount must be non-negative")
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrTokenMismatch is returned when the specified input/output tokens do not match the pool's tokens.
	ErrTokenMismatch = errors.New("token mismatch")
	// ErrInvalidFee is returned when a pool fee is 100% or more.
	ErrInvalidFee = errors.New("fee must be below 10000 bps")
	// ErrInsufficientLiquidity is returned when a requested output cannot be paid from the reserves.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
)

// Calculator holds reusable big.Int objects to avoid memory allocations during calculations.
// Instances are NOT safe for concurrent use by themselves; they are handed out by calculatorPool.
type Calculator struct {
	feeMultiplier   *big.Int
	amountInWithFee *big.Int
	numerator       *big.Int
	denominator     *big.Int
}

var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{
			feeMultiplier:   new(big.Int),
			amountInWithFee: new(big.Int),
			numerator:       new(big.Int),
			denominator:     new(big.Int),
		}
	},
}

// GetAmountOut returns the exact-input output of a constant-product swap:
//
//	amountOut = amountIn * (10000 - fee) * reserveOut / (reserveIn * 10000 + amountIn * (10000 - fee))
//
// A zero input or an empty reserve yields zero rather than an error.
func GetAmountOut(
	amountIn *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	pool uniswapv2.Pool,
) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountOut(amountIn, tokenIn, tokenOut, pool)
}

// GetAmountIn returns the minimum input required to receive exactly amountOut:
//
//	amountIn = reserveIn * amountOut * 10000 / ((reserveOut - amountOut) * (10000 - fee)) + 1
func GetAmountIn(
	amountOut *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	pool uniswapv2.Pool,
) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountIn(amountOut, tokenIn, tokenOut, pool)
}

// SimulateSwap returns the output of a swap together with the pool as it would look afterwards.
func SimulateSwap(
	amountIn *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	pool uniswapv2.Pool,
) (*big.Int, uniswapv2.Pool, error) {
	amountOut, err := GetAmountOut(amountIn, tokenIn, tokenOut, pool)
	if err != nil {
		return nil, uniswapv2.Pool{}, err
	}

	next := pool
	if tokenIn == pool.Token0 {
		next.Reserve0 = new(big.Int).Add(pool.Reserve0, amountIn)
		next.Reserve1 = new(big.Int).Sub(pool.Reserve1, amountOut)
	} else {
		next.Reserve1 = new(big.Int).Add(pool.Reserve1, amountIn)
		next.Reserve0 = new(big.Int).Sub(pool.Reserve0, amountOut)
	}
	return amountOut, next, nil
}

func (c *Calculator) getAmountOut(
	amountIn *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	pool uniswapv2.Pool,
) (*big.Int, error) {
	if amountIn == nil {
		return nil, ErrNilAmount
	}
	if amountIn.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if pool.FeeBps >= 10000 {
		return nil, fmt.Errorf("%w: pool %s has fee %d", ErrInvalidFee, pool.Address, pool.FeeBps)
	}

	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}

	if amountIn.Sign() == 0 || reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int), nil
	}

	c.feeMultiplier.SetUint64(uint64(10000 - pool.FeeBps))
	c.amountInWithFee.Mul(amountIn, c.feeMultiplier)
	c.numerator.Mul(reserveOut, c.amountInWithFee)
	c.denominator.Mul(reserveIn, basisPointDivisor)
	c.denominator.Add(c.denominator, c.amountInWithFee)

	return new(big.Int).Div(c.numerator, c.denominator), nil
}

func (c *Calculator) getAmountIn(
	amountOut *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	pool uniswapv2.Pool,
) (*big.Int, error) {
	if amountOut == nil {
		return nil, ErrNilAmount
	}
	if amountOut.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if pool.FeeBps >= 10000 {
		return nil, fmt.Errorf("%w: pool %s has fee %d", ErrInvalidFee, pool.Address, pool.FeeBps)
	}

	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}
	if amountOut.Sign() == 0 {
		return new(big.Int), nil
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: pool %s cannot pay %s", ErrInsufficientLiquidity, pool.Address, amountOut)
	}

	c.feeMultiplier.SetUint64(uint64(10000 - pool.FeeBps))
	c.numerator.Mul(reserveIn, amountOut)
	c.numerator.Mul(c.numerator, basisPointDivisor)
	c.denominator.Sub(reserveOut, amountOut)
	c.denominator.Mul(c.denominator, c.feeMultiplier)

	amountIn := new(big.Int).Div(c.numerator, c.denominator)
	return amountIn.Add(amountIn, big.NewInt(1)), nil
}

// GetReserves returns the reserves ordered as (in, out) for the given direction.
func GetReserves(tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (reserveIn, reserveOut *big.Int, err error) {
	if tokenIn == pool.Token0 && tokenOut == pool.Token1 {
		return pool.Reserve0, pool.Reserve1, nil
	} else if tokenIn == pool.Token1 && tokenOut == pool.Token0 {
		return pool.Reserve1, pool.Reserve0, nil
	}
	return nil, nil, fmt.Errorf("%w: pool %s does not contain the pair %s -> %s", ErrTokenMismatch, pool.Address, tokenIn, tokenOut)
}
