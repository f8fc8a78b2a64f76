// Package quote prices exact-input swaps against a single pool.
//
// Pool state is a tagged variant over the two pool families, and Estimate dispatches on the tag.
// Quoting never fails on an illiquid pool: zero input, empty reserves, zero liquidity and a token
// the pool does not trade all quote zero.
package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/dex-aggregator-go/engine"
	"github.com/defistate/dex-aggregator-go/protocols/uniswapv2"
	uniswapv2calculator "github.com/defistate/dex-aggregator-go/protocols/uniswapv2/calculator"
	"github.com/defistate/dex-aggregator-go/protocols/uniswapv3"
	uniswapv3calculator "github.com/defistate/dex-aggregator-go/protocols/uniswapv3/calculator"
	"github.com/defistate/dex-aggregator-go/venues"
	"github.com/ethereum/go-ethereum/common"
)

// PoolState is the pricing state of one pool. Exactly one of V2 and V3 is set, matching Version.
type PoolState struct {
	Version engine.Version
	V2      *uniswapv2.Pool
	V3      *uniswapv3.Pool
}

func V2State(p uniswapv2.Pool) PoolState {
	return PoolState{Version: engine.VersionV2, V2: &p}
}

func V3State(p uniswapv3.Pool) PoolState {
	return PoolState{Version: engine.VersionV3, V3: &p}
}

// Counterpart returns the token a swap from tokenIn receives.
func (s PoolState) Counterpart(tokenIn common.Address) (common.Address, bool) {
	var token0, token1 common.Address
	switch {
	case s.Version == engine.VersionV2 && s.V2 != nil:
		token0, token1 = s.V2.Token0, s.V2.Token1
	case s.Version == engine.VersionV3 && s.V3 != nil:
		token0, token1 = s.V3.Token0, s.V3.Token1
	default:
		return common.Address{}, false
	}
	switch tokenIn {
	case token0:
		return token1, true
	case token1:
		return token0, true
	}
	return common.Address{}, false
}

// Estimate returns the output of swapping amountIn of tokenIn through the pool. It never returns nil.
func Estimate(state PoolState, tokenIn common.Address, amountIn *big.Int) *big.Int {
	out, _ := estimate(state, tokenIn, amountIn)
	return out
}

// estimate also reports why a quote came out zero.
func estimate(state PoolState, tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return new(big.Int), nil
	}
	tokenOut, ok := state.Counterpart(tokenIn)
	if !ok {
		return new(big.Int), fmt.Errorf("%w: token %s is not traded by the pool", engine.ErrInsufficientLiquidity, tokenIn)
	}

	var (
		out *big.Int
		err error
	)
	switch state.Version {
	case engine.VersionV2:
		out, err = uniswapv2calculator.GetAmountOut(amountIn, tokenIn, tokenOut, *state.V2)
	case engine.VersionV3:
		out, err = uniswapv3calculator.QuoteExactInputSingleTick(amountIn, tokenIn, tokenOut, *state.V3)
	}
	if err != nil {
		return new(big.Int), fmt.Errorf("%w: %v", engine.ErrInsufficientLiquidity, err)
	}
	if out == nil || out.Sign() == 0 {
		return new(big.Int), engine.ErrInsufficientLiquidity
	}
	return out, nil
}

// EstimateIn returns the amount of tokenIn, fees included, needed to receive exactly amountOut from
// the pool. Unlike Estimate it fails, with engine.ErrInsufficientLiquidity, when the pool cannot pay
// amountOut. V3 pools are priced over the current tick only.
func EstimateIn(state PoolState, tokenIn common.Address, amountOut *big.Int) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return new(big.Int), nil
	}
	tokenOut, ok := state.Counterpart(tokenIn)
	if !ok {
		return nil, fmt.Errorf("%w: token %s is not traded by the pool", engine.ErrInsufficientLiquidity, tokenIn)
	}

	var (
		in  *big.Int
		err error
	)
	switch state.Version {
	case engine.VersionV2:
		in, err = uniswapv2calculator.GetAmountIn(amountOut, tokenIn, tokenOut, *state.V2)
	case engine.VersionV3:
		in, err = uniswapv3calculator.GetAmountIn(amountOut, tokenIn, tokenOut, *state.V3)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrInsufficientLiquidity, err)
	}
	return in, nil
}

// Engine loads pool state through a venue backend and prices it.
type Engine struct {
	backend venues.Backend
	logger  engine.Logger
}

func NewEngine(backend venues.Backend, logger engine.Logger) (*Engine, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Engine{backend: backend, logger: logger}, nil
}

// State reads the pricing state of pool, whichever family it belongs to.
func (e *Engine) State(ctx context.Context, pool common.Address) (PoolState, error) {
	version, err := e.backend.PoolVersion(ctx, pool)
	if err != nil {
		return PoolState{}, err
	}
	switch version {
	case engine.VersionV2:
		p, err := e.backend.V2Pool(ctx, pool)
		if err != nil {
			return PoolState{}, err
		}
		return V2State(p), nil
	case engine.VersionV3:
		p, err := e.backend.V3Pool(ctx, pool)
		if err != nil {
			return PoolState{}, err
		}
		return V3State(p), nil
	}
	return PoolState{}, fmt.Errorf("%w: unknown pool version %d at %s", engine.ErrVenueCallFailed, version, pool)
}

// EstimateAmountOut quotes amountIn of tokenIn against pool. Illiquid pools quote zero with a nil
// error; only failed venue reads are returned as errors.
func (e *Engine) EstimateAmountOut(ctx context.Context, pool, tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() == 0 {
		return new(big.Int), nil
	}
	state, err := e.State(ctx, pool)
	if err != nil {
		return nil, err
	}
	out, reason := estimate(state, tokenIn, amountIn)
	if reason != nil {
		e.logger.Debug("pool quotes zero", "pool", pool, "version", state.Version.String(), "reason", reason)
	}
	return out, nil
}

// EstimateAmountIn returns the input of tokenIn needed to receive exactly amountOut from pool.
func (e *Engine) EstimateAmountIn(ctx context.Context, pool, tokenIn common.Address, amountOut *big.Int) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() == 0 {
		return new(big.Int), nil
	}
	state, err := e.State(ctx, pool)
	if err != nil {
		return nil, err
	}
	return EstimateIn(state, tokenIn, amountOut)
}
