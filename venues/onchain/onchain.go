// Package onchain reads venue state from a live chain with eth_call.
package onchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/defistate/dex-aggregator-go/engine"
	"github.com/defistate/dex-aggregator-go/ledger"
	"github.com/defistate/dex-aggregator-go/protocols/uniswapv2"
	"github.com/defistate/dex-aggregator-go/protocols/uniswapv3"
	"github.com/defistate/dex-aggregator-go/venues"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultCallTimeout bounds a single eth_call when Config.CallTimeout is unset.
const DefaultCallTimeout = 5 * time.Second

// venueABI holds the read methods of V2/V3 routers, factories, pairs and pools.
const venueABI = `[
  {"inputs":[],"name":"factory","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[
     {"internalType":"address","name":"tokenA","type":"address"},
     {"internalType":"address","name":"tokenB","type":"address"}],
   "name":"getPair","outputs":[{"internalType":"address","name":"pair","type":"address"}],
   "stateMutability":"view","type":"function"},
  {"inputs":[
     {"internalType":"address","name":"tokenA","type":"address"},
     {"internalType":"address","name":"tokenB","type":"address"},
     {"internalType":"uint24","name":"fee","type":"uint24"}],
   "name":"getPool","outputs":[{"internalType":"address","name":"pool","type":"address"}],
   "stateMutability":"view","type":"function"},
  {"inputs":[],"name":"getReserves","outputs":[
     {"internalType":"uint112","name":"reserve0","type":"uint112"},
     {"internalType":"uint112","name":"reserve1","type":"uint112"},
     {"internalType":"uint32","name":"blockTimestampLast","type":"uint32"}],
   "stateMutability":"view","type":"function"},
  {"inputs":[],"name":"token0","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"token1","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"fee","outputs":[{"internalType":"uint24","name":"","type":"uint24"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"tickSpacing","outputs":[{"internalType":"int24","name":"","type":"int24"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"liquidity","outputs":[{"internalType":"uint128","name":"","type":"uint128"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"slot0","outputs":[
     {"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"},
     {"internalType":"int24","name":"tick","type":"int24"},
     {"internalType":"uint16","name":"observationIndex","type":"uint16"},
     {"internalType":"uint16","name":"observationCardinality","type":"uint16"},
     {"internalType":"uint16","name":"observationCardinalityNext","type":"uint16"},
     {"internalType":"uint8","name":"feeProtocol","type":"uint8"},
     {"internalType":"bool","name":"unlocked","type":"bool"}],
   "stateMutability":"view","type":"function"}
]`

var parsedABI = mustParseABI(venueABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("onchain: invalid venue abi: %v", err))
	}
	return parsed
}

// Caller performs eth_call. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type Config struct {
	Caller      Caller
	Logger      engine.Logger
	CallTimeout time.Duration
}

func (c *Config) validate() error {
	if c.Caller == nil {
		return errors.New("caller cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("logger cannot be nil")
	}
	if c.CallTimeout < 0 {
		return errors.New("call timeout cannot be negative")
	}
	return nil
}

// Backend is a read-only venue backend. Every read is a single eth_call at the latest block.
type Backend struct {
	caller  Caller
	logger  engine.Logger
	timeout time.Duration
}

var _ venues.Executor = (*Backend)(nil)

func NewBackend(cfg *Config) (*Backend, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	timeout := cfg.CallTimeout
	if timeout == 0 {
		timeout = DefaultCallTimeout
	}
	return &Backend{
		caller:  cfg.Caller,
		logger:  cfg.Logger,
		timeout: timeout,
	}, nil
}

// call packs method, executes it against to and unpacks the outputs.
func (b *Backend) call(ctx context.Context, to common.Address, method string, args ...any) ([]any, error) {
	input, err := parsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %s: %v", engine.ErrVenueCallFailed, method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	res, err := b.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: call %s on %s: %v", engine.ErrVenueCallFailed, method, to, err)
	}
	outs, err := parsedABI.Methods[method].Outputs.Unpack(res)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s from %s: %v", engine.ErrVenueCallFailed, method, to, err)
	}
	return outs, nil
}

func (b *Backend) callAddress(ctx context.Context, to common.Address, method string, args ...any) (common.Address, error) {
	outs, err := b.call(ctx, to, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := outs[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s returned %T", engine.ErrVenueCallFailed, method, outs[0])
	}
	return addr, nil
}

func (b *Backend) callBig(ctx context.Context, to common.Address, method string) (*big.Int, error) {
	outs, err := b.call(ctx, to, method)
	if err != nil {
		return nil, err
	}
	v, ok := outs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned %T", engine.ErrVenueCallFailed, method, outs[0])
	}
	return v, nil
}

// V2Factory and V3Factory both read the router's factory(). The two router families expose the
// same getter.
func (b *Backend) V2Factory(ctx context.Context, router common.Address) (common.Address, error) {
	return b.callAddress(ctx, router, "factory")
}

func (b *Backend) V3Factory(ctx context.Context, router common.Address) (common.Address, error) {
	return b.callAddress(ctx, router, "factory")
}

func (b *Backend) GetPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error) {
	return b.callAddress(ctx, factory, "getPair", tokenA, tokenB)
}

func (b *Backend) GetPool(ctx context.Context, factory, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	return b.callAddress(ctx, factory, "getPool", tokenA, tokenB, new(big.Int).SetUint64(uint64(fee)))
}

// PoolVersion tries fee(), which only V3 pools expose, then getReserves(), which only V2 pairs
// expose.
func (b *Backend) PoolVersion(ctx context.Context, pool common.Address) (engine.Version, error) {
	if _, err := b.call(ctx, pool, "fee"); err == nil {
		return engine.VersionV3, nil
	}
	if _, err := b.call(ctx, pool, "getReserves"); err == nil {
		return engine.VersionV2, nil
	}
	return engine.VersionNone, fmt.Errorf("%w: %s is neither a v2 pair nor a v3 pool", engine.ErrVenueCallFailed, pool)
}

func (b *Backend) tokens(ctx context.Context, pool common.Address) (common.Address, common.Address, error) {
	token0, err := b.callAddress(ctx, pool, "token0")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1, err := b.callAddress(ctx, pool, "token1")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return token0, token1, nil
}

func (b *Backend) V2Pool(ctx context.Context, pool common.Address) (uniswapv2.Pool, error) {
	token0, token1, err := b.tokens(ctx, pool)
	if err != nil {
		return uniswapv2.Pool{}, err
	}
	outs, err := b.call(ctx, pool, "getReserves")
	if err != nil {
		return uniswapv2.Pool{}, err
	}
	reserve0, ok0 := outs[0].(*big.Int)
	reserve1, ok1 := outs[1].(*big.Int)
	if !ok0 || !ok1 {
		return uniswapv2.Pool{}, fmt.Errorf("%w: getReserves returned %T, %T", engine.ErrVenueCallFailed, outs[0], outs[1])
	}
	return uniswapv2.Pool{
		Address:  pool,
		Token0:   token0,
		Token1:   token1,
		Reserve0: reserve0,
		Reserve1: reserve1,
		FeeBps:   uniswapv2.DefaultFeeBps,
	}, nil
}

// V3Pool reads the pool's current price and active liquidity. Initialized ticks are not
// loaded, which is all a single-tick quote needs.
func (b *Backend) V3Pool(ctx context.Context, pool common.Address) (uniswapv3.Pool, error) {
	token0, token1, err := b.tokens(ctx, pool)
	if err != nil {
		return uniswapv3.Pool{}, err
	}
	fee, err := b.callBig(ctx, pool, "fee")
	if err != nil {
		return uniswapv3.Pool{}, err
	}
	tickSpacing, err := b.callBig(ctx, pool, "tickSpacing")
	if err != nil {
		return uniswapv3.Pool{}, err
	}
	liquidity, err := b.callBig(ctx, pool, "liquidity")
	if err != nil {
		return uniswapv3.Pool{}, err
	}
	slot0, err := b.call(ctx, pool, "slot0")
	if err != nil {
		return uniswapv3.Pool{}, err
	}
	sqrtPrice, ok0 := slot0[0].(*big.Int)
	tick, ok1 := slot0[1].(*big.Int)
	if !ok0 || !ok1 {
		return uniswapv3.Pool{}, fmt.Errorf("%w: slot0 returned %T, %T", engine.ErrVenueCallFailed, slot0[0], slot0[1])
	}

	return uniswapv3.Pool{
		Address:      pool,
		Token0:       token0,
		Token1:       token1,
		Fee:          uint32(fee.Uint64()),
		TickSpacing:  int32(tickSpacing.Int64()),
		Tick:         int32(tick.Int64()),
		Liquidity:    liquidity,
		SqrtPriceX96: sqrtPrice,
	}, nil
}

// Swap always fails: the backend has no signer and cannot move funds.
func (b *Backend) Swap(ctx context.Context, tx *ledger.Tx, params venues.SwapParams) (*big.Int, error) {
	b.logger.Warn("swap requested on read-only backend", "pool", params.Pool)
	return nil, fmt.Errorf("%w: backend is read-only", engine.ErrVenueCallFailed)
}
