// Package memory implements in-process AMM venues backed by a ledger. Pool addresses are derived with
// CREATE2 exactly as the real factories do, so addresses match their on-chain counterparts when the
// same factory and init code hash are used.
package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/defistate/dex-aggregator-go/engine"
	"github.com/defistate/dex-aggregator-go/ledger"
	"github.com/defistate/dex-aggregator-go/protocols/uniswapv2"
	uniswapv2calculator "github.com/defistate/dex-aggregator-go/protocols/uniswapv2/calculator"
	"github.com/defistate/dex-aggregator-go/protocols/uniswapv3"
	uniswapv3calculator "github.com/defistate/dex-aggregator-go/protocols/uniswapv3/calculator"
	"github.com/defistate/dex-aggregator-go/protocols/uniswapv3/calculator/tickmath"
	"github.com/defistate/dex-aggregator-go/venues"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrUnknownFactory  = errors.New("unknown factory")
	ErrIdenticalTokens = errors.New("identical tokens")
	ErrPoolExists      = errors.New("pool already exists")
	ErrUnsupportedFee  = errors.New("unsupported fee tier")
)

type factory struct {
	version      engine.Version
	initCodeHash common.Hash
}

type pairKey struct {
	factory common.Address
	token0  common.Address
	token1  common.Address
	fee     uint32
}

type Config struct {
	Ledger *ledger.Ledger
	Logger engine.Logger
}

func (c *Config) validate() error {
	if c.Ledger == nil {
		return errors.New("ledger cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("logger cannot be nil")
	}
	return nil
}

// Venue hosts any number of V2 and V3 factories and their pools.
//
// V2 reserves are the pair's ledger balances. V3 price state lives in the venue and is replaced
// when a swap's ledger transaction commits.
//
// Lock order: the ledger lock may be held while taking mu (commit hooks), so no method holds mu
// while calling into the ledger.
type Venue struct {
	mu        sync.RWMutex
	ledger    *ledger.Ledger
	logger    engine.Logger
	routers   map[common.Address]common.Address // router -> factory
	factories map[common.Address]factory
	pools     map[pairKey]common.Address
	v2Pairs   map[common.Address]uniswapv2.Pool // reserves are not stored
	v3Pools   map[common.Address]uniswapv3.Pool
}

var _ venues.Executor = (*Venue)(nil)

func NewVenue(cfg *Config) (*Venue, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Venue{
		ledger:    cfg.Ledger,
		logger:    cfg.Logger,
		routers:   make(map[common.Address]common.Address),
		factories: make(map[common.Address]factory),
		pools:     make(map[pairKey]common.Address),
		v2Pairs:   make(map[common.Address]uniswapv2.Pool),
		v3Pools:   make(map[common.Address]uniswapv3.Pool),
	}, nil
}

// --- Deployment ---

// DeployV2 registers a V2 factory reachable through router.
func (v *Venue) DeployV2(router, factoryAddr common.Address, initCodeHash common.Hash) error {
	return v.deploy(engine.VersionV2, router, factoryAddr, initCodeHash)
}

// DeployV3 registers a V3 factory reachable through router.
func (v *Venue) DeployV3(router, factoryAddr common.Address, initCodeHash common.Hash) error {
	return v.deploy(engine.VersionV3, router, factoryAddr, initCodeHash)
}

func (v *Venue) deploy(version engine.Version, router, factoryAddr common.Address, initCodeHash common.Hash) error {
	if router == (common.Address{}) || factoryAddr == (common.Address{}) {
		return engine.ErrInvalidAddress
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if existing, ok := v.factories[factoryAddr]; ok && existing.version != version {
		return fmt.Errorf("factory %s already deployed as %s", factoryAddr, existing.version)
	}
	if _, ok := v.routers[router]; ok {
		return fmt.Errorf("%w: router %s", engine.ErrAlreadyRegistered, router)
	}
	v.factories[factoryAddr] = factory{version: version, initCodeHash: initCodeHash}
	v.routers[router] = factoryAddr
	v.logger.Debug("deployed factory", "version", version.String(), "router", router, "factory", factoryAddr)
	return nil
}

// CreatePair deploys the V2 pair of tokenA and tokenB with the default 0.3% fee.
func (v *Venue) CreatePair(factoryAddr, tokenA, tokenB common.Address) (common.Address, error) {
	if tokenA == tokenB {
		return common.Address{}, ErrIdenticalTokens
	}
	token0, token1 := uniswapv2.SortTokens(tokenA, tokenB)
	if token0 == (common.Address{}) {
		return common.Address{}, engine.ErrInvalidAddress
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	f, ok := v.factories[factoryAddr]
	if !ok || f.version != engine.VersionV2 {
		return common.Address{}, fmt.Errorf("%w: %s is not a v2 factory", ErrUnknownFactory, factoryAddr)
	}
	key := pairKey{factory: factoryAddr, token0: token0, token1: token1}
	if _, ok := v.pools[key]; ok {
		return common.Address{}, ErrPoolExists
	}

	pair := uniswapv2.ComputePairAddress(factoryAddr, token0, token1, f.initCodeHash)
	v.pools[key] = pair
	v.v2Pairs[pair] = uniswapv2.Pool{
		Address: pair,
		Token0:  token0,
		Token1:  token1,
		FeeBps:  uniswapv2.DefaultFeeBps,
	}
	return pair, nil
}

// CreatePool deploys and initializes the V3 pool of tokenA and tokenB at a fee tier.
// The pool starts without liquidity.
func (v *Venue) CreatePool(factoryAddr, tokenA, tokenB common.Address, fee uint32, sqrtPriceX96 *big.Int) (common.Address, error) {
	if tokenA == tokenB {
		return common.Address{}, ErrIdenticalTokens
	}
	token0, token1 := uniswapv2.SortTokens(tokenA, tokenB)
	if token0 == (common.Address{}) {
		return common.Address{}, engine.ErrInvalidAddress
	}
	spacing := uniswapv3.TickSpacingForFee(fee)
	if spacing == 0 {
		return common.Address{}, fmt.Errorf("%w: %d", ErrUnsupportedFee, fee)
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return common.Address{}, errors.New("initial price must be positive")
	}
	price, err := toUint256(sqrtPriceX96)
	if err != nil {
		return common.Address{}, err
	}
	tick, err := tickmath.GetTickAtSqrtRatio(price)
	if err != nil {
		return common.Address{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	f, ok := v.factories[factoryAddr]
	if !ok || f.version != engine.VersionV3 {
		return common.Address{}, fmt.Errorf("%w: %s is not a v3 factory", ErrUnknownFactory, factoryAddr)
	}
	key := pairKey{factory: factoryAddr, token0: token0, token1: token1, fee: fee}
	if _, ok := v.pools[key]; ok {
		return common.Address{}, ErrPoolExists
	}

	addr := uniswapv3.ComputePoolAddress(factoryAddr, token0, token1, fee, f.initCodeHash)
	v.pools[key] = addr
	v.v3Pools[addr] = uniswapv3.Pool{
		Address:      addr,
		Token0:       token0,
		Token1:       token1,
		Fee:          fee,
		TickSpacing:  spacing,
		Tick:         tick,
		Liquidity:    new(big.Int),
		SqrtPriceX96: new(big.Int).Set(sqrtPriceX96),
	}
	return addr, nil
}

// SetLiquidity replaces the active liquidity and the initialized ticks of a V3 pool.
// Token balances backing the liquidity are funded separately through the ledger.
func (v *Venue) SetLiquidity(pool common.Address, liquidity *big.Int, ticks []uniswapv3.TickInfo) error {
	if liquidity == nil || liquidity.Sign() < 0 {
		return errors.New("liquidity must be non-negative")
	}
	sorted := slices.Clone(ticks)
	slices.SortFunc(sorted, func(a, b uniswapv3.TickInfo) int {
		return cmp.Compare(a.Index, b.Index)
	})

	v.mu.Lock()
	defer v.mu.Unlock()

	p, ok := v.v3Pools[pool]
	if !ok {
		return fmt.Errorf("%w: %s is not a v3 pool", engine.ErrVenueCallFailed, pool)
	}
	p.Liquidity = new(big.Int).Set(liquidity)
	p.Ticks = sorted
	v.v3Pools[pool] = p
	return nil
}

// --- venues.Backend ---

func (v *Venue) V2Factory(ctx context.Context, router common.Address) (common.Address, error) {
	return v.factoryFor(router, engine.VersionV2)
}

func (v *Venue) V3Factory(ctx context.Context, router common.Address) (common.Address, error) {
	return v.factoryFor(router, engine.VersionV3)
}

func (v *Venue) factoryFor(router common.Address, version engine.Version) (common.Address, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	f, ok := v.routers[router]
	if !ok || v.factories[f].version != version {
		return common.Address{}, fmt.Errorf("%w: %s is not a %s router", engine.ErrVenueCallFailed, router, version)
	}
	return f, nil
}

func (v *Venue) GetPair(ctx context.Context, factoryAddr, tokenA, tokenB common.Address) (common.Address, error) {
	token0, token1 := uniswapv2.SortTokens(tokenA, tokenB)

	v.mu.RLock()
	defer v.mu.RUnlock()

	if f, ok := v.factories[factoryAddr]; !ok || f.version != engine.VersionV2 {
		return common.Address{}, fmt.Errorf("%w: %s is not a v2 factory", engine.ErrVenueCallFailed, factoryAddr)
	}
	return v.pools[pairKey{factory: factoryAddr, token0: token0, token1: token1}], nil
}

func (v *Venue) GetPool(ctx context.Context, factoryAddr, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	token0, token1 := uniswapv2.SortTokens(tokenA, tokenB)

	v.mu.RLock()
	defer v.mu.RUnlock()

	if f, ok := v.factories[factoryAddr]; !ok || f.version != engine.VersionV3 {
		return common.Address{}, fmt.Errorf("%w: %s is not a v3 factory", engine.ErrVenueCallFailed, factoryAddr)
	}
	return v.pools[pairKey{factory: factoryAddr, token0: token0, token1: token1, fee: fee}], nil
}

func (v *Venue) PoolVersion(ctx context.Context, pool common.Address) (engine.Version, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if _, ok := v.v2Pairs[pool]; ok {
		return engine.VersionV2, nil
	}
	if _, ok := v.v3Pools[pool]; ok {
		return engine.VersionV3, nil
	}
	return engine.VersionNone, fmt.Errorf("%w: no pool at %s", engine.ErrVenueCallFailed, pool)
}

// V2Pool returns the pair with its reserves read from the committed ledger.
func (v *Venue) V2Pool(ctx context.Context, pool common.Address) (uniswapv2.Pool, error) {
	p, err := v.v2Pair(pool)
	if err != nil {
		return uniswapv2.Pool{}, err
	}
	reserves := v.ledger.BalancesOf(p.Address, p.Token0, p.Token1)
	p.Reserve0, p.Reserve1 = reserves[0], reserves[1]
	return p, nil
}

func (v *Venue) v2Pair(pool common.Address) (uniswapv2.Pool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	p, ok := v.v2Pairs[pool]
	if !ok {
		return uniswapv2.Pool{}, fmt.Errorf("%w: %s is not a v2 pair", engine.ErrVenueCallFailed, pool)
	}
	return p, nil
}

// V3Pool returns a snapshot of the pool. The snapshot shares its tick slice, which is never mutated.
func (v *Venue) V3Pool(ctx context.Context, pool common.Address) (uniswapv3.Pool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	p, ok := v.v3Pools[pool]
	if !ok {
		return uniswapv3.Pool{}, fmt.Errorf("%w: %s is not a v3 pool", engine.ErrVenueCallFailed, pool)
	}
	return p, nil
}

// --- venues.Executor ---

// Swap executes an exact-input swap, staging the payment and the payout on tx.
// Callers must serialise swaps: a V3 swap prices against the pool state at the time of the call.
func (v *Venue) Swap(ctx context.Context, tx *ledger.Tx, params venues.SwapParams) (*big.Int, error) {
	if params.AmountIn == nil || params.AmountIn.Sign() <= 0 {
		return nil, engine.ErrZeroAmount
	}
	version, err := v.PoolVersion(ctx, params.Pool)
	if err != nil {
		return nil, err
	}

	switch version {
	case engine.VersionV2:
		return v.swapV2(tx, params)
	default:
		return v.swapV3(ctx, tx, params)
	}
}

func (v *Venue) swapV2(tx *ledger.Tx, params venues.SwapParams) (*big.Int, error) {
	pair, err := v.v2Pair(params.Pool)
	if err != nil {
		return nil, err
	}
	pair.Reserve0 = tx.BalanceOf(pair.Token0, pair.Address)
	pair.Reserve1 = tx.BalanceOf(pair.Token1, pair.Address)

	amountOut, next, err := uniswapv2calculator.SimulateSwap(params.AmountIn, params.TokenIn, params.TokenOut, pair)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrVenueCallFailed, err)
	}
	if err := checkOutput(amountOut, params); err != nil {
		return nil, err
	}

	if err := tx.Transfer(params.TokenIn, params.Payer, pair.Address, params.AmountIn); err != nil {
		return nil, err
	}
	if err := tx.Transfer(params.TokenOut, pair.Address, params.Recipient, amountOut); err != nil {
		return nil, err
	}

	// the pair's balances must land exactly on the simulated reserves
	if tx.BalanceOf(pair.Token0, pair.Address).Cmp(next.Reserve0) != 0 ||
		tx.BalanceOf(pair.Token1, pair.Address).Cmp(next.Reserve1) != 0 {
		return nil, fmt.Errorf("%w: pair %s reserves diverged from the swap", engine.ErrVenueCallFailed, pair.Address)
	}
	return amountOut, nil
}

func (v *Venue) swapV3(ctx context.Context, tx *ledger.Tx, params venues.SwapParams) (*big.Int, error) {
	pool, err := v.V3Pool(ctx, params.Pool)
	if err != nil {
		return nil, err
	}
	if params.TokenIn == params.TokenOut || !pool.Has(params.TokenIn) || !pool.Has(params.TokenOut) {
		return nil, fmt.Errorf("%w: pool %s does not trade %s -> %s", engine.ErrVenueCallFailed, pool.Address, params.TokenIn, params.TokenOut)
	}

	amountOut, next, err := uniswapv3calculator.SimulateExactInSwap(params.AmountIn, nil, params.TokenIn, pool)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrVenueCallFailed, err)
	}
	if err := checkOutput(amountOut, params); err != nil {
		return nil, err
	}

	if err := tx.Transfer(params.TokenIn, params.Payer, pool.Address, params.AmountIn); err != nil {
		return nil, err
	}
	if err := tx.Transfer(params.TokenOut, pool.Address, params.Recipient, amountOut); err != nil {
		return nil, err
	}

	tx.OnCommit(func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.v3Pools[next.Address] = next
	})
	return amountOut, nil
}

func checkOutput(amountOut *big.Int, params venues.SwapParams) error {
	if amountOut.Sign() == 0 {
		return fmt.Errorf("%w: pool %s returns nothing for %s", engine.ErrInsufficientLiquidity, params.Pool, params.AmountIn)
	}
	if params.MinAmountOut != nil && amountOut.Cmp(params.MinAmountOut) < 0 {
		return fmt.Errorf("%w: got %s, want at least %s", engine.ErrSlippageExceeded, amountOut, params.MinAmountOut)
	}
	return nil
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, errors.New("value exceeds 256 bits")
	}
	return u, nil
}
