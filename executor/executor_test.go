package executor

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/dex-aggregator-go/engine"
	"github.com/defistate/dex-aggregator-go/fees"
	"github.com/defistate/dex-aggregator-go/ledger"
	"github.com/defistate/dex-aggregator-go/protocols/uniswapv2"
	"github.com/defistate/dex-aggregator-go/protocols/uniswapv3"
	"github.com/defistate/dex-aggregator-go/quote"
	"github.com/defistate/dex-aggregator-go/registry"
	"github.com/defistate/dex-aggregator-go/venues/memory"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner      = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	aggregator = common.HexToAddress("0x00000000000000000000000000000000000a6600")
	trader     = common.HexToAddress("0x0000000000000000000000000000000000007777")

	partner         = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	systemReceiver  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	partnerReceiver = common.HexToAddress("0x00000000000000000000000000000000000000a3")

	weth = common.HexToAddress("0x4200000000000000000000000000000000000006")
	usdc = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	dai  = common.HexToAddress("0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb")

	v2Router  = common.HexToAddress("0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24")
	v2Factory = common.HexToAddress("0x8909Dc15e40173Ff4699343b6eB8132c65e18eC6")
	v3Router  = common.HexToAddress("0x2626664c2603336E57B271c5C0b26F421741e481")
	v3Factory = common.HexToAddress("0x33128a8fC17869897dcE68Ed026d694621f6FDfD")

	oneEther = big.NewInt(1_000_000_000_000_000_000)
)

func bigString(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid big.Int literal " + s)
	}
	return n
}

type fixture struct {
	ledger   *ledger.Ledger
	venue    *memory.Venue
	registry *registry.System
	engine   *quote.Engine
	fees     *fees.Splitter
	pair     common.Address
	pool     common.Address
	events   []engine.SwapCompleted
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{ledger: ledger.New()}

	var err error
	f.venue, err = memory.NewVenue(&memory.Config{Ledger: f.ledger, Logger: logger})
	require.NoError(t, err)
	require.NoError(t, f.venue.DeployV2(v2Router, v2Factory, uniswapv2.UniswapInitCodeHash))
	require.NoError(t, f.venue.DeployV3(v3Router, v3Factory, uniswapv3.UniswapPoolInitCodeHash))

	f.pair, err = f.venue.CreatePair(v2Factory, weth, usdc)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Mint(weth, f.pair, bigString("1000000000000000000000")))
	require.NoError(t, f.ledger.Mint(usdc, f.pair, big.NewInt(3_000_000_000_000)))

	f.pool, err = f.venue.CreatePool(v3Factory, weth, usdc, uniswapv3.FeeTierMedium, bigString("4338712821394260318376764"))
	require.NoError(t, err)
	require.NoError(t, f.venue.SetLiquidity(f.pool, bigString("200000000000000000"), nil))
	require.NoError(t, f.ledger.Mint(usdc, f.pool, big.NewInt(1_000_000_000_000)))

	f.registry, err = registry.NewSystem(&registry.Config{
		Owner:          owner,
		V2Routers:      []common.Address{v2Router},
		V3Routers:      []common.Address{v3Router},
		SupportedPools: []common.Address{f.pair, f.pool},
		Logger:         logger,
	})
	require.NoError(t, err)

	f.engine, err = quote.NewEngine(f.venue, logger)
	require.NoError(t, err)

	f.fees, err = fees.NewSplitter(fees.Config{
		Partner:             partner,
		PartnerFeeNumerator: 50,
		SystemFeeNumerator:  50,
		SystemFeeReceiver:   systemReceiver,
		PartnerFeeReceiver:  partnerReceiver,
	})
	require.NoError(t, err)

	require.NoError(t, f.ledger.Mint(engine.NativeAsset, trader, oneEther))
	return f
}

func (f *fixture) executor(t *testing.T, states StateReader) *Executor {
	t.Helper()
	if states == nil {
		states = f.engine
	}
	e, err := New(&Config{
		Ledger:        f.ledger,
		Venue:         f.venue,
		Whitelist:     f.registry,
		States:        states,
		Fees:          f.fees,
		WrappedNative: weth,
		Account:       aggregator,
		OnSwap:        func(ev engine.SwapCompleted) { f.events = append(f.events, ev) },
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) balance(token, account common.Address) string {
	return f.ledger.BalanceOf(token, account).String()
}

// assertUntouched checks that a failed swap left no trace.
func (f *fixture) assertUntouched(t *testing.T) {
	t.Helper()
	assert.Equal(t, oneEther.String(), f.balance(engine.NativeAsset, trader))
	assert.Equal(t, "0", f.balance(engine.NativeAsset, systemReceiver))
	assert.Equal(t, "0", f.balance(engine.NativeAsset, partnerReceiver))
	assert.Equal(t, "0", f.balance(engine.NativeAsset, aggregator))
	assert.Equal(t, "0", f.balance(weth, aggregator))
	assert.Equal(t, "0", f.balance(usdc, trader))
	assert.Equal(t, "1000000000000", f.balance(usdc, f.pool))
	assert.Empty(t, f.events)
}

func TestNewValidation(t *testing.T) {
	f := newFixture(t)
	_, err := New(&Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.Error(t, err)

	_, err = New(&Config{
		Ledger:    f.ledger,
		Venue:     f.venue,
		Whitelist: f.registry,
		States:    f.engine,
		Fees:      f.fees,
		Account:   aggregator,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	assert.ErrorIs(t, err, engine.ErrInvalidAddress)
}

func TestMinAmountOut(t *testing.T) {
	assert.Equal(t, "2929616910", MinAmountOut(big.NewInt(2959209000), 100).String())
	assert.Equal(t, "2959209000", MinAmountOut(big.NewInt(2959209000), 0).String())
	assert.Equal(t, "0", MinAmountOut(big.NewInt(2959209000), 10000).String())
	assert.Equal(t, "0", MinAmountOut(new(big.Int), 100).String())
}

func TestSwapNativeForTokenV3(t *testing.T) {
	f := newFixture(t)
	e := f.executor(t, nil)

	receipt, err := e.SwapNativeForToken(context.Background(), engine.SwapRequest{
		Caller:               trader,
		Pool:                 f.pool,
		TokenOut:             usdc,
		SlippageToleranceBps: 100,
		GrossAmountIn:        oneEther,
	})
	require.NoError(t, err)

	assert.Equal(t, engine.VersionV3, receipt.Version)
	assert.Equal(t, "5000000000000000", receipt.SystemFee.String())
	assert.Equal(t, "5000000000000000", receipt.PartnerFee.String())
	assert.Equal(t, "990000000000000000", receipt.AmountIn.String())
	assert.Equal(t, "2959209000", receipt.ExpectedOut.String())
	assert.Equal(t, "2929616910", receipt.MinAmountOut.String())
	assert.Equal(t, "2959209000", receipt.AmountOut.String())
	assert.GreaterOrEqual(t, receipt.AmountOut.Cmp(receipt.MinAmountOut), 0)

	assert.Equal(t, "0", f.balance(engine.NativeAsset, trader))
	assert.Equal(t, "5000000000000000", f.balance(engine.NativeAsset, systemReceiver))
	assert.Equal(t, "5000000000000000", f.balance(engine.NativeAsset, partnerReceiver))
	assert.Equal(t, "2959209000", f.balance(usdc, trader))
	// wrapped native is backed 1:1 and ends up in the pool
	assert.Equal(t, "990000000000000000", f.balance(engine.NativeAsset, weth))
	assert.Equal(t, "990000000000000000", f.balance(weth, f.pool))
	// nothing sticks to the aggregator
	assert.Equal(t, "0", f.balance(engine.NativeAsset, aggregator))
	assert.Equal(t, "0", f.balance(weth, aggregator))
	assert.Equal(t, "0", f.balance(usdc, aggregator))

	state, err := f.venue.V3Pool(context.Background(), f.pool)
	require.NoError(t, err)
	assert.Equal(t, "4337540557936038697873018", state.SqrtPriceX96.String())

	require.Len(t, f.events, 1)
	assert.Equal(t, engine.SwapCompleted{
		Caller:     trader,
		Pool:       f.pool,
		Version:    engine.VersionV3,
		AmountIn:   receipt.AmountIn,
		AmountOut:  receipt.AmountOut,
		SystemFee:  receipt.SystemFee,
		PartnerFee: receipt.PartnerFee,
	}, f.events[0])
}

func TestSwapNativeForTokenV2(t *testing.T) {
	f := newFixture(t)
	receipt, err := f.executor(t, nil).SwapNativeForToken(context.Background(), engine.SwapRequest{
		Caller:               trader,
		Pool:                 f.pair,
		TokenOut:             usdc,
		SlippageToleranceBps: 50,
		GrossAmountIn:        oneEther,
	})
	require.NoError(t, err)
	assert.Equal(t, engine.VersionV2, receipt.Version)
	assert.Equal(t, "2958170197", receipt.AmountOut.String())
	assert.Equal(t, "2958170197", f.balance(usdc, trader))
	assert.Equal(t, "1000990000000000000000", f.balance(weth, f.pair))
}

func TestSwapRejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	e := f.executor(t, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     engine.SwapRequest
		wantErr error
	}{
		{"zero amount", engine.SwapRequest{Caller: trader, Pool: f.pool, TokenOut: usdc, GrossAmountIn: new(big.Int)}, engine.ErrZeroAmount},
		{"nil amount", engine.SwapRequest{Caller: trader, Pool: f.pool, TokenOut: usdc}, engine.ErrZeroAmount},
		{"slippage above 100%", engine.SwapRequest{Caller: trader, Pool: f.pool, TokenOut: usdc, SlippageToleranceBps: 10001, GrossAmountIn: oneEther}, ErrInvalidSlippage},
		{"unsupported pool", engine.SwapRequest{Caller: trader, Pool: dai, TokenOut: usdc, GrossAmountIn: oneEther}, engine.ErrUnsupportedPool},
		{"wrong output token", engine.SwapRequest{Caller: trader, Pool: f.pool, TokenOut: dai, GrossAmountIn: oneEther}, engine.ErrUnsupportedPool},
		{"caller cannot pay", engine.SwapRequest{Caller: trader, Pool: f.pool, TokenOut: usdc, GrossAmountIn: new(big.Int).Add(oneEther, big.NewInt(1))}, engine.ErrInsufficientBalance},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.SwapNativeForToken(ctx, tc.req)
			assert.ErrorIs(t, err, tc.wantErr)
			f.assertUntouched(t)
		})
	}
}

func TestSwapRevertsWhenFeeTransferFails(t *testing.T) {
	f := newFixture(t)
	f.ledger.RejectIncoming(engine.NativeAsset, partnerReceiver)

	_, err := f.executor(t, nil).SwapNativeForToken(context.Background(), engine.SwapRequest{
		Caller:               trader,
		Pool:                 f.pool,
		TokenOut:             usdc,
		SlippageToleranceBps: 100,
		GrossAmountIn:        oneEther,
	})
	assert.ErrorIs(t, err, engine.ErrFeeTransferFailed)
	assert.ErrorContains(t, err, "partner fee")
	// the system fee was staged before the failure and must not be observable
	f.assertUntouched(t)
}

// optimisticStates reports more liquidity than the pool really has, so quotes overshoot.
type optimisticStates struct {
	StateReader
}

func (s optimisticStates) State(ctx context.Context, pool common.Address) (quote.PoolState, error) {
	state, err := s.StateReader.State(ctx, pool)
	if err != nil || state.V3 == nil {
		return state, err
	}
	inflated := *state.V3
	inflated.Liquidity = bigString("500000000000000000")
	return quote.V3State(inflated), nil
}

func TestSwapEnforcesSlippage(t *testing.T) {
	f := newFixture(t)
	req := engine.SwapRequest{
		Caller:        trader,
		Pool:          f.pool,
		TokenOut:      usdc,
		GrossAmountIn: oneEther,
	}

	_, err := f.executor(t, optimisticStates{f.engine}).SwapNativeForToken(context.Background(), req)
	assert.ErrorIs(t, err, engine.ErrSlippageExceeded)
	f.assertUntouched(t)

	state, err := f.venue.V3Pool(context.Background(), f.pool)
	require.NoError(t, err)
	assert.Equal(t, "4338712821394260318376764", state.SqrtPriceX96.String(), "a reverted swap must not move the price")

	// a 1% tolerance absorbs the overshoot
	req.SlippageToleranceBps = 100
	receipt, err := f.executor(t, optimisticStates{f.engine}).SwapNativeForToken(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "2959688802", receipt.ExpectedOut.String())
	assert.Equal(t, "2930091913", receipt.MinAmountOut.String())
	assert.Equal(t, "2959209000", receipt.AmountOut.String())
}
