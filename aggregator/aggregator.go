// Package aggregator wires the venue registry, pool resolver, quote engine, rate shopper, fee
// splitter and swap executor into a single DEX aggregator.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/dex-aggregator-go/engine"
	"github.com/defistate/dex-aggregator-go/executor"
	"github.com/defistate/dex-aggregator-go/fees"
	"github.com/defistate/dex-aggregator-go/ledger"
	"github.com/defistate/dex-aggregator-go/protocols/uniswapv3"
	"github.com/defistate/dex-aggregator-go/quote"
	"github.com/defistate/dex-aggregator-go/registry"
	"github.com/defistate/dex-aggregator-go/resolver"
	"github.com/defistate/dex-aggregator-go/shopper"
	"github.com/defistate/dex-aggregator-go/venues"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrSwapsDisabled is returned by SwapNativeForToken when the aggregator has no ledger.
var ErrSwapsDisabled = errors.New("swaps are disabled")

// DefaultFeeTier is the V3 fee tier GetBestRate uses when the caller gives no hint.
const DefaultFeeTier = uniswapv3.FeeTierMedium

type Config struct {
	Owner         common.Address
	WrappedNative common.Address
	// Account is the aggregator's own ledger account. Required when Ledger is set.
	Account common.Address
	Fees    fees.Config
	// Initial registry state.
	V2Routers      []common.Address
	V3Routers      []common.Address
	SupportedPools []common.Address
	// DefaultFeeTier replaces a zero fee tier hint. Zero selects DefaultFeeTier.
	DefaultFeeTier uint32
	Backend        venues.Executor
	// Ledger holds balances for swap execution. Without one the aggregator only quotes.
	Ledger   *ledger.Ledger
	Registry prometheus.Registerer
	Logger   engine.Logger
}

func (c *Config) validate() error {
	if c.WrappedNative == (common.Address{}) {
		return fmt.Errorf("%w: wrapped native", engine.ErrInvalidAddress)
	}
	if c.Backend == nil {
		return errors.New("config: Backend cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.DefaultFeeTier != 0 && uniswapv3.TickSpacingForFee(c.DefaultFeeTier) == 0 {
		return fmt.Errorf("config: unknown fee tier %d", c.DefaultFeeTier)
	}
	return c.Fees.Validate()
}

// Aggregator is the public surface of the DEX aggregator. It is safe for concurrent use; swaps
// are serialised.
type Aggregator struct {
	registry *registry.System
	resolver *resolver.Resolver
	quotes   *quote.Engine
	shopper  *shopper.Shopper
	fees     *fees.Splitter
	executor *executor.Executor

	wrappedNative common.Address
	feeTier       uint32
	metrics       *Metrics
	logger        engine.Logger

	registryFeed event.Feed
	swapFeed     event.Feed
	scope        event.SubscriptionScope
}

func New(cfg *Config) (*Aggregator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	a := &Aggregator{
		wrappedNative: cfg.WrappedNative,
		feeTier:       cfg.DefaultFeeTier,
		metrics:       NewMetrics(cfg.Registry),
		logger:        cfg.Logger,
	}
	if a.feeTier == 0 {
		a.feeTier = DefaultFeeTier
	}

	var err error
	a.registry, err = registry.NewSystem(&registry.Config{
		Owner:          cfg.Owner,
		V2Routers:      cfg.V2Routers,
		V3Routers:      cfg.V3Routers,
		SupportedPools: cfg.SupportedPools,
		OnChange:       a.onRegistryChanged,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	if a.resolver, err = resolver.New(cfg.Backend); err != nil {
		return nil, err
	}
	if a.quotes, err = quote.NewEngine(cfg.Backend, cfg.Logger); err != nil {
		return nil, err
	}
	if a.shopper, err = shopper.New(a.registry, a.resolver, a.quotes, cfg.Logger); err != nil {
		return nil, err
	}
	if a.fees, err = fees.NewSplitter(cfg.Fees); err != nil {
		return nil, err
	}

	if cfg.Ledger != nil {
		a.executor, err = executor.New(&executor.Config{
			Ledger:        cfg.Ledger,
			Venue:         cfg.Backend,
			Whitelist:     a.registry,
			States:        a.quotes,
			Fees:          a.fees,
			WrappedNative: cfg.WrappedNative,
			Account:       cfg.Account,
			OnSwap:        a.onSwapCompleted,
			Logger:        cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create executor: %w", err)
		}
	}

	a.updateRegistryGauges()
	a.logger.Info("aggregator ready",
		"v2Routers", len(cfg.V2Routers),
		"v3Routers", len(cfg.V3Routers),
		"swaps", a.executor != nil,
	)
	return a, nil
}

// Close ends every subscription.
func (a *Aggregator) Close() {
	a.scope.Close()
}

// --- Notifications ---

// SubscribeRegistryChanged delivers every registry mutation to ch. Slow receivers block mutations.
func (a *Aggregator) SubscribeRegistryChanged(ch chan<- engine.RegistryChanged) event.Subscription {
	return a.scope.Track(a.registryFeed.Subscribe(ch))
}

// SubscribeSwapCompleted delivers every committed swap to ch. Slow receivers block swaps.
func (a *Aggregator) SubscribeSwapCompleted(ch chan<- engine.SwapCompleted) event.Subscription {
	return a.scope.Track(a.swapFeed.Subscribe(ch))
}

func (a *Aggregator) onRegistryChanged(ev engine.RegistryChanged) {
	a.updateRegistryGauges()
	a.registryFeed.Send(ev)
}

func (a *Aggregator) onSwapCompleted(ev engine.SwapCompleted) {
	a.swapFeed.Send(ev)
}

func (a *Aggregator) updateRegistryGauges() {
	if a.registry == nil {
		return
	}
	view := a.registry.View()
	a.metrics.routers.WithLabelValues(engine.VersionV2.String()).Set(float64(len(view.V2Routers)))
	a.metrics.routers.WithLabelValues(engine.VersionV3.String()).Set(float64(len(view.V3Routers)))
	a.metrics.supportedPools.Set(float64(len(view.SupportedPools)))
}

// --- Venue Registry ---

func (a *Aggregator) AddV2Router(caller, router common.Address) error {
	return a.registry.AddV2Router(caller, router)
}

func (a *Aggregator) RemoveV2Router(caller common.Address, index int) error {
	return a.registry.RemoveV2Router(caller, index)
}

func (a *Aggregator) AddV3Router(caller, router common.Address) error {
	return a.registry.AddV3Router(caller, router)
}

func (a *Aggregator) RemoveV3Router(caller common.Address, index int) error {
	return a.registry.RemoveV3Router(caller, index)
}

func (a *Aggregator) AddSupportedPool(caller, pool common.Address) error {
	return a.registry.AddSupportedPool(caller, pool)
}

func (a *Aggregator) RemoveSupportedPool(caller, pool common.Address) error {
	return a.registry.RemoveSupportedPool(caller, pool)
}

func (a *Aggregator) TransferOwnership(caller, newOwner common.Address) error {
	return a.registry.TransferOwnership(caller, newOwner)
}

func (a *Aggregator) Owner() common.Address {
	return a.registry.Owner()
}

func (a *Aggregator) IsPoolSupported(pool common.Address) bool {
	return a.registry.IsPoolSupported(pool)
}

func (a *Aggregator) SupportedV2Routers() []common.Address {
	return a.registry.SupportedV2Routers()
}

func (a *Aggregator) SupportedV3Routers() []common.Address {
	return a.registry.SupportedV3Routers()
}

func (a *Aggregator) SupportedPools() []common.Address {
	return a.registry.SupportedPools()
}

// --- Pool Resolver ---

// GetV2PoolFromRouter returns the pair of tokenA and tokenB on router's factory, or the zero address.
func (a *Aggregator) GetV2PoolFromRouter(ctx context.Context, router, tokenA, tokenB common.Address) (common.Address, error) {
	return a.resolver.ResolveV2Pool(ctx, router, tokenA, tokenB)
}

// GetV3PoolFromFactory returns the pool of tokenA and tokenB at fee, or the zero address.
func (a *Aggregator) GetV3PoolFromFactory(ctx context.Context, factory, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	return a.resolver.ResolveV3Pool(ctx, factory, tokenA, tokenB, fee)
}

// GetV3PoolFromRouter resolves router's factory first, then the pool at fee.
func (a *Aggregator) GetV3PoolFromRouter(ctx context.Context, router, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	return a.resolver.ResolveV3PoolFromRouter(ctx, router, tokenA, tokenB, fee)
}

// --- Quoting ---

// EstimateAmountOut quotes a single pool. Illiquid pools quote zero.
func (a *Aggregator) EstimateAmountOut(ctx context.Context, pool, tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	return a.quotes.EstimateAmountOut(ctx, pool, tokenIn, amountIn)
}

// EstimateAmountIn returns the input of tokenIn needed to receive exactly amountOut from pool.
// It fails with engine.ErrInsufficientLiquidity when the pool cannot pay amountOut.
func (a *Aggregator) EstimateAmountIn(ctx context.Context, pool, tokenIn common.Address, amountOut *big.Int) (*big.Int, error) {
	return a.quotes.EstimateAmountIn(ctx, pool, tokenIn, amountOut)
}

// GetBestRate shops every registered venue. A zero feeTierHint selects the configured default tier.
func (a *Aggregator) GetBestRate(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, feeTierHint uint32) engine.QuoteResult {
	timer := prometheus.NewTimer(a.metrics.bestRateLatency)
	defer timer.ObserveDuration()

	if feeTierHint == 0 {
		feeTierHint = a.feeTier
	}
	quotes := a.shopper.Quotes(ctx, tokenIn, tokenOut, amountIn, feeTierHint)
	for _, q := range quotes {
		a.metrics.venueQuotes.WithLabelValues(q.Version.String(), string(q.Outcome)).Inc()
	}
	return shopper.Best(quotes)
}

// --- Swap Execution ---

// SwapNativeForToken executes req atomically. See executor.Executor.
func (a *Aggregator) SwapNativeForToken(ctx context.Context, req engine.SwapRequest) (engine.SwapReceipt, error) {
	if a.executor == nil {
		return engine.SwapReceipt{}, ErrSwapsDisabled
	}
	receipt, err := a.executor.SwapNativeForToken(ctx, req)
	if err != nil {
		a.metrics.swaps.WithLabelValues(engine.VersionNone.String(), swapResult(err)).Inc()
		return engine.SwapReceipt{}, err
	}
	a.metrics.swaps.WithLabelValues(receipt.Version.String(), "ok").Inc()
	addWei(a.metrics.feesCollected.WithLabelValues("system"), receipt.SystemFee)
	addWei(a.metrics.feesCollected.WithLabelValues("partner"), receipt.PartnerFee)
	return receipt, nil
}

var swapErrors = []struct {
	err   error
	label string
}{
	{engine.ErrZeroAmount, "zero_amount"},
	{engine.ErrUnsupportedPool, "unsupported_pool"},
	{engine.ErrSlippageExceeded, "slippage_exceeded"},
	{engine.ErrFeeTransferFailed, "fee_transfer_failed"},
	{engine.ErrInsufficientLiquidity, "insufficient_liquidity"},
	{engine.ErrInsufficientBalance, "insufficient_balance"},
	{engine.ErrVenueCallFailed, "venue_call_failed"},
}

func swapResult(err error) string {
	for _, e := range swapErrors {
		if errors.Is(err, e.err) {
			return e.label
		}
	}
	return "error"
}

// --- Fee Configuration ---

func (a *Aggregator) WrappedNative() common.Address {
	return a.wrappedNative
}

func (a *Aggregator) Partner() common.Address {
	return a.fees.Config().Partner
}

func (a *Aggregator) SystemFeeReceiver() common.Address {
	return a.fees.Config().SystemFeeReceiver
}

func (a *Aggregator) PartnerFeeReceiver() common.Address {
	return a.fees.Config().PartnerFeeReceiver
}

func (a *Aggregator) PartnerFeeNumerator() uint16 {
	return a.fees.Config().PartnerFeeNumerator
}

func (a *Aggregator) SystemFeeNumerator() uint16 {
	return a.fees.Config().SystemFeeNumerator
}

// SplitFee applies the current fee schedule to grossAmountIn.
func (a *Aggregator) SplitFee(grossAmountIn *big.Int) (systemFee, partnerFee, netAmountIn *big.Int) {
	return a.fees.Split(grossAmountIn)
}

// SetPartnerFeeNumerator changes the partner's cut. Owner only.
func (a *Aggregator) SetPartnerFeeNumerator(caller common.Address, numerator uint16) error {
	if err := a.authorize(caller); err != nil {
		return err
	}
	if err := a.fees.SetPartnerFeeNumerator(numerator); err != nil {
		return err
	}
	a.logger.Info("partner fee changed", "numerator", numerator)
	return nil
}

// SetFeeReceivers replaces the partner and both fee receivers. Owner only.
func (a *Aggregator) SetFeeReceivers(caller, partner, systemFeeReceiver, partnerFeeReceiver common.Address) error {
	if err := a.authorize(caller); err != nil {
		return err
	}
	if err := a.fees.SetReceivers(partner, systemFeeReceiver, partnerFeeReceiver); err != nil {
		return err
	}
	a.logger.Info("fee receivers changed",
		"partner", partner,
		"systemFeeReceiver", systemFeeReceiver,
		"partnerFeeReceiver", partnerFeeReceiver,
	)
	return nil
}

func (a *Aggregator) authorize(caller common.Address) error {
	if owner := a.registry.Owner(); caller != owner {
		return fmt.Errorf("%w: %s", engine.ErrUnauthorized, caller)
	}
	return nil
}
