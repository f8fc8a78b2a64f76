// Package shopper finds the registered venue paying the most for an exact-input swap.
package shopper

import (
	"context"
	"errors"
	"math/big"

	"github.com/defistate/dex-aggregator-go/engine"
	"github.com/defistate/dex-aggregator-go/registry"
	"github.com/ethereum/go-ethereum/common"
)

// ViewSource supplies the registry snapshot a single rate shop runs against.
type ViewSource interface {
	View() *registry.View
}

// PoolResolver maps a router and token pair to a pool.
type PoolResolver interface {
	ResolveV2Pool(ctx context.Context, router, tokenA, tokenB common.Address) (common.Address, error)
	ResolveV3PoolFromRouter(ctx context.Context, router, tokenA, tokenB common.Address, fee uint32) (common.Address, error)
}

// Quoter prices an exact-input swap against one pool.
type Quoter interface {
	EstimateAmountOut(ctx context.Context, pool, tokenIn common.Address, amountIn *big.Int) (*big.Int, error)
}

// Outcome classifies a single venue's quote.
type Outcome string

const (
	OutcomeQuoted      Outcome = "quoted"
	OutcomeNoPool      Outcome = "no_pool"
	OutcomeUnsupported Outcome = "unsupported"
	OutcomeZero        Outcome = "zero"
	OutcomeFailed      Outcome = "failed"
)

// VenueQuote is one router's answer during a rate shop.
type VenueQuote struct {
	Router    common.Address
	Version   engine.Version
	Pool      common.Address
	AmountOut *big.Int
	Outcome   Outcome
	Err       error
}

type Shopper struct {
	views    ViewSource
	resolver PoolResolver
	quoter   Quoter
	logger   engine.Logger
}

func New(views ViewSource, resolver PoolResolver, quoter Quoter, logger engine.Logger) (*Shopper, error) {
	if views == nil || resolver == nil || quoter == nil {
		return nil, errors.New("views, resolver and quoter are required")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Shopper{views: views, resolver: resolver, quoter: quoter, logger: logger}, nil
}

// Quotes asks every registered router for a quote: V2 routers first, then V3 routers, each in
// registration order. V3 pools are looked up at feeTierHint. Venue failures are recorded on the
// quote and never abort the shop.
func (s *Shopper) Quotes(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, feeTierHint uint32) []VenueQuote {
	view := s.views.View()
	quotes := make([]VenueQuote, 0, len(view.V2Routers)+len(view.V3Routers))

	for _, router := range view.V2Routers {
		pool, err := s.resolver.ResolveV2Pool(ctx, router, tokenIn, tokenOut)
		quotes = append(quotes, s.quote(ctx, view, router, engine.VersionV2, pool, err, tokenIn, amountIn))
	}
	for _, router := range view.V3Routers {
		pool, err := s.resolver.ResolveV3PoolFromRouter(ctx, router, tokenIn, tokenOut, feeTierHint)
		quotes = append(quotes, s.quote(ctx, view, router, engine.VersionV3, pool, err, tokenIn, amountIn))
	}
	return quotes
}

func (s *Shopper) quote(
	ctx context.Context,
	view *registry.View,
	router common.Address,
	version engine.Version,
	pool common.Address,
	resolveErr error,
	tokenIn common.Address,
	amountIn *big.Int,
) VenueQuote {
	q := VenueQuote{Router: router, Version: version, Pool: pool, AmountOut: new(big.Int)}
	switch {
	case resolveErr != nil:
		q.Outcome, q.Err = OutcomeFailed, resolveErr
	case pool == (common.Address{}):
		q.Outcome = OutcomeNoPool
	case !view.IsPoolSupported(pool):
		q.Outcome = OutcomeUnsupported
	default:
		out, err := s.quoter.EstimateAmountOut(ctx, pool, tokenIn, amountIn)
		switch {
		case err != nil:
			q.Outcome, q.Err = OutcomeFailed, err
		case out.Sign() == 0:
			q.Outcome = OutcomeZero
		default:
			q.Outcome, q.AmountOut = OutcomeQuoted, out
		}
	}
	if q.Err != nil {
		s.logger.Debug("venue skipped", "router", router, "version", version.String(), "error", q.Err)
	}
	return q
}

// Best picks the highest quote. A later venue must strictly beat the current best, so ties go to
// the venue asked first. Without any positive quote the zero-filled result is returned.
func Best(quotes []VenueQuote) engine.QuoteResult {
	best := engine.NoQuote()
	for _, q := range quotes {
		if q.Outcome != OutcomeQuoted {
			continue
		}
		if q.AmountOut.Cmp(best.AmountOut) > 0 {
			best = engine.QuoteResult{Venue: q.Router, Version: q.Version, AmountOut: q.AmountOut}
		}
	}
	return best
}

// GetBestRate returns the venue paying the most for amountIn of tokenIn. It does not mutate any
// state, so repeated calls against unchanged venues return identical results.
func (s *Shopper) GetBestRate(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, feeTierHint uint32) engine.QuoteResult {
	return Best(s.Quotes(ctx, tokenIn, tokenOut, amountIn, feeTierHint))
}
