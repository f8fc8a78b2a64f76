// Package resolver maps routers and token pairs to pool addresses by asking the venues' factories.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/dex-aggregator-go/engine"
	"github.com/defistate/dex-aggregator-go/venues"
	"github.com/ethereum/go-ethereum/common"
)

// Resolver resolves pool addresses. The zero address means the venue has no pool for the pair;
// that is an answer, not an error.
type Resolver struct {
	backend venues.Backend
}

func New(backend venues.Backend) (*Resolver, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	return &Resolver{backend: backend}, nil
}

// ResolveV2Pool returns the pair of tokenA and tokenB on the factory behind router.
// Token order is irrelevant.
func (r *Resolver) ResolveV2Pool(ctx context.Context, router, tokenA, tokenB common.Address) (common.Address, error) {
	factory, err := r.backend.V2Factory(ctx, router)
	if err != nil {
		return common.Address{}, wrap(err, "v2 factory of router %s", router)
	}
	if factory == (common.Address{}) {
		return common.Address{}, nil
	}
	pair, err := r.backend.GetPair(ctx, factory, tokenA, tokenB)
	if err != nil {
		return common.Address{}, wrap(err, "getPair(%s, %s) on %s", tokenA, tokenB, factory)
	}
	return pair, nil
}

// ResolveV3Pool returns the pool of tokenA and tokenB at fee on factory.
func (r *Resolver) ResolveV3Pool(ctx context.Context, factory, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	pool, err := r.backend.GetPool(ctx, factory, tokenA, tokenB, fee)
	if err != nil {
		return common.Address{}, wrap(err, "getPool(%s, %s, %d) on %s", tokenA, tokenB, fee, factory)
	}
	return pool, nil
}

// ResolveV3PoolFromRouter looks up the factory behind router first.
func (r *Resolver) ResolveV3PoolFromRouter(ctx context.Context, router, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	factory, err := r.backend.V3Factory(ctx, router)
	if err != nil {
		return common.Address{}, wrap(err, "v3 factory of router %s", router)
	}
	if factory == (common.Address{}) {
		return common.Address{}, nil
	}
	return r.ResolveV3Pool(ctx, factory, tokenA, tokenB, fee)
}

// wrap tags backend failures with engine.ErrVenueCallFailed unless they already carry it.
func wrap(err error, format string, args ...any) error {
	detail := fmt.Sprintf(format, args...)
	if errors.Is(err, engine.ErrVenueCallFailed) {
		return fmt.Errorf("%s: %w", detail, err)
	}
	return fmt.Errorf("%w: %s: %v", engine.ErrVenueCallFailed, detail, err)
}
