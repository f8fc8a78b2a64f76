package venues

import (
	"context"
	"math/big"

	"github.com/defistate/dex-aggregator-go/engine"
	"github.com/defistate/dex-aggregator-go/ledger"
	"github.com/defistate/dex-aggregator-go/protocols/uniswapv2"
	"github.com/defistate/dex-aggregator-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
)

// Backend is the read surface of the AMM venues: factory lookups and pool state.
//
// Lookups that find nothing return the zero address and a nil error. Errors are reserved for
// failed calls, such as asking a V2 pair for V3 state.
type Backend interface {
	// V2Factory returns the factory a V2 router swaps through.
	V2Factory(ctx context.Context, router common.Address) (common.Address, error)
	// V3Factory returns the factory a V3 router swaps through.
	V3Factory(ctx context.Context, router common.Address) (common.Address, error)
	// GetPair returns the V2 pair of an unordered token pair.
	GetPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error)
	// GetPool returns the V3 pool of an unordered token pair at a fee tier.
	GetPool(ctx context.Context, factory, tokenA, tokenB common.Address, fee uint32) (common.Address, error)
	// PoolVersion reports which pool family pool belongs to.
	PoolVersion(ctx context.Context, pool common.Address) (engine.Version, error)
	V2Pool(ctx context.Context, pool common.Address) (uniswapv2.Pool, error)
	V3Pool(ctx context.Context, pool common.Address) (uniswapv3.Pool, error)
}

// SwapParams describes one exact-input swap against a single pool.
type SwapParams struct {
	Pool         common.Address
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	// Payer funds AmountIn; Recipient receives the output.
	Payer     common.Address
	Recipient common.Address
}

// Executor is a Backend that can also execute swaps. Every balance movement of a swap is staged
// on tx, so a swap is only observable once tx commits.
type Executor interface {
	Backend
	// Swap returns the output amount. It fails with engine.ErrSlippageExceeded when the output
	// would be below MinAmountOut.
	Swap(ctx context.Context, tx *ledger.Tx, params SwapParams) (*big.Int, error)
}
