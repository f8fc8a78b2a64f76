package uniswapv3

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Standard fee tiers in hundredths of a bip.
const (
	FeeTierLowest uint32 = 100
	FeeTierLow    uint32 = 500
	FeeTierMedium uint32 = 3000
	FeeTierHigh   uint32 = 10000
)

// TickSpacingForFee returns the canonical tick spacing of a fee tier, or 0 when the tier is unknown.
func TickSpacingForFee(fee uint32) int32 {
	switch fee {
	case FeeTierLowest:
		return 1
	case FeeTierLow:
		return 10
	case FeeTierMedium:
		return 60
	case FeeTierHigh:
		return 200
	}
	return 0
}

// TickInfo is an initialized tick. Only the liquidity fields matter for swap simulation.
type TickInfo struct {
	Index          int32    `json:"index"`
	LiquidityGross *big.Int `json:"liquidityGross"`
	LiquidityNet   *big.Int `json:"liquidityNet"`
}

// Pool is a snapshot of a concentrated-liquidity pool. Ticks must be sorted by Index.
type Pool struct {
	Address      common.Address `json:"address"`
	Token0       common.Address `json:"token0"`
	Token1       common.Address `json:"token1"`
	Fee          uint32         `json:"fee"`
	TickSpacing  int32          `json:"tickSpacing"`
	Tick         int32          `json:"tick"`
	Liquidity    *big.Int       `json:"liquidity"`
	SqrtPriceX96 *big.Int       `json:"sqrtPriceX96"`
	Ticks        []TickInfo     `json:"ticks,omitempty"`
}

// Has reports whether token is one side of the pool.
func (p Pool) Has(token common.Address) bool {
	return token == p.Token0 || token == p.Token1
}
