package liquiditymath

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	maxUint128 = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)

	ErrLiquidityOverflow  = errors.New("liquidity overflow")
	ErrLiquidityUnderflow = errors.New("liquidity underflow")
)

// AddDelta applies a signed liquidityNet crossing to an unsigned liquidity value.
func AddDelta(x *uint256.Int, delta *big.Int) (*uint256.Int, error) {
	if delta == nil || delta.Sign() == 0 {
		return new(uint256.Int).Set(x), nil
	}

	abs, overflow := uint256.FromBig(new(big.Int).Abs(delta))
	if overflow {
		return nil, ErrLiquidityOverflow
	}

	if delta.Sign() < 0 {
		if x.Lt(abs) {
			return nil, ErrLiquidityUnderflow
		}
		return new(uint256.Int).Sub(x, abs), nil
	}

	sum, overflow := new(uint256.Int).AddOverflow(x, abs)
	if overflow || sum.Gt(maxUint128) {
		return nil, ErrLiquidityOverflow
	}
	return sum, nil
}
