package swapmath

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var (
	q96              = uint256.MustFromDecimal("79228162514264337593543950336")
	priceTickMinus60 = uint256.MustFromDecimal("78990846045029531151608375686")
	priceTickPlus60  = uint256.MustFromDecimal("79466191966197645195421774833")
	oneEther         = uint256.MustFromDecimal("1000000000000000000")
	milliEther       = uint256.MustFromDecimal("1000000000000000")
)

func TestComputeSwapStep(t *testing.T) {
	testCases := []struct {
		name            string
		target          *uint256.Int
		amountRemaining *uint256.Int
		exactIn         bool
		next            string
		amountIn        string
		amountOut       string
		fee             string
	}{
		{
			name:            "exact in zero for one within range",
			target:          priceTickMinus60,
			amountRemaining: milliEther,
			exactIn:         true,
			next:            "79149250711305166342700278159",
			amountIn:        "997000000000000",
			amountOut:       "996006981039903",
			fee:             "3000000000000",
		},
		{
			name:            "exact in one for zero within range",
			target:          priceTickPlus60,
			amountRemaining: milliEther,
			exactIn:         true,
			next:            "79307152992291059138124713654",
			amountIn:        "997000000000000",
			amountOut:       "996006981039903",
			fee:             "3000000000000",
		},
		{
			name:            "exact in reaches target",
			target:          priceTickMinus60,
			amountRemaining: oneEther,
			exactIn:         true,
			next:            "78990846045029531151608375686",
			amountIn:        "3004354062741926",
			amountOut:       "2995354955910780",
			fee:             "9040182736436",
		},
		{
			name:            "exact out zero for one within range",
			target:          priceTickMinus60,
			amountRemaining: milliEther,
			exactIn:         false,
			next:            "79148934351750073255950406385",
			amountIn:        "1001001001001002",
			amountOut:       "1000000000000000",
			fee:             "3012039120365",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := ComputeSwapStep(q96, tc.target, oneEther, tc.amountRemaining, tc.exactIn, 3000)
			require.NoError(t, err)
			assert.Equal(t, tc.next, res.SqrtRatioNextX96.Dec())
			assert.Equal(t, tc.amountIn, res.AmountIn.Dec())
			assert.Equal(t, tc.amountOut, res.AmountOut.Dec())
			assert.Equal(t, tc.fee, res.FeeAmount.Dec())
		})
	}

	t.Run("fee at or above denominator", func(t *testing.T) {
		_, err := ComputeSwapStep(q96, priceTickMinus60, oneEther, milliEther, true, FeeDenominator)
		assert.ErrorIs(t, err, ErrInvalidFee)
	})
}

func TestComputeSwapStepInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		current := new(uint256.Int).Lsh(uint256.NewInt(rapid.Uint64Min(1<<32).Draw(t, "current")), 64)
		target := new(uint256.Int).Lsh(uint256.NewInt(rapid.Uint64Min(1<<32).Draw(t, "target")), 64)
		liquidity := uint256.NewInt(rapid.Uint64Min(1).Draw(t, "liquidity"))
		amount := uint256.NewInt(rapid.Uint64().Draw(t, "amount"))
		exactIn := rapid.Bool().Draw(t, "exactIn")
		fee := rapid.SampledFrom([]uint32{100, 500, 3000, 10000}).Draw(t, "fee")

		res, err := ComputeSwapStep(current, target, liquidity, amount, exactIn, fee)
		require.NoError(t, err)

		consumed := new(uint256.Int).Add(res.AmountIn, res.FeeAmount)
		if exactIn {
			assert.False(t, consumed.Gt(amount), "input plus fee must not exceed amount remaining")
		} else {
			assert.False(t, res.AmountOut.Gt(amount), "output must not exceed amount remaining")
		}

		zeroForOne := !current.Lt(target)
		if zeroForOne {
			assert.False(t, res.SqrtRatioNextX96.Gt(current))
			assert.False(t, res.SqrtRatioNextX96.Lt(target))
		} else {
			assert.False(t, res.SqrtRatioNextX96.Lt(current))
			assert.False(t, res.SqrtRatioNextX96.Gt(target))
		}
	})
}
