package uniswapv2

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// UniswapInitCodeHash is keccak256 of the canonical UniswapV2Pair creation code.
var UniswapInitCodeHash = common.HexToHash("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")

// SortTokens orders a pair the way factories do: token0 < token1.
func SortTokens(tokenA, tokenB common.Address) (token0, token1 common.Address) {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		return tokenB, tokenA
	}
	return tokenA, tokenB
}

// ComputePairAddress derives the CREATE2 address of the pair for an unordered token pair.
func ComputePairAddress(factory, tokenA, tokenB common.Address, initCodeHash common.Hash) common.Address {
	token0, token1 := SortTokens(tokenA, tokenB)
	salt := crypto.Keccak256(token0.Bytes(), token1.Bytes())
	return common.BytesToAddress(crypto.Keccak256([]byte{0xff}, factory.Bytes(), salt, initCodeHash.Bytes())[12:])
}
