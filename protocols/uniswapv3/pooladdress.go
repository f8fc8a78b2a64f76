package uniswapv3

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// UniswapPoolInitCodeHash is keccak256 of the canonical UniswapV3Pool creation code.
var UniswapPoolInitCodeHash = common.HexToHash("0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54")

// ComputePoolAddress derives the CREATE2 address of the pool keyed by (token0, token1, fee).
func ComputePoolAddress(factory, tokenA, tokenB common.Address, fee uint32, initCodeHash common.Hash) common.Address {
	token0, token1 := tokenA, tokenB
	if bytes.Compare(token0.Bytes(), token1.Bytes()) > 0 {
		token0, token1 = token1, token0
	}
	// abi.encode(address, address, uint24): three left-padded 32 byte words.
	salt := crypto.Keccak256(
		common.LeftPadBytes(token0.Bytes(), 32),
		common.LeftPadBytes(token1.Bytes(), 32),
		common.LeftPadBytes(new(big.Int).SetUint64(uint64(fee)).Bytes(), 32),
	)
	return common.BytesToAddress(crypto.Keccak256([]byte{0xff}, factory.Bytes(), salt, initCodeHash.Bytes())[12:])
}
