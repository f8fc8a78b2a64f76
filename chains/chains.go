// Package chains lists the canonical Uniswap deployments of the supported networks.
package chains

import "github.com/ethereum/go-ethereum/common"

// Chain IDs.
const (
	Mainnet  uint64 = 1
	Base     uint64 = 8453
	Arbitrum uint64 = 42161
)

// Deployment is the wrapped native token and the router set of one network.
type Deployment struct {
	ChainID       uint64
	Name          string
	WrappedNative common.Address
	V2Routers     []common.Address
	V3Routers     []common.Address
}

var deployments = map[uint64]Deployment{
	Mainnet: {
		ChainID:       Mainnet,
		Name:          "ethereum",
		WrappedNative: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		V2Routers:     []common.Address{common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")},
		V3Routers:     []common.Address{common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")},
	},
	Base: {
		ChainID:       Base,
		Name:          "base",
		WrappedNative: common.HexToAddress("0x4200000000000000000000000000000000000006"),
		V2Routers:     []common.Address{common.HexToAddress("0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24")},
		V3Routers:     []common.Address{common.HexToAddress("0x2626664c2603336E57B271c5C0b26F421741e481")},
	},
	Arbitrum: {
		ChainID:       Arbitrum,
		Name:          "arbitrum",
		WrappedNative: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
		V2Routers:     []common.Address{common.HexToAddress("0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24")},
		V3Routers:     []common.Address{common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")},
	},
}

// Lookup returns the deployment of chainID. The returned slices are copies.
func Lookup(chainID uint64) (Deployment, bool) {
	d, ok := deployments[chainID]
	if !ok {
		return Deployment{}, false
	}
	d.V2Routers = append([]common.Address(nil), d.V2Routers...)
	d.V3Routers = append([]common.Address(nil), d.V3Routers...)
	return d, true
}
