package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BasisPointDenominator represents 100% in basis points.
const BasisPointDenominator = 10000

// NativeAsset is the ledger key of the chain's native asset (what a caller attaches as value).
var NativeAsset = common.Address{}

// Version identifies the pool family a venue belongs to.
type Version uint8

const (
	VersionNone Version = 0
	VersionV2   Version = 2
	VersionV3   Version = 3
)

func (v Version) String() string {
	switch v {
	case VersionV2:
		return "v2"
	case VersionV3:
		return "v3"
	default:
		return "none"
	}
}

// QuoteResult is the outcome of rate shopping. The zero value (with a nil or zero AmountOut)
// is the canonical "no liquidity found" answer.
type QuoteResult struct {
	Venue     common.Address `json:"venue"`
	Version   Version        `json:"version"`
	AmountOut *big.Int       `json:"amountOut"`
}

// NoQuote returns the zero-filled result.
func NoQuote() QuoteResult {
	return QuoteResult{AmountOut: new(big.Int)}
}

// Found reports whether a venue produced a positive quote.
func (q QuoteResult) Found() bool {
	return q.Version != VersionNone && q.AmountOut != nil && q.AmountOut.Sign() > 0
}

// SwapRequest is constructed at call entry and consumed entirely by one swap.
type SwapRequest struct {
	Caller               common.Address
	Pool                 common.Address
	TokenOut             common.Address
	SlippageToleranceBps uint16
	GrossAmountIn        *big.Int
}

// SwapReceipt describes a committed swap.
type SwapReceipt struct {
	Pool         common.Address `json:"pool"`
	Version      Version        `json:"version"`
	AmountIn     *big.Int       `json:"amountIn"` // net of fees
	ExpectedOut  *big.Int       `json:"expectedOut"`
	MinAmountOut *big.Int       `json:"minAmountOut"`
	AmountOut    *big.Int       `json:"amountOut"`
	SystemFee    *big.Int       `json:"systemFee"`
	PartnerFee   *big.Int       `json:"partnerFee"`
}

// RegistryOp is the kind of registry mutation carried by a RegistryChanged notification.
type RegistryOp uint8

const (
	OpV2RouterAdded RegistryOp = iota + 1
	OpV2RouterRemoved
	OpV3RouterAdded
	OpV3RouterRemoved
	OpPoolSupported
	OpPoolUnsupported
)

func (op RegistryOp) String() string {
	switch op {
	case OpV2RouterAdded:
		return "V2RouterAdded"
	case OpV2RouterRemoved:
		return "V2RouterRemoved"
	case OpV3RouterAdded:
		return "V3RouterAdded"
	case OpV3RouterRemoved:
		return "V3RouterRemoved"
	case OpPoolSupported:
		return "PoolSupported"
	case OpPoolUnsupported:
		return "PoolUnsupported"
	default:
		return "Unknown"
	}
}

// RegistryChanged is emitted after every successful registry mutation.
type RegistryChanged struct {
	Address common.Address `json:"address"`
	Op      RegistryOp     `json:"op"`
}

// SwapCompleted is emitted after a swap has been committed.
type SwapCompleted struct {
	Caller     common.Address `json:"caller"`
	Pool       common.Address `json:"pool"`
	Version    Version        `json:"version"`
	AmountIn   *big.Int       `json:"amountIn"`
	AmountOut  *big.Int       `json:"amountOut"`
	SystemFee  *big.Int       `json:"systemFee"`
	PartnerFee *big.Int       `json:"partnerFee"`
}

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
