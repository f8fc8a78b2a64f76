// Package executor runs native-for-token swaps as single all-or-nothing ledger transactions.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/dex-aggregator-go/engine"
	"github.com/defistate/dex-aggregator-go/fees"
	"github.com/defistate/dex-aggregator-go/ledger"
	"github.com/defistate/dex-aggregator-go/quote"
	"github.com/defistate/dex-aggregator-go/venues"
	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidSlippage is returned when the slippage tolerance exceeds 100%.
var ErrInvalidSlippage = errors.New("slippage tolerance above 10000 bps")

// PoolWhitelist reports whether a pool may be swapped through.
type PoolWhitelist interface {
	IsPoolSupported(pool common.Address) bool
}

// StateReader loads a pool's pricing state.
type StateReader interface {
	State(ctx context.Context, pool common.Address) (quote.PoolState, error)
}

// FeeSchedule is the live fee configuration.
type FeeSchedule interface {
	Config() fees.Config
}

type Config struct {
	Ledger    *ledger.Ledger
	Venue     venues.Executor
	Whitelist PoolWhitelist
	States    StateReader
	Fees      FeeSchedule
	// WrappedNative is the token the native input is wrapped into before swapping.
	WrappedNative common.Address
	// Account is the aggregator's own ledger account. Funds only pass through it.
	Account common.Address
	// OnSwap, if set, is called after a swap has been committed.
	OnSwap func(engine.SwapCompleted)
	Logger engine.Logger
}

func (c *Config) validate() error {
	if c.Ledger == nil || c.Venue == nil || c.Whitelist == nil || c.States == nil || c.Fees == nil {
		return errors.New("ledger, venue, whitelist, states and fees are required")
	}
	if c.WrappedNative == (common.Address{}) || c.Account == (common.Address{}) {
		return fmt.Errorf("%w: wrapped native and account must be set", engine.ErrInvalidAddress)
	}
	if c.Logger == nil {
		return errors.New("logger cannot be nil")
	}
	return nil
}

// Executor serialises swaps: one swap's fee payment, wrap, venue swap and payout commit together
// before the next swap starts.
type Executor struct {
	mu            sync.Mutex
	ledger        *ledger.Ledger
	venue         venues.Executor
	whitelist     PoolWhitelist
	states        StateReader
	fees          FeeSchedule
	wrappedNative common.Address
	account       common.Address
	onSwap        func(engine.SwapCompleted)
	logger        engine.Logger
}

func New(cfg *Config) (*Executor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Executor{
		ledger:        cfg.Ledger,
		venue:         cfg.Venue,
		whitelist:     cfg.Whitelist,
		states:        cfg.States,
		fees:          cfg.Fees,
		wrappedNative: cfg.WrappedNative,
		account:       cfg.Account,
		onSwap:        cfg.OnSwap,
		logger:        cfg.Logger,
	}, nil
}

// MinAmountOut applies a slippage tolerance to an expected output:
//
//	minAmountOut = expectedOut * (10000 - slippageBps) / 10000
func MinAmountOut(expectedOut *big.Int, slippageBps uint16) *big.Int {
	m := new(big.Int).Mul(expectedOut, big.NewInt(int64(engine.BasisPointDenominator-int(slippageBps))))
	return m.Quo(m, big.NewInt(engine.BasisPointDenominator))
}

// SwapNativeForToken takes GrossAmountIn of the native asset from the caller, pays both fees, wraps
// the rest and swaps it through Pool for TokenOut, which is sent to the caller. Either every balance
// movement is applied or none is.
func (e *Executor) SwapNativeForToken(ctx context.Context, req engine.SwapRequest) (engine.SwapReceipt, error) {
	if req.GrossAmountIn == nil || req.GrossAmountIn.Sign() <= 0 {
		return engine.SwapReceipt{}, engine.ErrZeroAmount
	}
	if req.SlippageToleranceBps > engine.BasisPointDenominator {
		return engine.SwapReceipt{}, fmt.Errorf("%w: %d", ErrInvalidSlippage, req.SlippageToleranceBps)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	receipt, err := e.swap(ctx, req)
	if err != nil {
		e.logger.Warn("swap failed", "caller", req.Caller, "pool", req.Pool, "amountIn", req.GrossAmountIn, "error", err)
		return engine.SwapReceipt{}, err
	}

	e.logger.Info("swap completed",
		"caller", req.Caller,
		"pool", receipt.Pool,
		"version", receipt.Version.String(),
		"amountIn", receipt.AmountIn,
		"amountOut", receipt.AmountOut,
	)
	if e.onSwap != nil {
		e.onSwap(engine.SwapCompleted{
			Caller:     req.Caller,
			Pool:       receipt.Pool,
			Version:    receipt.Version,
			AmountIn:   receipt.AmountIn,
			AmountOut:  receipt.AmountOut,
			SystemFee:  receipt.SystemFee,
			PartnerFee: receipt.PartnerFee,
		})
	}
	return receipt, nil
}

func (e *Executor) swap(ctx context.Context, req engine.SwapRequest) (engine.SwapReceipt, error) {
	tx := e.ledger.Begin()
	defer tx.Rollback()

	// the attached value
	if err := tx.Transfer(engine.NativeAsset, req.Caller, e.account, req.GrossAmountIn); err != nil {
		return engine.SwapReceipt{}, err
	}

	feeCfg := e.fees.Config()
	systemFee, partnerFee, net := feeCfg.Split(req.GrossAmountIn)
	if err := tx.Transfer(engine.NativeAsset, e.account, feeCfg.SystemFeeReceiver, systemFee); err != nil {
		return engine.SwapReceipt{}, fmt.Errorf("%w: system fee to %s: %v", engine.ErrFeeTransferFailed, feeCfg.SystemFeeReceiver, err)
	}
	if err := tx.Transfer(engine.NativeAsset, e.account, feeCfg.PartnerFeeReceiver, partnerFee); err != nil {
		return engine.SwapReceipt{}, fmt.Errorf("%w: partner fee to %s: %v", engine.ErrFeeTransferFailed, feeCfg.PartnerFeeReceiver, err)
	}

	if !e.whitelist.IsPoolSupported(req.Pool) {
		return engine.SwapReceipt{}, fmt.Errorf("%w: %s", engine.ErrUnsupportedPool, req.Pool)
	}
	state, err := e.states.State(ctx, req.Pool)
	if err != nil {
		return engine.SwapReceipt{}, err
	}
	if out, ok := state.Counterpart(e.wrappedNative); !ok || out != req.TokenOut {
		return engine.SwapReceipt{}, fmt.Errorf("%w: %s does not trade %s -> %s", engine.ErrUnsupportedPool, req.Pool, e.wrappedNative, req.TokenOut)
	}
	expectedOut := quote.Estimate(state, e.wrappedNative, net)
	minOut := MinAmountOut(expectedOut, req.SlippageToleranceBps)

	// wrap: the native currency moves into the wrapped token's custody and is minted 1:1
	if err := tx.Transfer(engine.NativeAsset, e.account, e.wrappedNative, net); err != nil {
		return engine.SwapReceipt{}, err
	}
	if err := tx.Mint(e.wrappedNative, e.account, net); err != nil {
		return engine.SwapReceipt{}, err
	}

	amountOut, err := e.venue.Swap(ctx, tx, venues.SwapParams{
		Pool:         req.Pool,
		TokenIn:      e.wrappedNative,
		TokenOut:     req.TokenOut,
		AmountIn:     net,
		MinAmountOut: minOut,
		Payer:        e.account,
		Recipient:    e.account,
	})
	if err != nil {
		return engine.SwapReceipt{}, err
	}
	if err := tx.Transfer(req.TokenOut, e.account, req.Caller, amountOut); err != nil {
		return engine.SwapReceipt{}, err
	}

	if err := tx.Commit(); err != nil {
		return engine.SwapReceipt{}, err
	}
	return engine.SwapReceipt{
		Pool:         req.Pool,
		Version:      state.Version,
		AmountIn:     net,
		ExpectedOut:  expectedOut,
		MinAmountOut: minOut,
		AmountOut:    amountOut,
		SystemFee:    systemFee,
		PartnerFee:   partnerFee,
	}, nil
}
