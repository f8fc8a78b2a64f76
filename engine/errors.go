package engine

import "errors"

var (
	// ErrInvalidAddress is returned when a required address is the zero address.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrAlreadyRegistered is returned when a router is added twice to the same list.
	ErrAlreadyRegistered = errors.New("already registered")
	// ErrIndexOutOfRange is returned by index based removals past the end of a list.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrUnauthorized is returned when a privileged operation is invoked by anyone but the owner.
	ErrUnauthorized = errors.New("unauthorized account")
	// ErrUnsupportedPool is returned when a swap targets a pool outside the whitelist.
	ErrUnsupportedPool = errors.New("unsupported pool")
	// ErrZeroAmount is returned when a swap is requested with no input.
	ErrZeroAmount = errors.New("zero amount")
	// ErrSlippageExceeded is returned when a venue cannot deliver the minimum output.
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrInsufficientLiquidity marks a pool that cannot quote. Read paths degrade it to a zero quote.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrFeeTransferFailed is returned when a fee cannot be paid to its receiver.
	ErrFeeTransferFailed = errors.New("fee transfer failed")
	// ErrVenueCallFailed wraps any failure of an external venue read or swap.
	ErrVenueCallFailed = errors.New("venue call failed")
	// ErrInvalidFeeConfig is returned when fee numerators exceed 100% or a receiver is missing.
	ErrInvalidFeeConfig = errors.New("invalid fee config")
	// ErrInsufficientBalance is returned by the ledger when a debit exceeds the available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)
