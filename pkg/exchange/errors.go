package exchange

import "errors"

// Every rejection is a synchronous, caller-visible failure with no partial
// state change. Callers match with errors.Is; messages added at wrap sites
// carry the specifics.
var (
	// ErrAuthorizationFailed means the signature does not recover to the
	// claimed maker, or no on-chain registration exists for the order.
	ErrAuthorizationFailed = errors.New("order authorization failed")

	// ErrSelfTrade means the caller is the order's maker.
	ErrSelfTrade = errors.New("maker may not take own order")

	// ErrOrderExpired means the current time is at or past the order's expiry.
	ErrOrderExpired = errors.New("order expired")

	// ErrOrderExhausted means remaining capacity is zero: fully filled or
	// cancelled.
	ErrOrderExhausted = errors.New("order exhausted")

	// ErrInsufficientLiquidity means the computed trade amount clamped to zero.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrUnauthorizedCancel means the cancel caller is not the order's maker.
	ErrUnauthorizedCancel = errors.New("only maker may cancel")

	// ErrDuplicateRegistration means the (maker, hash) pair was already
	// registered on chain.
	ErrDuplicateRegistration = errors.New("order already registered")

	// ErrDirectTransferRejected means native currency was pushed at the engine
	// outside the deposit flow.
	ErrDirectTransferRejected = errors.New("direct transfer rejected, use deposit")

	// ErrUnauthorizedWithdraw means the withdraw caller is not the designated
	// owner, or the amount exceeds the reclaimable surplus.
	ErrUnauthorizedWithdraw = errors.New("unauthorized withdraw")

	// ErrMalformedOrder means the wire groups have the wrong shape or
	// non-positive amounts. Rejected before hashing.
	ErrMalformedOrder = errors.New("malformed order")
)
