package domain

import "errors"

// Validation and state-machine failures. Every one of these is a rejected
// operation surfaced to the immediate caller, never a crash.
var (
	// ErrInvalidAmount rejects a zero or otherwise malformed bet amount.
	ErrInvalidAmount = errors.New("invalid bet amount")

	// ErrBetOutOfRange rejects a bet outside the market's min/max bounds.
	ErrBetOutOfRange = errors.New("bet amount out of range")

	// ErrMarketClosed rejects bets on a market past its deadline or
	// otherwise no longer open.
	ErrMarketClosed = errors.New("market closed")

	// ErrNotYetClosed rejects resolution of a market still accepting bets.
	ErrNotYetClosed = errors.New("market not yet closed")

	// ErrAlreadyResolved rejects a second resolution of the same market.
	ErrAlreadyResolved = errors.New("market already resolved")

	// ErrMarketCancelled rejects any operation on a cancelled market.
	ErrMarketCancelled = errors.New("market cancelled")

	// ErrBetsAlreadyPlaced rejects cancellation once a bet has landed.
	ErrBetsAlreadyPlaced = errors.New("bets already placed")

	// ErrUnauthorized rejects callers who are not the market's authority.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyClaimed rejects a second claim on the same position.
	ErrAlreadyClaimed = errors.New("winnings already claimed")

	// ErrClaimsNotOpen rejects claims inside the resolution delay window.
	ErrClaimsNotOpen = errors.New("claims not open yet")

	// ErrCalculationOverflow rejects a payout whose intermediate product
	// exceeds the 64-bit range.
	ErrCalculationOverflow = errors.New("payout calculation overflow")
)

// Infrastructure failures.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrLockHeld      = errors.New("lock already held")
	ErrContextDone   = errors.New("context cancelled")
)
