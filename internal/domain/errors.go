package domain

import "errors"

// Configuration errors.
var (
	ErrInvalidFeeConfig = errors.New("fee rates exceed 100%")
	ErrInvalidThreshold = errors.New("vote threshold exceeds 100%")
	ErrInvalidTimeLimit = errors.New("time limit must be positive")
)

// State machine errors.
var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidState      = errors.New("operation not allowed in current state")
	ErrThresholdNotMet   = errors.New("vote threshold not met")
	ErrProtocolPaused    = errors.New("protocol is paused")
	ErrMarketCancelled   = errors.New("market is cancelled")
)

// Trading errors.
var (
	ErrZeroAmount            = errors.New("amount must be positive")
	ErrTradeTooSmall         = errors.New("trade below minimum amount")
	ErrInsufficientShares    = errors.New("insufficient shares")
	ErrSlippageExceeded      = errors.New("slippage tolerance exceeded")
	ErrInsufficientLiquidity = errors.New("insufficient market liquidity")
)

// Resolution and claim errors.
var (
	ErrResolutionTooEarly    = errors.New("resolution delay has not elapsed")
	ErrNoResolutionProposed  = errors.New("no resolution proposed")
	ErrAlreadyResolved       = errors.New("resolution already proposed")
	ErrAlreadyDisputed       = errors.New("market already disputed")
	ErrDisputeWindowClosed   = errors.New("dispute window closed")
	ErrDisputeWindowOpen     = errors.New("dispute window still open")
	ErrAlreadyClaimed        = errors.New("winnings already claimed")
	ErrNoWinnings            = errors.New("no winnings to claim")
	ErrNoVotesRecorded       = errors.New("no votes recorded")
	ErrDuplicateVote         = errors.New("vote already recorded")
)

// Authorization errors.
var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInsufficientReputation = errors.New("resolver reputation too low")
)

// Validation errors.
var (
	ErrInvalidMarketID   = errors.New("invalid market id")
	ErrInvalidOutcome    = errors.New("invalid outcome")
	ErrInvalidTimestamp  = errors.New("invalid timestamp")
	ErrInvalidEvidence   = errors.New("invalid evidence hash")
	ErrInvalidBParameter = errors.New("b parameter below minimum")
)

// Infrastructure errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")
	ErrContextDone   = errors.New("context cancelled")
)
