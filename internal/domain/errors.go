package domain

import "errors"

var (
	// Authorization errors. Never retried automatically.
	ErrUnauthorized = errors.New("unauthorized")
	ErrPaused       = errors.New("engine paused")

	// Validation errors. Rejected before any state mutation.
	ErrInvalidParameters  = errors.New("invalid parameters")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrAllocationExceeded = errors.New("tranche allocation exceeded")

	// State errors. Valid operations rejected by the current lifecycle state.
	ErrBondNotActive      = errors.New("bond not active")
	ErrMaturityNotReached = errors.New("maturity not reached")
	ErrNotMatured         = errors.New("bond not matured")
	ErrAlreadyRedeemed    = errors.New("investment already redeemed")
	ErrBondNotFound       = errors.New("bond not found")
	ErrInvestmentNotFound = errors.New("investment not found")
	ErrNotFound           = errors.New("not found")

	// ErrLedgerCorrupt marks an integrity violation (cap sums, negative
	// yield). The operation aborts entirely; nothing is written.
	ErrLedgerCorrupt = errors.New("ledger integrity violation")

	ErrLockHeld    = errors.New("lock already held")
	ErrContextDone = errors.New("context cancelled")
)
