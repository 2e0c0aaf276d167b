package ledger

import "errors"

// Domain errors for the credit ledger.
var (
	ErrAccountNotFound     = errors.New("credit account not found")
	ErrAccountExists       = errors.New("credit account already exists")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidTier         = errors.New("invalid subscription tier")
)
