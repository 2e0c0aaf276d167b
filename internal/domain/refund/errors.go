package refund

import "errors"

// Domain errors for refunds.
var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrTaskNotEligible = errors.New("task is not in a failed state")
	ErrNotOwner        = errors.New("task does not belong to this user")
	ErrInvalidPolicy   = errors.New("policy error type must not be empty")
)
