package pool

import "errors"

// Domain errors for the credit pool reconciler.
var (
	ErrPoolNotFound = errors.New("credit pool not found")
	ErrSyncFailed   = errors.New("pool sync failed")
)
