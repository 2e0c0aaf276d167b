package outbound

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned when a cache key is absent.
var ErrCacheMiss = errors.New("cache miss")

// ProviderBalancePort fetches the provider's authoritative credit balance.
// The call is read-only and must honor the context deadline.
type ProviderBalancePort interface {
	FetchBalance(ctx context.Context, provider string) (float64, error)
}

// PoolEstimateCache holds the low-latency local estimate of pooled
// provider credits. It is a hint for availability checks, refreshed with
// the authoritative value on every successful sync.
type PoolEstimateCache interface {
	GetAvailable(ctx context.Context, provider string) (float64, error)
	DecrementAvailable(ctx context.Context, provider string, amount float64) (float64, error)
	SetAvailable(ctx context.Context, provider string, value float64) error
}
