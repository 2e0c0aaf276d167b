package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/preset/credits/internal/port/outbound"
	"github.com/preset/credits/internal/shared/config"
	"github.com/sony/gobreaker/v2"
)

// balanceResponse is the provider's balance endpoint envelope.
type balanceResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Credits float64 `json:"credits"`
	} `json:"data"`
}

// BalanceClient fetches provider balances over HTTP. Calls run through a
// circuit breaker so a flapping provider API does not pile up sync attempts.
type BalanceClient struct {
	client  *http.Client
	cfg     *config.ProviderConfig
	breaker *gobreaker.CircuitBreaker[float64]
}

// NewBalanceClient creates a new provider balance client.
func NewBalanceClient(client *http.Client, cfg *config.ProviderConfig) *BalanceClient {
	settings := gobreaker.Settings{
		Name:        cfg.Name + "-balance",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &BalanceClient{
		client:  client,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker[float64](settings),
	}
}

// FetchBalance returns the provider's authoritative credit balance.
func (c *BalanceClient) FetchBalance(ctx context.Context, provider string) (float64, error) {
	if provider != c.cfg.Name {
		return 0, fmt.Errorf("unknown provider %q", provider)
	}

	return c.breaker.Execute(func() (float64, error) {
		return c.fetch(ctx)
	})
}

func (c *BalanceClient) fetch(ctx context.Context) (float64, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BalanceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("balance endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var balResp balanceResponse
	if err := json.Unmarshal(body, &balResp); err != nil {
		return 0, fmt.Errorf("parse response: %w", err)
	}

	if balResp.Code != 0 {
		return 0, fmt.Errorf("balance endpoint error %d: %s", balResp.Code, balResp.Msg)
	}

	if balResp.Data.Credits < 0 {
		return 0, fmt.Errorf("balance endpoint returned negative credits %.4f", balResp.Data.Credits)
	}

	return balResp.Data.Credits, nil
}

// Compile-time check
var _ outbound.ProviderBalancePort = (*BalanceClient)(nil)
