package pool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/preset/credits/internal/model"
	"github.com/preset/credits/internal/port/inbound"
	"github.com/preset/credits/internal/port/outbound"
	"github.com/preset/credits/internal/shared/config"
	"github.com/preset/credits/internal/shared/metrics"
	"go.uber.org/zap"
)

// Sync outcome labels.
const (
	syncResultSynced      = "synced"
	syncResultDiscrepancy = "discrepancy"
	syncResultError       = "error"
)

// Domain reconciles the local pool estimate against the provider's
// reported balance. Between syncs the estimate drifts as tasks and
// refunds adjust it; every successful sync replaces it with the
// authoritative value.
type Domain struct {
	stores   outbound.Stores
	balance  outbound.ProviderBalancePort
	estimate outbound.PoolEstimateCache
	alerts   outbound.AlertStore
	cfg      *config.ProviderConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger

	stopCh chan struct{}
}

// NewPoolDomain creates a new pool reconciler domain service.
func NewPoolDomain(
	stores outbound.Stores,
	balance outbound.ProviderBalancePort,
	estimate outbound.PoolEstimateCache,
	alerts outbound.AlertStore,
	cfg *config.ProviderConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Domain {
	return &Domain{
		stores:   stores,
		balance:  balance,
		estimate: estimate,
		alerts:   alerts,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Compile-time interface check
var _ inbound.ReconcilerDomain = (*Domain)(nil)

// Start launches the periodic reconciliation loop.
func (d *Domain) Start() {
	go d.syncLoop()
}

// Stop terminates the reconciliation loop.
func (d *Domain) Stop() {
	close(d.stopCh)
}

func (d *Domain) syncLoop() {
	ticker := time.NewTicker(d.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SyncTimeout)
			if _, err := d.Sync(ctx, d.cfg.Name); err != nil {
				d.logger.Error("scheduled pool sync failed",
					zap.String("provider", d.cfg.Name),
					zap.Error(err),
				)
			}
			cancel()
		}
	}
}

// Sync fetches the provider's balance and reconciles the local pool.
// Within tolerance the provider's number overwrites the local value.
// Drift beyond tolerance is recorded as a discrepancy and alerted, the
// local value is left for an operator to inspect, and the next cycle
// retries.
func (d *Domain) Sync(ctx context.Context, provider string) (*model.PlatformCreditPool, error) {
	pool, err := d.stores.Pools().GetByProvider(ctx, provider)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotFound
	}

	now := time.Now()

	apiBalance, err := d.balance.FetchBalance(ctx, provider)
	if err != nil {
		d.metrics.PoolSyncs.WithLabelValues(provider, syncResultError).Inc()

		// The fetch timeout has usually consumed ctx by now; record the
		// failure under a fresh deadline so the status write survives.
		recCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if recErr := d.stores.Pools().RecordSync(recCtx, provider, pool.LastAPIBalance, model.SyncStatusError, now, false); recErr != nil {
			d.logger.Error("sync failure not recorded",
				zap.String("provider", provider),
				zap.Error(recErr),
			)
		}
		d.raiseAlert(recCtx, model.AlertTypeSyncFailed, model.AlertSeverityWarning,
			fmt.Sprintf("balance fetch for %s failed: %v", provider, err),
			map[string]any{"provider": provider},
		)
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	drift := math.Abs(pool.AvailableCredits - apiBalance)
	d.metrics.PoolDrift.WithLabelValues(provider).Set(drift)

	if drift > d.cfg.SyncTolerance {
		d.metrics.PoolSyncs.WithLabelValues(provider, syncResultDiscrepancy).Inc()
		d.logger.Warn("pool drift beyond tolerance",
			zap.String("provider", provider),
			zap.Float64("local_value", pool.AvailableCredits),
			zap.Float64("api_balance", apiBalance),
			zap.Float64("drift", drift),
			zap.Float64("tolerance", d.cfg.SyncTolerance),
		)
		d.raiseAlert(ctx, model.AlertTypeSyncDiscrepancy, model.AlertSeverityWarning,
			fmt.Sprintf("pool drift for %s is %.4f credits (tolerance %.4f)", provider, drift, d.cfg.SyncTolerance),
			map[string]any{
				"provider":    provider,
				"local_value": pool.AvailableCredits,
				"api_balance": apiBalance,
				"drift":       drift,
			},
		)

		// Record what the provider reported but keep the local value.
		if err := d.stores.Pools().RecordSync(ctx, provider, apiBalance, model.SyncStatusError, now, false); err != nil {
			return nil, fmt.Errorf("record sync: %w", err)
		}
		return d.GetPool(ctx, provider)
	}

	d.metrics.PoolSyncs.WithLabelValues(provider, syncResultSynced).Inc()

	if err := d.stores.Pools().RecordSync(ctx, provider, apiBalance, model.SyncStatusSynced, now, true); err != nil {
		return nil, fmt.Errorf("record sync: %w", err)
	}

	if err := d.estimate.SetAvailable(ctx, provider, apiBalance); err != nil {
		d.logger.Warn("pool estimate cache refresh failed",
			zap.String("provider", provider),
			zap.Error(err),
		)
	}

	d.metrics.PoolAvailable.WithLabelValues(provider).Set(apiBalance)

	d.logger.Info("pool synced",
		zap.String("provider", provider),
		zap.Float64("api_balance", apiBalance),
		zap.Float64("drift", drift),
	)

	return d.GetPool(ctx, provider)
}

// GetPool returns the pool record for a provider.
func (d *Domain) GetPool(ctx context.Context, provider string) (*model.PlatformCreditPool, error) {
	pool, err := d.stores.Pools().GetByProvider(ctx, provider)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	return pool, nil
}

// HasAvailable answers whether the pool can cover the requested provider
// credits. It prefers the cached estimate and falls back to the database
// row, erring on the side of accepting work when neither is readable.
func (d *Domain) HasAvailable(ctx context.Context, provider string, providerCredits float64) (bool, error) {
	available, err := d.estimate.GetAvailable(ctx, provider)
	if err == nil {
		return available >= providerCredits, nil
	}
	if !errors.Is(err, outbound.ErrCacheMiss) {
		d.logger.Warn("pool estimate cache read failed",
			zap.String("provider", provider),
			zap.Error(err),
		)
	}

	pool, err := d.stores.Pools().GetByProvider(ctx, provider)
	if err != nil {
		return false, err
	}
	if pool == nil {
		return true, nil
	}

	// Warm the cache for subsequent checks.
	if err := d.estimate.SetAvailable(ctx, provider, pool.AvailableCredits); err != nil {
		d.logger.Warn("pool estimate cache warm failed",
			zap.String("provider", provider),
			zap.Error(err),
		)
	}

	return pool.AvailableCredits >= providerCredits, nil
}

func (d *Domain) raiseAlert(ctx context.Context, alertType, severity, message string, metadata map[string]any) {
	alert := &model.PlatformAlert{
		ID:        uuid.New(),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	if err := d.alerts.Create(ctx, alert); err != nil {
		d.logger.Error("alert not recorded",
			zap.String("type", alertType),
			zap.Error(err),
		)
	}
}
