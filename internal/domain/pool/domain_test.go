package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/preset/credits/internal/model"
	"github.com/preset/credits/internal/port/outbound"
	"github.com/preset/credits/internal/shared/config"
	"github.com/preset/credits/internal/shared/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

var testMetrics = metrics.New("test_pool")

func testProviderConfig() *config.ProviderConfig {
	return &config.ProviderConfig{
		Name:            "nanobanana",
		ConversionRatio: 4,
		SyncInterval:    5 * time.Minute,
		SyncTimeout:     10 * time.Second,
		SyncTolerance:   100,
	}
}

// --- Mock implementations ---

type MockCreditPoolStore struct {
	mock.Mock
}

func (m *MockCreditPoolStore) Create(ctx context.Context, pool *model.PlatformCreditPool) error {
	args := m.Called(ctx, pool)
	return args.Error(0)
}

func (m *MockCreditPoolStore) GetByProvider(ctx context.Context, provider string) (*model.PlatformCreditPool, error) {
	args := m.Called(ctx, provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PlatformCreditPool), args.Error(1)
}

func (m *MockCreditPoolStore) AdjustAvailable(ctx context.Context, provider string, delta float64) error {
	args := m.Called(ctx, provider, delta)
	return args.Error(0)
}

func (m *MockCreditPoolStore) RecordSync(ctx context.Context, provider string, apiBalance float64, status model.SyncStatus, at time.Time, overwrite bool) error {
	args := m.Called(ctx, provider, apiBalance, status, at, overwrite)
	return args.Error(0)
}

type MockBalancePort struct {
	mock.Mock
}

func (m *MockBalancePort) FetchBalance(ctx context.Context, provider string) (float64, error) {
	args := m.Called(ctx, provider)
	return args.Get(0).(float64), args.Error(1)
}

type MockEstimateCache struct {
	mock.Mock
}

func (m *MockEstimateCache) GetAvailable(ctx context.Context, provider string) (float64, error) {
	args := m.Called(ctx, provider)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockEstimateCache) DecrementAvailable(ctx context.Context, provider string, amount float64) (float64, error) {
	args := m.Called(ctx, provider, amount)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockEstimateCache) SetAvailable(ctx context.Context, provider string, value float64) error {
	args := m.Called(ctx, provider, value)
	return args.Error(0)
}

type MockAlertStore struct {
	mock.Mock
}

func (m *MockAlertStore) Create(ctx context.Context, alert *model.PlatformAlert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

type mockStores struct {
	pools outbound.CreditPoolStore
}

func (s *mockStores) Accounts() outbound.CreditAccountStore         { return nil }
func (s *mockStores) Transactions() outbound.CreditTransactionStore { return nil }
func (s *mockStores) Tasks() outbound.BillableTaskStore             { return nil }
func (s *mockStores) RefundAudits() outbound.RefundAuditStore       { return nil }
func (s *mockStores) RefundDecisions() outbound.RefundDecisionStore { return nil }
func (s *mockStores) Pools() outbound.CreditPoolStore               { return s.pools }

type testEnv struct {
	pools    *MockCreditPoolStore
	balance  *MockBalancePort
	estimate *MockEstimateCache
	alerts   *MockAlertStore
	domain   *Domain
}

func newTestEnv() *testEnv {
	env := &testEnv{
		pools:    new(MockCreditPoolStore),
		balance:  new(MockBalancePort),
		estimate: new(MockEstimateCache),
		alerts:   new(MockAlertStore),
	}
	env.domain = NewPoolDomain(
		&mockStores{pools: env.pools},
		env.balance,
		env.estimate,
		env.alerts,
		testProviderConfig(),
		testMetrics,
		zap.NewNop(),
	)
	return env
}

// --- Tests ---

func TestPoolDomain_Sync(t *testing.T) {
	t.Run("drift within tolerance", func(t *testing.T) {
		env := newTestEnv()
		before := &model.PlatformCreditPool{Provider: "nanobanana", AvailableCredits: 950}
		after := &model.PlatformCreditPool{Provider: "nanobanana", AvailableCredits: 1000, SyncStatus: model.SyncStatusSynced}

		env.pools.On("GetByProvider", mock.Anything, "nanobanana").Return(before, nil).Once()
		env.balance.On("FetchBalance", mock.Anything, "nanobanana").Return(float64(1000), nil)
		env.pools.On("RecordSync", mock.Anything, "nanobanana", float64(1000), model.SyncStatusSynced, mock.Anything, true).Return(nil)
		env.estimate.On("SetAvailable", mock.Anything, "nanobanana", float64(1000)).Return(nil)
		env.pools.On("GetByProvider", mock.Anything, "nanobanana").Return(after, nil).Once()

		out, err := env.domain.Sync(context.Background(), "nanobanana")

		assert.NoError(t, err)
		assert.Equal(t, float64(1000), out.AvailableCredits)
		env.alerts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		env.pools.AssertExpectations(t)
	})

	t.Run("drift beyond tolerance raises alert and keeps local value", func(t *testing.T) {
		env := newTestEnv()
		before := &model.PlatformCreditPool{Provider: "nanobanana", AvailableCredits: 1000}
		after := &model.PlatformCreditPool{Provider: "nanobanana", AvailableCredits: 1000, LastAPIBalance: 200, SyncStatus: model.SyncStatusError}

		env.pools.On("GetByProvider", mock.Anything, "nanobanana").Return(before, nil).Once()
		env.balance.On("FetchBalance", mock.Anything, "nanobanana").Return(float64(200), nil)
		env.alerts.On("Create", mock.Anything, mock.MatchedBy(func(a *model.PlatformAlert) bool {
			return a.Type == model.AlertTypeSyncDiscrepancy && a.Severity == model.AlertSeverityWarning
		})).Return(nil)
		env.pools.On("RecordSync", mock.Anything, "nanobanana", float64(200), model.SyncStatusError, mock.Anything, false).Return(nil)
		env.pools.On("GetByProvider", mock.Anything, "nanobanana").Return(after, nil).Once()

		out, err := env.domain.Sync(context.Background(), "nanobanana")

		assert.NoError(t, err)
		assert.Equal(t, float64(1000), out.AvailableCredits)
		assert.Equal(t, model.SyncStatusError, out.SyncStatus)
		env.estimate.AssertNotCalled(t, "SetAvailable", mock.Anything, mock.Anything, mock.Anything)
		env.alerts.AssertExpectations(t)
		env.pools.AssertExpectations(t)
	})

	t.Run("fetch failure keeps local estimate", func(t *testing.T) {
		env := newTestEnv()
		before := &model.PlatformCreditPool{Provider: "nanobanana", AvailableCredits: 800, LastAPIBalance: 820}

		env.pools.On("GetByProvider", mock.Anything, "nanobanana").Return(before, nil)
		env.balance.On("FetchBalance", mock.Anything, "nanobanana").Return(float64(0), errors.New("timeout"))
		env.pools.On("RecordSync", mock.Anything, "nanobanana", float64(820), model.SyncStatusError, mock.Anything, false).Return(nil)
		env.alerts.On("Create", mock.Anything, mock.MatchedBy(func(a *model.PlatformAlert) bool {
			return a.Type == model.AlertTypeSyncFailed
		})).Return(nil)

		out, err := env.domain.Sync(context.Background(), "nanobanana")

		assert.ErrorIs(t, err, ErrSyncFailed)
		assert.Nil(t, out)
		env.estimate.AssertNotCalled(t, "SetAvailable", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("expired sync context still records the failure", func(t *testing.T) {
		env := newTestEnv()
		before := &model.PlatformCreditPool{Provider: "nanobanana", AvailableCredits: 800, LastAPIBalance: 820}

		ctx, cancel := context.WithCancel(context.Background())

		env.pools.On("GetByProvider", mock.Anything, "nanobanana").Return(before, nil)
		env.balance.On("FetchBalance", mock.Anything, "nanobanana").Run(func(mock.Arguments) {
			cancel()
		}).Return(float64(0), context.Canceled)
		env.pools.On("RecordSync", mock.MatchedBy(func(c context.Context) bool {
			return c.Err() == nil
		}), "nanobanana", float64(820), model.SyncStatusError, mock.Anything, false).Return(nil)
		env.alerts.On("Create", mock.MatchedBy(func(c context.Context) bool {
			return c.Err() == nil
		}), mock.Anything).Return(nil)

		out, err := env.domain.Sync(ctx, "nanobanana")

		assert.ErrorIs(t, err, ErrSyncFailed)
		assert.Nil(t, out)
		env.pools.AssertExpectations(t)
		env.alerts.AssertExpectations(t)
	})

	t.Run("unknown provider", func(t *testing.T) {
		env := newTestEnv()

		env.pools.On("GetByProvider", mock.Anything, "other").Return(nil, nil)

		out, err := env.domain.Sync(context.Background(), "other")

		assert.ErrorIs(t, err, ErrPoolNotFound)
		assert.Nil(t, out)
	})
}

func TestPoolDomain_HasAvailable(t *testing.T) {
	t.Run("answers from cache", func(t *testing.T) {
		env := newTestEnv()

		env.estimate.On("GetAvailable", mock.Anything, "nanobanana").Return(float64(100), nil)

		ok, err := env.domain.HasAvailable(context.Background(), "nanobanana", 40)

		assert.NoError(t, err)
		assert.True(t, ok)
		env.pools.AssertNotCalled(t, "GetByProvider", mock.Anything, mock.Anything)
	})

	t.Run("cache hit below requested amount", func(t *testing.T) {
		env := newTestEnv()

		env.estimate.On("GetAvailable", mock.Anything, "nanobanana").Return(float64(10), nil)

		ok, err := env.domain.HasAvailable(context.Background(), "nanobanana", 40)

		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("cache miss falls back to the database and warms the cache", func(t *testing.T) {
		env := newTestEnv()
		pool := &model.PlatformCreditPool{Provider: "nanobanana", AvailableCredits: 60}

		env.estimate.On("GetAvailable", mock.Anything, "nanobanana").Return(float64(0), outbound.ErrCacheMiss)
		env.pools.On("GetByProvider", mock.Anything, "nanobanana").Return(pool, nil)
		env.estimate.On("SetAvailable", mock.Anything, "nanobanana", float64(60)).Return(nil)

		ok, err := env.domain.HasAvailable(context.Background(), "nanobanana", 40)

		assert.NoError(t, err)
		assert.True(t, ok)
		env.estimate.AssertExpectations(t)
	})

	t.Run("no pool row accepts work", func(t *testing.T) {
		env := newTestEnv()

		env.estimate.On("GetAvailable", mock.Anything, "nanobanana").Return(float64(0), outbound.ErrCacheMiss)
		env.pools.On("GetByProvider", mock.Anything, "nanobanana").Return(nil, nil)

		ok, err := env.domain.HasAvailable(context.Background(), "nanobanana", 40)

		assert.NoError(t, err)
		assert.True(t, ok)
	})
}
