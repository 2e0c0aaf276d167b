package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/preset/credits/internal/model"
	"github.com/preset/credits/internal/port/outbound"
	"gorm.io/gorm"
)

// creditPoolAdapter implements outbound.CreditPoolStore.
type creditPoolAdapter struct {
	db *gorm.DB
}

// NewCreditPoolAdapter creates a new platform credit pool database adapter.
func NewCreditPoolAdapter(db *gorm.DB) outbound.CreditPoolStore {
	return &creditPoolAdapter{db: db}
}

func (a *creditPoolAdapter) Create(ctx context.Context, pool *model.PlatformCreditPool) error {
	err := a.db.WithContext(ctx).Create(pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return outbound.ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (a *creditPoolAdapter) GetByProvider(ctx context.Context, provider string) (*model.PlatformCreditPool, error) {
	var pool model.PlatformCreditPool
	err := a.db.WithContext(ctx).First(&pool, "provider = ?", provider).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pool, nil
}

func (a *creditPoolAdapter) AdjustAvailable(ctx context.Context, provider string, delta float64) error {
	result := a.db.WithContext(ctx).
		Model(&model.PlatformCreditPool{}).
		Where("provider = ?", provider).
		UpdateColumns(map[string]interface{}{
			"available_credits": gorm.Expr("available_credits + ?", delta),
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return outbound.ErrNotFound
	}
	return nil
}

func (a *creditPoolAdapter) RecordSync(ctx context.Context, provider string, apiBalance float64, status model.SyncStatus, at time.Time, overwrite bool) error {
	updates := map[string]interface{}{
		"last_api_balance": apiBalance,
		"last_sync_at":     at,
		"sync_status":      status,
		"updated_at":       time.Now(),
	}
	if overwrite {
		updates["available_credits"] = apiBalance
	}
	result := a.db.WithContext(ctx).
		Model(&model.PlatformCreditPool{}).
		Where("provider = ?", provider).
		UpdateColumns(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return outbound.ErrNotFound
	}
	return nil
}

// Compile-time check
var _ outbound.CreditPoolStore = (*creditPoolAdapter)(nil)
