package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/preset/credits/internal/model"
	"github.com/preset/credits/internal/port/outbound"
	"gorm.io/gorm"
)

// creditAccountAdapter implements outbound.CreditAccountStore.
type creditAccountAdapter struct {
	db *gorm.DB
}

// NewCreditAccountAdapter creates a new credit account database adapter.
func NewCreditAccountAdapter(db *gorm.DB) outbound.CreditAccountStore {
	return &creditAccountAdapter{db: db}
}

func (a *creditAccountAdapter) Create(ctx context.Context, acct *model.UserCreditAccount) error {
	return a.db.WithContext(ctx).Create(acct).Error
}

func (a *creditAccountAdapter) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.UserCreditAccount, error) {
	var acct model.UserCreditAccount
	err := a.db.WithContext(ctx).First(&acct, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &acct, nil
}

// DebitBalance decrements the balance only when it covers the amount. The
// condition and the decrement are one statement, so concurrent debits can
// never take the balance negative.
func (a *creditAccountAdapter) DebitBalance(ctx context.Context, userID uuid.UUID, amount int64) (bool, error) {
	res := a.db.WithContext(ctx).
		Model(&model.UserCreditAccount{}).
		Where("user_id = ? AND current_balance >= ?", userID, amount).
		UpdateColumns(map[string]any{
			"current_balance":     gorm.Expr("current_balance - ?", amount),
			"consumed_this_month": gorm.Expr("consumed_this_month + ?", amount),
			"lifetime_consumed":   gorm.Expr("lifetime_consumed + ?", amount),
			"updated_at":          time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (a *creditAccountAdapter) CreditBalance(ctx context.Context, userID uuid.UUID, amount int64) error {
	res := a.db.WithContext(ctx).
		Model(&model.UserCreditAccount{}).
		Where("user_id = ?", userID).
		UpdateColumns(map[string]any{
			"current_balance":     gorm.Expr("current_balance + ?", amount),
			"consumed_this_month": gorm.Expr("GREATEST(consumed_this_month - ?, 0)", amount),
			"updated_at":          time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return outbound.ErrNotFound
	}
	return nil
}

// ResetAllowance tops the balance up to the monthly allowance once per
// billing period; the last_reset_at condition makes repeated calls within
// the same period no-ops.
func (a *creditAccountAdapter) ResetAllowance(ctx context.Context, userID uuid.UUID, periodStart, now time.Time) (bool, error) {
	res := a.db.WithContext(ctx).
		Model(&model.UserCreditAccount{}).
		Where("user_id = ? AND last_reset_at < ?", userID, periodStart).
		UpdateColumns(map[string]any{
			"current_balance":     gorm.Expr("monthly_allowance"),
			"consumed_this_month": 0,
			"last_reset_at":       now,
			"updated_at":          now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Compile-time check
var _ outbound.CreditAccountStore = (*creditAccountAdapter)(nil)
