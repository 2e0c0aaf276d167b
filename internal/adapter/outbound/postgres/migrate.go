package postgres

import (
	"context"
	"fmt"

	"github.com/preset/credits/internal/model"
	"gorm.io/gorm"
)

// Migrate creates or updates the credit ledger schema.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.UserCreditAccount{},
		&model.CreditTransaction{},
		&model.BillableTask{},
		&model.RefundPolicy{},
		&model.RefundAuditRecord{},
		&model.RefundDecision{},
		&model.PlatformCreditPool{},
		&model.PlatformAlert{},
	)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// SeedRefundPolicies inserts the default refund policy rows without
// overwriting operator edits to existing rows.
func SeedRefundPolicies(ctx context.Context, db *gorm.DB) error {
	defaults := []model.RefundPolicy{
		{ErrorType: string(model.ErrorInternal), ShouldRefund: true, Description: "platform-side failure"},
		{ErrorType: string(model.ErrorContentPolicy), ShouldRefund: true, Description: "provider rejected the prompt"},
		{ErrorType: string(model.ErrorGenerationFail), ShouldRefund: true, Description: "provider failed to produce output"},
		{ErrorType: string(model.ErrorTimeout), ShouldRefund: true, Description: "generation exceeded the deadline"},
		{ErrorType: string(model.ErrorStorage), ShouldRefund: true, Description: "output could not be persisted"},
		{ErrorType: string(model.ErrorInvalidInput), ShouldRefund: false, Description: "caller supplied a bad request"},
		{ErrorType: string(model.ErrorNoCredits), ShouldRefund: false, Description: "nothing was debited"},
		{ErrorType: string(model.ErrorRateLimit), ShouldRefund: false, Description: "caller exceeded request limits"},
	}
	for _, p := range defaults {
		policy := p
		err := db.WithContext(ctx).
			Where("error_type = ?", policy.ErrorType).
			FirstOrCreate(&policy).Error
		if err != nil {
			return fmt.Errorf("seed refund policy %s: %w", policy.ErrorType, err)
		}
	}
	return nil
}

// SeedCreditPool creates the pool row for a provider if it does not exist.
func SeedCreditPool(ctx context.Context, db *gorm.DB, provider string) error {
	pool := model.PlatformCreditPool{Provider: provider, SyncStatus: model.SyncStatusPending}
	err := db.WithContext(ctx).
		Where("provider = ?", provider).
		FirstOrCreate(&pool).Error
	if err != nil {
		return fmt.Errorf("seed credit pool %s: %w", provider, err)
	}
	return nil
}
