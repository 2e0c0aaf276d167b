package postgres

import (
	"context"
	"time"

	"github.com/preset/credits/internal/model"
	"github.com/preset/credits/internal/port/outbound"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// refundPolicyAdapter implements outbound.RefundPolicyStore.
type refundPolicyAdapter struct {
	db *gorm.DB
}

// NewRefundPolicyAdapter creates a new refund policy database adapter.
func NewRefundPolicyAdapter(db *gorm.DB) outbound.RefundPolicyStore {
	return &refundPolicyAdapter{db: db}
}

func (a *refundPolicyAdapter) GetAll(ctx context.Context) ([]*model.RefundPolicy, error) {
	var policies []*model.RefundPolicy
	err := a.db.WithContext(ctx).Order("error_type ASC").Find(&policies).Error
	if err != nil {
		return nil, err
	}
	return policies, nil
}

func (a *refundPolicyAdapter) Upsert(ctx context.Context, policy *model.RefundPolicy) error {
	policy.UpdatedAt = time.Now()
	return a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "error_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"should_refund", "description", "updated_at"}),
		}).
		Create(policy).Error
}

// Compile-time check
var _ outbound.RefundPolicyStore = (*refundPolicyAdapter)(nil)
