package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/preset/credits/internal/model"
	"github.com/preset/credits/internal/port/outbound"
	"gorm.io/gorm"
)

// refundAuditAdapter implements outbound.RefundAuditStore.
type refundAuditAdapter struct {
	db *gorm.DB
}

// NewRefundAuditAdapter creates a new refund audit database adapter.
func NewRefundAuditAdapter(db *gorm.DB) outbound.RefundAuditStore {
	return &refundAuditAdapter{db: db}
}

func (a *refundAuditAdapter) Create(ctx context.Context, rec *model.RefundAuditRecord) error {
	err := a.db.WithContext(ctx).Create(rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return outbound.ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (a *refundAuditAdapter) GetByTaskID(ctx context.Context, taskID uuid.UUID) (*model.RefundAuditRecord, error) {
	var rec model.RefundAuditRecord
	err := a.db.WithContext(ctx).First(&rec, "task_id = ?", taskID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (a *refundAuditAdapter) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.RefundAuditRecord, error) {
	var recs []*model.RefundAuditRecord
	err := a.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Compile-time check
var _ outbound.RefundAuditStore = (*refundAuditAdapter)(nil)

// refundDecisionAdapter implements outbound.RefundDecisionStore.
type refundDecisionAdapter struct {
	db *gorm.DB
}

// NewRefundDecisionAdapter creates a new refund decision database adapter.
func NewRefundDecisionAdapter(db *gorm.DB) outbound.RefundDecisionStore {
	return &refundDecisionAdapter{db: db}
}

func (a *refundDecisionAdapter) Create(ctx context.Context, dec *model.RefundDecision) error {
	return a.db.WithContext(ctx).Create(dec).Error
}

func (a *refundDecisionAdapter) ListByTaskID(ctx context.Context, taskID uuid.UUID) ([]*model.RefundDecision, error) {
	var decs []*model.RefundDecision
	err := a.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		Find(&decs).Error
	if err != nil {
		return nil, err
	}
	return decs, nil
}

// Compile-time check
var _ outbound.RefundDecisionStore = (*refundDecisionAdapter)(nil)
