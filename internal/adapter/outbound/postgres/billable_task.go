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

// billableTaskAdapter implements outbound.BillableTaskStore.
type billableTaskAdapter struct {
	db *gorm.DB
}

// NewBillableTaskAdapter creates a new billable task database adapter.
func NewBillableTaskAdapter(db *gorm.DB) outbound.BillableTaskStore {
	return &billableTaskAdapter{db: db}
}

func (a *billableTaskAdapter) Create(ctx context.Context, task *model.BillableTask) error {
	return a.db.WithContext(ctx).Create(task).Error
}

func (a *billableTaskAdapter) GetByID(ctx context.Context, taskID uuid.UUID) (*model.BillableTask, error) {
	var task model.BillableTask
	err := a.db.WithContext(ctx).First(&task, "id = ?", taskID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

// UpdateStatusFrom transitions the status with a compare-and-swap on the
// expected current status, so a concurrent transition loses cleanly.
func (a *billableTaskAdapter) UpdateStatusFrom(ctx context.Context, taskID uuid.UUID, from, to model.TaskStatus, classification *model.ErrorClassification, message string) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now(),
	}
	if classification != nil {
		updates["error_classification"] = string(*classification)
	}
	if message != "" {
		updates["error_message"] = message
	}

	res := a.db.WithContext(ctx).
		Model(&model.BillableTask{}).
		Where("id = ? AND status = ?", taskID, from).
		UpdateColumns(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkRefunded flips the refunded flag exactly once.
func (a *billableTaskAdapter) MarkRefunded(ctx context.Context, taskID uuid.UUID, at time.Time) (bool, error) {
	res := a.db.WithContext(ctx).
		Model(&model.BillableTask{}).
		Where("id = ? AND refunded = false", taskID).
		UpdateColumns(map[string]any{
			"refunded":            true,
			"refund_processed_at": at,
			"updated_at":          at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (a *billableTaskAdapter) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.BillableTask, error) {
	var tasks []*model.BillableTask
	err := a.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// Compile-time check
var _ outbound.BillableTaskStore = (*billableTaskAdapter)(nil)
