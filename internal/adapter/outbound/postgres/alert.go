package postgres

import (
	"context"

	"github.com/preset/credits/internal/model"
	"github.com/preset/credits/internal/port/outbound"
	"gorm.io/gorm"
)

// alertAdapter implements outbound.AlertStore.
type alertAdapter struct {
	db *gorm.DB
}

// NewAlertAdapter creates a new platform alert database adapter.
func NewAlertAdapter(db *gorm.DB) outbound.AlertStore {
	return &alertAdapter{db: db}
}

func (a *alertAdapter) Create(ctx context.Context, alert *model.PlatformAlert) error {
	return a.db.WithContext(ctx).Create(alert).Error
}

// Compile-time check
var _ outbound.AlertStore = (*alertAdapter)(nil)
