package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/preset/credits/internal/model"
	"github.com/preset/credits/internal/port/outbound"
	"gorm.io/gorm"
)

// creditTransactionAdapter implements outbound.CreditTransactionStore.
// The table is append-only; no update or delete methods exist.
type creditTransactionAdapter struct {
	db *gorm.DB
}

// NewCreditTransactionAdapter creates a new transaction log adapter.
func NewCreditTransactionAdapter(db *gorm.DB) outbound.CreditTransactionStore {
	return &creditTransactionAdapter{db: db}
}

func (a *creditTransactionAdapter) Append(ctx context.Context, txn *model.CreditTransaction) error {
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	return a.db.WithContext(ctx).Create(txn).Error
}

func (a *creditTransactionAdapter) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.CreditTransaction, error) {
	var txns []*model.CreditTransaction
	err := a.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// Compile-time check
var _ outbound.CreditTransactionStore = (*creditTransactionAdapter)(nil)
