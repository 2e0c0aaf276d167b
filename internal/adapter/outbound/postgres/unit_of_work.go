package postgres

import (
	"context"

	"github.com/preset/credits/internal/port/outbound"
	"gorm.io/gorm"
)

// stores bundles all adapters over a single gorm handle, which may be a
// transaction or the root connection.
type stores struct {
	db *gorm.DB
}

// NewStores creates a non-transactional store bundle for plain reads.
func NewStores(db *gorm.DB) outbound.Stores {
	return &stores{db: db}
}

func (s *stores) Accounts() outbound.CreditAccountStore {
	return NewCreditAccountAdapter(s.db)
}

func (s *stores) Transactions() outbound.CreditTransactionStore {
	return NewCreditTransactionAdapter(s.db)
}

func (s *stores) Tasks() outbound.BillableTaskStore {
	return NewBillableTaskAdapter(s.db)
}

func (s *stores) RefundAudits() outbound.RefundAuditStore {
	return NewRefundAuditAdapter(s.db)
}

func (s *stores) RefundDecisions() outbound.RefundDecisionStore {
	return NewRefundDecisionAdapter(s.db)
}

func (s *stores) Pools() outbound.CreditPoolStore {
	return NewCreditPoolAdapter(s.db)
}

// unitOfWork implements outbound.UnitOfWork over a gorm transaction.
type unitOfWork struct {
	db *gorm.DB
}

// NewUnitOfWork creates a transactional unit of work backed by the database.
func NewUnitOfWork(db *gorm.DB) outbound.UnitOfWork {
	return &unitOfWork{db: db}
}

func (u *unitOfWork) Do(ctx context.Context, fn func(s outbound.Stores) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&stores{db: tx})
	})
}

// Compile-time checks
var (
	_ outbound.Stores     = (*stores)(nil)
	_ outbound.UnitOfWork = (*unitOfWork)(nil)
)
