package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/preset/credits/internal/model"
)

// Storage errors translated by adapters.
var (
	// ErrDuplicateKey is returned when an insert violates a unique constraint.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrNotFound is returned by conditional updates that matched no row.
	// Plain reads return (nil, nil) instead.
	ErrNotFound = errors.New("record not found")
)

// CreditAccountStore persists user credit accounts. Reads return
// (nil, nil) when no account exists.
type CreditAccountStore interface {
	Create(ctx context.Context, acct *model.UserCreditAccount) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.UserCreditAccount, error)
	// DebitBalance conditionally decrements the balance in a single
	// statement. Returns false without mutating when the balance does not
	// cover the amount or the account does not exist.
	DebitBalance(ctx context.Context, userID uuid.UUID, amount int64) (bool, error)
	// CreditBalance increments the balance and floors consumed_this_month at zero.
	CreditBalance(ctx context.Context, userID uuid.UUID, amount int64) error
	// ResetAllowance sets the balance to the monthly allowance, guarded on
	// last_reset_at predating periodStart. Returns false when the account
	// was already reset within the current period.
	ResetAllowance(ctx context.Context, userID uuid.UUID, periodStart, now time.Time) (bool, error)
}

// CreditTransactionStore persists the append-only transaction log.
type CreditTransactionStore interface {
	Append(ctx context.Context, txn *model.CreditTransaction) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.CreditTransaction, error)
}

// BillableTaskStore persists billable tasks.
type BillableTaskStore interface {
	Create(ctx context.Context, task *model.BillableTask) error
	GetByID(ctx context.Context, taskID uuid.UUID) (*model.BillableTask, error)
	// UpdateStatusFrom transitions the task status with a compare-and-swap
	// on the current status. Returns false when the stored status no
	// longer matches from.
	UpdateStatusFrom(ctx context.Context, taskID uuid.UUID, from, to model.TaskStatus, classification *model.ErrorClassification, message string) (bool, error)
	// MarkRefunded sets refunded=true at most once. Returns false when the
	// task was already marked refunded.
	MarkRefunded(ctx context.Context, taskID uuid.UUID, at time.Time) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.BillableTask, error)
}

// RefundAuditStore persists refund audit records. Create returns
// ErrDuplicateKey when an audit record already exists for the task.
type RefundAuditStore interface {
	Create(ctx context.Context, rec *model.RefundAuditRecord) error
	GetByTaskID(ctx context.Context, taskID uuid.UUID) (*model.RefundAuditRecord, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.RefundAuditRecord, error)
}

// RefundDecisionStore records every refund evaluation.
type RefundDecisionStore interface {
	Create(ctx context.Context, dec *model.RefundDecision) error
	ListByTaskID(ctx context.Context, taskID uuid.UUID) ([]*model.RefundDecision, error)
}

// RefundPolicyStore reads the operator-editable refund policy table.
type RefundPolicyStore interface {
	GetAll(ctx context.Context) ([]*model.RefundPolicy, error)
	Upsert(ctx context.Context, policy *model.RefundPolicy) error
}

// CreditPoolStore persists the per-provider platform credit pool.
type CreditPoolStore interface {
	Create(ctx context.Context, pool *model.PlatformCreditPool) error
	GetByProvider(ctx context.Context, provider string) (*model.PlatformCreditPool, error)
	// AdjustAvailable applies a relaxed increment/decrement to the local
	// estimate. Drift is corrected by the reconciler.
	AdjustAvailable(ctx context.Context, provider string, delta float64) error
	// RecordSync stores the authoritative balance and sync outcome. When
	// overwrite is true the local estimate is replaced with apiBalance.
	RecordSync(ctx context.Context, provider string, apiBalance float64, status model.SyncStatus, at time.Time, overwrite bool) error
}

// AlertStore persists operational alerts.
type AlertStore interface {
	Create(ctx context.Context, alert *model.PlatformAlert) error
}

// Stores bundles all transactional stores scoped to one unit of work.
type Stores interface {
	Accounts() CreditAccountStore
	Transactions() CreditTransactionStore
	Tasks() BillableTaskStore
	RefundAudits() RefundAuditStore
	RefundDecisions() RefundDecisionStore
	Pools() CreditPoolStore
}

// UnitOfWork runs fn inside a single transactional boundary. Either every
// write made through the provided stores commits, or none of them do.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(s Stores) error) error
}
