package inbound

import (
	"context"

	"github.com/google/uuid"
	"github.com/preset/credits/internal/model"
)

// LedgerDomain exposes all credit balance operations. All mutation of
// user balances goes through Debit/Credit/ResetMonthlyAllowance.
type LedgerDomain interface {
	EnsureAccount(ctx context.Context, userID uuid.UUID, tier model.SubscriptionTier) (*model.UserCreditAccount, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (*model.UserCreditAccount, error)
	Debit(ctx context.Context, userID uuid.UUID, amount int64, description string, relatedTaskID *uuid.UUID) error
	Credit(ctx context.Context, userID uuid.UUID, amount int64, description string, relatedTaskID *uuid.UUID) error
	ResetMonthlyAllowance(ctx context.Context, userID uuid.UUID) (*model.UserCreditAccount, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.CreditTransaction, error)
}

// CreateTaskInput describes a new billable task.
type CreateTaskInput struct {
	UserID          uuid.UUID `json:"user_id" binding:"required"`
	Provider        string    `json:"provider"`
	ProviderTaskID  string    `json:"provider_task_id"`
	TaskType        string    `json:"task_type" binding:"required"`
	CreditsToCharge int64     `json:"credits_to_charge" binding:"required"`
}

// TaskDomain tracks the lifecycle of billable tasks.
type TaskDomain interface {
	CreateTask(ctx context.Context, in *CreateTaskInput) (*model.BillableTask, error)
	Transition(ctx context.Context, taskID uuid.UUID, newStatus model.TaskStatus, classification model.ErrorClassification, message string) (*model.BillableTask, error)
	GetTask(ctx context.Context, taskID uuid.UUID) (*model.BillableTask, error)
	ListTasks(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.BillableTask, error)
}

// RefundResult is the outcome of a refund evaluation. Repeated calls for
// the same task return the same result.
type RefundResult struct {
	Success             bool    `json:"success"`
	Reason              string  `json:"reason"`
	CreditsRefunded     int64   `json:"credits_refunded"`
	PlatformCreditsLost float64 `json:"platform_credits_lost"`
}

// Refund result reasons.
const (
	RefundReasonRefunded      = "refunded"
	RefundReasonNotRefundable = "not_refundable"
)

// RefundDomain evaluates and applies compensating refunds for failed tasks.
type RefundDomain interface {
	ProcessRefund(ctx context.Context, taskID uuid.UUID) (*RefundResult, error)
	// TestRefund exercises the exact ProcessRefund path for a manually
	// supplied task, recording the administrative reason.
	TestRefund(ctx context.Context, taskID, userID uuid.UUID, reason string) (*RefundResult, error)
	ListRefunds(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.RefundAuditRecord, error)
	// ListDecisions returns every refund evaluation recorded for a task,
	// including the ones that moved no money.
	ListDecisions(ctx context.Context, taskID uuid.UUID) ([]*model.RefundDecision, error)
	// UpsertPolicy creates or updates the refund rule for a classification.
	UpsertPolicy(ctx context.Context, errorType string, shouldRefund bool, description string) (*model.RefundPolicy, error)
}

// ReconcilerDomain reconciles the local pool estimate against the
// provider's authoritative balance.
type ReconcilerDomain interface {
	Sync(ctx context.Context, provider string) (*model.PlatformCreditPool, error)
	GetPool(ctx context.Context, provider string) (*model.PlatformCreditPool, error)
	// HasAvailable answers the low-latency "enough pooled credit to accept
	// a new task" question from the local estimate.
	HasAvailable(ctx context.Context, provider string, providerCredits float64) (bool, error)
}
