package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a billable task.
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSucceeded  TaskStatus = "succeeded"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusTimedOut   TaskStatus = "timed_out"
)

// String returns the string representation of the status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsValid checks if the status is valid.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusProcessing, TaskStatusSucceeded, TaskStatusFailed, TaskStatusTimedOut:
		return true
	}
	return false
}

// IsTerminal returns true if no further transitions are allowed.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusTimedOut:
		return true
	}
	return false
}

// IsFailure returns true for the terminal states that may trigger a refund.
func (s TaskStatus) IsFailure() bool {
	return s == TaskStatusFailed || s == TaskStatusTimedOut
}

// CanTransitionTo checks whether the transition s -> next is allowed.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s.IsTerminal() || !next.IsValid() {
		return false
	}
	switch s {
	case TaskStatusQueued:
		return next == TaskStatusProcessing || next.IsTerminal()
	case TaskStatusProcessing:
		return next.IsTerminal()
	}
	return false
}

// ErrorClassification is the fixed failure vocabulary supplied by the
// task-execution subsystem on terminal failure.
type ErrorClassification string

const (
	ErrorInternal        ErrorClassification = "internal_error"
	ErrorContentPolicy   ErrorClassification = "content_policy_violation"
	ErrorGenerationFail  ErrorClassification = "generation_failed"
	ErrorTimeout         ErrorClassification = "timeout"
	ErrorStorage         ErrorClassification = "storage_error"
	ErrorInvalidInput    ErrorClassification = "invalid_input"
	ErrorNoCredits       ErrorClassification = "insufficient_credits"
	ErrorRateLimit       ErrorClassification = "rate_limit"
)

// String returns the string representation of the classification.
func (e ErrorClassification) String() string {
	return string(e)
}

// BillableTask represents one metered unit of generation work bound to a
// successful ledger debit. CreditsDebited is fixed at creation and never
// changes; Refunded is set at most once.
type BillableTask struct {
	ID                  uuid.UUID            `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID              uuid.UUID            `json:"user_id" gorm:"type:uuid;not null;index"`
	Provider            string               `json:"provider" gorm:"not null"`
	ProviderTaskID      string               `json:"provider_task_id" gorm:"index"`
	TaskType            string               `json:"task_type" gorm:"not null"`
	Status              TaskStatus           `json:"status" gorm:"not null;default:queued;index"`
	CreditsDebited      int64                `json:"credits_debited" gorm:"not null"`
	ErrorClassification *ErrorClassification `json:"error_classification,omitempty"`
	ErrorMessage        string               `json:"error_message,omitempty"`
	Refunded            bool                 `json:"refunded" gorm:"not null;default:false"`
	RefundProcessedAt   *time.Time           `json:"refund_processed_at,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// TableName returns the database table name.
func (BillableTask) TableName() string {
	return "billable_tasks"
}

// Classification returns the error classification, or "" if unset.
func (t *BillableTask) Classification() ErrorClassification {
	if t.ErrorClassification == nil {
		return ""
	}
	return *t.ErrorClassification
}
