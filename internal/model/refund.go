package model

import (
	"time"

	"github.com/google/uuid"
)

// RefundPolicy maps a failure classification to refund eligibility.
// Classifications absent from the table are never refundable.
type RefundPolicy struct {
	ErrorType    string    `json:"error_type" gorm:"primaryKey"`
	ShouldRefund bool      `json:"should_refund" gorm:"not null"`
	Description  string    `json:"description"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (RefundPolicy) TableName() string {
	return "refund_policies"
}

// RefundAuditRecord exists exactly once per executed refund. The unique
// index on TaskID is the idempotency guard against double refunds.
type RefundAuditRecord struct {
	ID                  uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TaskID              uuid.UUID `json:"task_id" gorm:"type:uuid;uniqueIndex;not null"`
	UserID              uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	CreditsRefunded     int64     `json:"credits_refunded" gorm:"not null"`
	PlatformCreditsLost float64   `json:"platform_credits_lost" gorm:"type:decimal(12,4);not null"`
	RefundReason        string    `json:"refund_reason" gorm:"not null"`
	CreatedAt           time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (RefundAuditRecord) TableName() string {
	return "refund_audit_records"
}

// RefundDecision records every refund evaluation, including the ones that
// moved no money. Unlike audit records these are not unique per task.
type RefundDecision struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TaskID     uuid.UUID `json:"task_id" gorm:"type:uuid;not null;index"`
	UserID     uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	ErrorType  string    `json:"error_type" gorm:"not null"`
	Refundable bool      `json:"refundable" gorm:"not null"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (RefundDecision) TableName() string {
	return "refund_decisions"
}
