package model

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionTier represents a user's subscription tier.
type SubscriptionTier string

const (
	TierFree SubscriptionTier = "free"
	TierPlus SubscriptionTier = "plus"
	TierPro  SubscriptionTier = "pro"
)

// String returns the string representation of the tier.
func (t SubscriptionTier) String() string {
	return string(t)
}

// IsValid checks if the tier is valid.
func (t SubscriptionTier) IsValid() bool {
	switch t {
	case TierFree, TierPlus, TierPro:
		return true
	}
	return false
}

// MonthlyAllowance returns the monthly credit allowance for the tier.
func (t SubscriptionTier) MonthlyAllowance() int64 {
	switch t {
	case TierPlus:
		return 50
	case TierPro:
		return 200
	default:
		return 5
	}
}

// UserCreditAccount holds a user's credit balance. The balance is the
// authoritative running total for reads; the transaction log is the audit
// trail. All mutation goes through the ledger domain.
type UserCreditAccount struct {
	ID                uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID            uuid.UUID        `json:"user_id" gorm:"type:uuid;uniqueIndex;not null"`
	SubscriptionTier  SubscriptionTier `json:"subscription_tier" gorm:"not null;default:free"`
	CurrentBalance    int64            `json:"current_balance" gorm:"not null;default:0;check:current_balance >= 0"`
	MonthlyAllowance  int64            `json:"monthly_allowance" gorm:"not null;default:0"`
	ConsumedThisMonth int64            `json:"consumed_this_month" gorm:"not null;default:0"`
	LifetimeConsumed  int64            `json:"lifetime_consumed" gorm:"not null;default:0"`
	LastResetAt       time.Time        `json:"last_reset_at" gorm:"not null"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// TableName returns the database table name.
func (UserCreditAccount) TableName() string {
	return "user_credit_accounts"
}

// HasSufficientCredits checks if the account can cover the amount.
func (a *UserCreditAccount) HasSufficientCredits(amount int64) bool {
	return a.CurrentBalance >= amount
}

// TransactionType represents the direction of a credit transaction.
type TransactionType string

const (
	TransactionTypeDebit  TransactionType = "debit"
	TransactionTypeCredit TransactionType = "credit"
)

// String returns the string representation of the transaction type.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid checks if the transaction type is valid.
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeDebit || t == TransactionTypeCredit
}

// CreditTransaction is one append-only ledger entry. Rows are never
// updated or deleted.
type CreditTransaction struct {
	ID            uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID        uuid.UUID       `json:"user_id" gorm:"type:uuid;not null;index"`
	Type          TransactionType `json:"type" gorm:"not null"`
	Amount        int64           `json:"amount" gorm:"not null"`
	Description   string          `json:"description"`
	RelatedTaskID *uuid.UUID      `json:"related_task_id,omitempty" gorm:"type:uuid;index"`
	Metadata      map[string]any  `json:"metadata,omitempty" gorm:"serializer:json;type:jsonb"`
	CreatedAt     time.Time       `json:"created_at" gorm:"not null;index"`
}

// TableName returns the database table name.
func (CreditTransaction) TableName() string {
	return "credit_transactions"
}

// SignedAmount returns the amount with the sign implied by the type.
func (t *CreditTransaction) SignedAmount() int64 {
	if t.Type == TransactionTypeDebit {
		return -t.Amount
	}
	return t.Amount
}
