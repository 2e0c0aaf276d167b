package model

import (
	"time"

	"github.com/google/uuid"
)

// SyncStatus represents the outcome of the last pool reconciliation.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusError   SyncStatus = "error"
)

// String returns the string representation of the sync status.
func (s SyncStatus) String() string {
	return string(s)
}

// IsValid checks if the sync status is valid.
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSynced, SyncStatusError:
		return true
	}
	return false
}

// PlatformCreditPool is the singleton-per-provider record of pooled
// provider credits. AvailableCredits is a best-effort local estimate
// between syncs; the provider's reported balance is authoritative.
type PlatformCreditPool struct {
	ID               uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Provider         string     `json:"provider" gorm:"uniqueIndex;not null"`
	AvailableCredits float64    `json:"available_credits" gorm:"type:decimal(12,4);not null;default:0"`
	LastAPIBalance   float64    `json:"last_api_balance" gorm:"type:decimal(12,4);not null;default:0"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty"`
	SyncStatus       SyncStatus `json:"sync_status" gorm:"not null;default:pending"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName returns the database table name.
func (PlatformCreditPool) TableName() string {
	return "platform_credit_pools"
}

// PlatformAlert is a persisted operational alert (sync discrepancies,
// refund failures) surfaced to administrators.
type PlatformAlert struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Type      string         `json:"type" gorm:"not null;index"`
	Severity  string         `json:"severity" gorm:"not null"`
	Message   string         `json:"message" gorm:"not null"`
	Metadata  map[string]any `json:"metadata,omitempty" gorm:"serializer:json;type:jsonb"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName returns the database table name.
func (PlatformAlert) TableName() string {
	return "platform_alerts"
}

// Alert severities.
const (
	AlertSeverityInfo     = "info"
	AlertSeverityWarning  = "warning"
	AlertSeverityCritical = "critical"
)

// Alert types.
const (
	AlertTypeSyncDiscrepancy = "pool_sync_discrepancy"
	AlertTypeSyncFailed      = "pool_sync_failed"
	AlertTypeRefundFailed    = "refund_failed"
)
