package models

import (
	"time"

	"github.com/google/uuid"
)

type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusFailed  SyncStatus = "failed"
)

// SyncConfig is the singleton watch configuration plus sync telemetry.
// Saving is upsert-by-singleton; at most one row exists.
type SyncConfig struct {
	ID                uuid.UUID  `json:"id"`
	PSCCodes          []string   `json:"psc_codes"`
	IncludeKeywords   []string   `json:"include_keywords"`
	ExcludeKeywords   []string   `json:"exclude_keywords"`
	Agencies          []string   `json:"agencies"`
	SetAsideTypes     []string   `json:"set_aside_types"`
	MinAwardValue     *float64   `json:"min_award_value"`
	Enabled           bool       `json:"enabled"`
	SyncIntervalHours int        `json:"sync_interval_hours"`
	NotifyEmail       string     `json:"notify_email"`
	LastSyncAt        *time.Time `json:"last_sync_at"`
	LastSyncStatus    SyncStatus `json:"last_sync_status,omitempty"`
	LastSyncError     string     `json:"last_sync_error,omitempty"`
	TotalFound        int        `json:"total_found"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
