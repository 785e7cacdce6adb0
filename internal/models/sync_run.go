package models

import "time"

type SyncKind string

const (
	SyncKindFull SyncKind = "full"
	SyncKindDiff SyncKind = "diff"
)

type Dataset string

const (
	DatasetAddresses Dataset = "postal_codes"
	DatasetOffices   Dataset = "offices"
)

type SyncStatusValue string

// pending is never persisted by the pipeline; runs are created in running.
const (
	SyncStatusPending   SyncStatusValue = "pending"
	SyncStatusRunning   SyncStatusValue = "running"
	SyncStatusCompleted SyncStatusValue = "completed"
	SyncStatusFailed    SyncStatusValue = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s SyncStatusValue) Terminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusFailed
}

// SyncRun is one entry of the append-only synchronization ledger.
type SyncRun struct {
	ID             int64           `json:"id"`
	Kind           SyncKind        `json:"sync_type"`
	Dataset        Dataset         `json:"data_type"`
	FileURL        string          `json:"file_url,omitempty"`
	FileDate       *time.Time      `json:"file_date,omitempty"`
	RecordsAdded   int             `json:"records_added"`
	RecordsDeleted int             `json:"records_deleted"`
	RecordsUpdated int             `json:"records_updated"`
	Status         SyncStatusValue `json:"status"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}
